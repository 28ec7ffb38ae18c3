package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// Format is the container of a statement file.
type Format string

const (
	FormatDelimited Format = "delimited"
	FormatXLSX      Format = "xlsx"
)

var (
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
	zipMagic = []byte("PK\x03\x04")
)

// DetectFormat decides how to read a file from its name and leading bytes.
func DetectFormat(name string, head []byte) (Format, error) {
	ext := strings.ToLower(filepath.Ext(name))
	isZip := bytes.HasPrefix(head, zipMagic)
	switch ext {
	case ".xlsx", ".xlsm":
		if !isZip {
			return "", &ParseError{Kind: KindUnsupportedFormat, File: name, Detail: "spreadsheet is not an xlsx workbook"}
		}
		return FormatXLSX, nil
	case ".csv", ".tsv", ".txt":
		if !isText(head) {
			return "", &ParseError{Kind: KindUnsupportedFormat, File: name, Detail: "file is not UTF-8 text"}
		}
		return FormatDelimited, nil
	}
	if isZip {
		return FormatXLSX, nil
	}
	if isText(head) && len(bytes.TrimSpace(head)) > 0 {
		return FormatDelimited, nil
	}
	return "", &ParseError{Kind: KindUnsupportedFormat, File: name, Detail: fmt.Sprintf("unrecognised file type %q", ext)}
}

func isText(b []byte) bool {
	b = bytes.TrimPrefix(b, utf8BOM)
	if bytes.IndexByte(b, 0) >= 0 {
		return false
	}
	// the sample may end mid-rune
	for i := 0; i < utf8.UTFMax && len(b) > 0; i++ {
		if utf8.Valid(b) {
			return true
		}
		b = b[:len(b)-1]
	}
	return utf8.Valid(b)
}

// table is the raw cell grid with the 1-based source line of each row.
type table struct {
	rows  [][]string
	lines []int
}

func (t *table) add(line int, row []string) {
	t.rows = append(t.rows, row)
	t.lines = append(t.lines, line)
}

var delimiterCandidates = []rune{',', ';', '\t', '|'}

// sniffDelimiter picks the candidate that splits the most sample lines into the same number of fields.
func sniffDelimiter(data []byte) rune {
	var lines []string
	for _, l := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
		if len(lines) == 20 {
			break
		}
	}
	best, bestScore, bestWidth := ',', 0, 0
	for _, c := range delimiterCandidates {
		freq := map[int]int{}
		for _, l := range lines {
			if n := strings.Count(l, string(c)); n > 0 {
				freq[n]++
			}
		}
		score, width := 0, 0
		for n, f := range freq {
			if f > score || (f == score && n > width) {
				score, width = f, n
			}
		}
		if score > bestScore || (score == bestScore && width > bestWidth) {
			best, bestScore, bestWidth = c, score, width
		}
	}
	return best
}

func readDelimited(data []byte, delim rune) (*table, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if delim == 0 {
		delim = sniffDelimiter(data)
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	t := &table{}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, fmt.Errorf("line %d: %w", perr.Line, err)
			}
			return nil, err
		}
		line, _ := r.FieldPos(0)
		t.add(line, rec)
	}
	return t, nil
}

// readXLSX reads the first sheet holding data. Cells are raw values so dates arrive as serial numbers.
func readXLSX(data []byte) (*table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheet, err)
		}
		if len(rows) == 0 {
			continue
		}
		t := &table{}
		for i, row := range rows {
			t.add(i+1, row)
		}
		return t, nil
	}
	return &table{}, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
