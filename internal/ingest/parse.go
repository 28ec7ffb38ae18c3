package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jask/ledgerkeep/internal/money"
)

// Options configures one parse pass.
type Options struct {
	AccountID string
	Currency  string
	// Profile is optional; a zero Profile means full auto-detection.
	Profile Profile
}

// ParseOutput is everything one parse pass produced.
type ParseOutput struct {
	File       string
	Format     Format
	Delimiter  rune
	HeaderLine int
	Columns    ColumnMap
	DateOrder  DateOrder
	Candidates []Candidate
	Skipped    []RowSkipped
	// DataRows counts non-blank rows after the header.
	DataRows int
}

// Parse reads a statement file and normalizes every data row. Header-level problems return
// a *ParseError; row-level problems land in Skipped.
func Parse(name string, r io.Reader, opts Options) (*ParseOutput, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &ParseError{Kind: KindRead, File: name, Err: err}
	}
	if len(bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))) == 0 {
		return nil, &ParseError{Kind: KindEmpty, File: name, Detail: "file has no rows"}
	}
	if err := opts.Profile.Validate(); err != nil {
		return nil, &ParseError{Kind: KindProfile, File: name, Err: err}
	}

	head := data
	if len(head) > 4096 {
		head = head[:4096]
	}
	format, err := DetectFormat(name, head)
	if err != nil {
		return nil, err
	}

	out := &ParseOutput{File: name, Format: format, HeaderLine: -1}
	var t *table
	switch format {
	case FormatXLSX:
		t, err = readXLSX(data)
	default:
		delim := opts.Profile.delimiter()
		if delim == 0 {
			delim = sniffDelimiter(bytes.TrimPrefix(data, utf8BOM))
		}
		out.Delimiter = delim
		t, err = readDelimited(data, delim)
	}
	if err != nil {
		return nil, &ParseError{Kind: KindRead, File: name, Err: err}
	}
	if skip := opts.Profile.SkipRows; skip > 0 {
		if skip >= len(t.rows) {
			return nil, &ParseError{Kind: KindEmpty, File: name, Detail: "no rows after skip_rows"}
		}
		t.rows, t.lines = t.rows[skip:], t.lines[skip:]
	}

	first := 0
	if opts.Profile.headerless() {
		out.Columns = opts.Profile.indexMap()
	} else {
		idx, cols, missing := discoverHeader(t, opts.Profile.pinned())
		if idx < 0 {
			return nil, &ParseError{
				Kind:   KindMissingColumn,
				File:   name,
				Detail: "no header row with required columns: " + strings.Join(missing, ", "),
			}
		}
		out.Columns = cols
		out.HeaderLine = t.lines[idx]
		first = idx + 1
	}

	style, _ := money.ParseStyle(opts.Profile.DecimalStyle)
	if format == FormatXLSX {
		style = money.StylePoint
	}
	currency := opts.Profile.Currency
	if currency == "" {
		currency = opts.Currency
	}

	rows := t.rows[first:]
	lines := t.lines[first:]
	var samples []string
	for _, row := range rows {
		if v := cell(row, out.Columns[FieldDate]); v != "" {
			samples = append(samples, v)
		}
	}
	out.DateOrder = detectDateOrder(samples)

	ac := AccountContext{
		AccountID:    opts.AccountID,
		Currency:     currency,
		DateLayout:   opts.Profile.DateFormat,
		DateOrder:    out.DateOrder,
		DecimalStyle: style,
		SerialDates:  format == FormatXLSX,
	}
	for i, row := range rows {
		if blankRow(row) {
			continue
		}
		out.DataRows++
		c, err := NormalizeRow(toRawRow(lines[i], row, out.Columns), ac)
		if err != nil {
			var skipped *RowSkipped
			if errors.As(err, &skipped) {
				out.Skipped = append(out.Skipped, *skipped)
				continue
			}
			return nil, fmt.Errorf("line %d: %w", lines[i], err)
		}
		out.Candidates = append(out.Candidates, c)
	}
	return out, nil
}

func toRawRow(line int, row []string, cols ColumnMap) RawRow {
	return RawRow{
		Line:        line,
		Date:        cell(row, cols[FieldDate]),
		ValueDate:   cell(row, cols[FieldValueDate]),
		Amount:      cell(row, cols[FieldAmount]),
		Debit:       cell(row, cols[FieldDebit]),
		Credit:      cell(row, cols[FieldCredit]),
		Balance:     cell(row, cols[FieldBalance]),
		Merchant:    cell(row, cols[FieldMerchant]),
		Description: cell(row, cols[FieldDescription]),
		Category:    cell(row, cols[FieldCategory]),
	}
}
