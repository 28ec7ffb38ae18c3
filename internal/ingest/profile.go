package ingest

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/BurntSushi/toml"

	"github.com/jask/ledgerkeep/internal/money"
)

// Profile pins how one bank's export is read. Zero values fall back to auto-detection.
type Profile struct {
	Name         string         `toml:"name"`
	ImportPrefix string         `toml:"import_prefix"`
	Currency     string         `toml:"currency"`
	Delimiter    string         `toml:"delimiter"`
	DateFormat   string         `toml:"date_format"`
	DecimalStyle string         `toml:"decimal_style"`
	HasHeader    *bool          `toml:"has_header"`
	SkipRows     int            `toml:"skip_rows"`
	Columns      ProfileColumns `toml:"columns"`
	Index        ProfileIndex   `toml:"index"`
}

// ProfileColumns pins header labels.
type ProfileColumns struct {
	Date        string `toml:"date"`
	ValueDate   string `toml:"value_date"`
	Amount      string `toml:"amount"`
	Debit       string `toml:"debit"`
	Credit      string `toml:"credit"`
	Balance     string `toml:"balance"`
	Merchant    string `toml:"merchant"`
	Description string `toml:"description"`
	Category    string `toml:"category"`
}

// ProfileIndex gives 1-based column positions for exports without a header row.
type ProfileIndex struct {
	Date        int `toml:"date"`
	ValueDate   int `toml:"value_date"`
	Amount      int `toml:"amount"`
	Debit       int `toml:"debit"`
	Credit      int `toml:"credit"`
	Balance     int `toml:"balance"`
	Merchant    int `toml:"merchant"`
	Description int `toml:"description"`
	Category    int `toml:"category"`
}

// ProfilesFile is the on-disk TOML layout.
type ProfilesFile struct {
	Version int                `toml:"version"`
	Profile map[string]Profile `toml:"profile"`
}

// ProfileSet is keyed by profile name.
type ProfileSet map[string]Profile

// LoadProfiles reads a profiles file. A missing file yields an empty set.
func LoadProfiles(path string) (ProfileSet, error) {
	if strings.TrimSpace(path) == "" {
		return ProfileSet{}, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ProfileSet{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open profiles: %w", err)
	}
	defer f.Close()
	return DecodeProfiles(f)
}

// DecodeProfiles parses and validates a profiles document.
func DecodeProfiles(r io.Reader) (ProfileSet, error) {
	var file ProfilesFile
	if _, err := toml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}
	set := ProfileSet{}
	for key, p := range file.Profile {
		if strings.TrimSpace(p.Name) == "" {
			p.Name = key
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("profile %q: %w", key, err)
		}
		set[key] = p
	}
	return set, nil
}

// Match returns the profile whose import_prefix is the longest prefix of the file name.
func (s ProfileSet) Match(fileName string) (Profile, bool) {
	base := strings.ToLower(filepath.Base(fileName))
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var best Profile
	bestLen := 0
	for _, k := range keys {
		p := s[k]
		prefix := strings.ToLower(strings.TrimSpace(p.ImportPrefix))
		if prefix == "" || !strings.HasPrefix(base, prefix) {
			continue
		}
		if len(prefix) > bestLen {
			best, bestLen = p, len(prefix)
		}
	}
	return best, bestLen > 0
}

// Validate checks the profile is internally consistent.
func (p Profile) Validate() error {
	if p.Delimiter != "" {
		d := p.Delimiter
		if d == `\t` {
			d = "\t"
		}
		if utf8.RuneCountInString(d) != 1 {
			return fmt.Errorf("delimiter must be a single character, got %q", p.Delimiter)
		}
	}
	if _, err := money.ParseStyle(p.DecimalStyle); err != nil {
		return err
	}
	if p.SkipRows < 0 {
		return fmt.Errorf("skip_rows must not be negative")
	}
	if p.HasHeader != nil && !*p.HasHeader {
		if p.Index.Date <= 0 {
			return fmt.Errorf("index.date is required when has_header = false")
		}
		if p.Index.Amount <= 0 && p.Index.Debit <= 0 && p.Index.Credit <= 0 {
			return fmt.Errorf("index.amount or index.debit/index.credit is required when has_header = false")
		}
	}
	return nil
}

func (p Profile) delimiter() rune {
	switch p.Delimiter {
	case "":
		return 0
	case `\t`:
		return '\t'
	}
	r, _ := utf8.DecodeRuneInString(p.Delimiter)
	return r
}

func (p Profile) headerless() bool {
	return p.HasHeader != nil && !*p.HasHeader
}

func (p Profile) pinned() map[Field]string {
	c := p.Columns
	out := map[Field]string{}
	for f, v := range map[Field]string{
		FieldDate: c.Date, FieldValueDate: c.ValueDate, FieldAmount: c.Amount, FieldDebit: c.Debit,
		FieldCredit: c.Credit, FieldBalance: c.Balance, FieldMerchant: c.Merchant,
		FieldDescription: c.Description, FieldCategory: c.Category,
	} {
		if strings.TrimSpace(v) != "" {
			out[f] = v
		}
	}
	return out
}

func (p Profile) indexMap() ColumnMap {
	ix := p.Index
	m := newColumnMap()
	for f, v := range map[Field]int{
		FieldDate: ix.Date, FieldValueDate: ix.ValueDate, FieldAmount: ix.Amount, FieldDebit: ix.Debit,
		FieldCredit: ix.Credit, FieldBalance: ix.Balance, FieldMerchant: ix.Merchant,
		FieldDescription: ix.Description, FieldCategory: ix.Category,
	} {
		if v > 0 {
			m[f] = v - 1
		}
	}
	return m
}
