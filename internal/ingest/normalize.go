package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jask/ledgerkeep/internal/database/repository"
	"github.com/jask/ledgerkeep/internal/merchant"
	"github.com/jask/ledgerkeep/internal/money"
)

// RawRow is one statement row with cells already mapped onto logical fields.
type RawRow struct {
	Line        int
	Date        string
	ValueDate   string
	Amount      string
	Debit       string
	Credit      string
	Balance     string
	Merchant    string
	Description string
	Category    string
}

// AccountContext carries what normalization needs to know about the target account and file.
type AccountContext struct {
	AccountID    string
	Currency     string
	DateLayout   string
	DateOrder    DateOrder
	DecimalStyle money.DecimalStyle
	// SerialDates accepts spreadsheet serial day numbers.
	SerialDates bool
}

// Candidate is a normalized row ready for duplicate resolution. Txn.ID is assigned on commit.
type Candidate struct {
	Txn         repository.Transaction
	MerchantKey string
	Line        int
	IsDuplicate bool
}

// NormalizeRow turns one raw row into a candidate. It has no side effects.
func NormalizeRow(row RawRow, ac AccountContext) (Candidate, error) {
	skip := func(field, format string, args ...interface{}) (Candidate, error) {
		return Candidate{}, &RowSkipped{Line: row.Line, Field: field, Reason: fmt.Sprintf(format, args...)}
	}

	date, err := parseDate(row.Date, ac.DateLayout, ac.DateOrder, ac.SerialDates)
	if err != nil {
		return skip(string(FieldDate), "%v", err)
	}

	amount, err := rowAmount(row, ac.DecimalStyle)
	if err != nil {
		return skip(string(FieldAmount), "%v", err)
	}
	minor := money.ToMinor(amount, ac.Currency)
	if minor == 0 {
		return skip(string(FieldAmount), "zero amount")
	}

	var valueDate *time.Time
	if strings.TrimSpace(row.ValueDate) != "" {
		if vd, err := parseDate(row.ValueDate, ac.DateLayout, ac.DateOrder, ac.SerialDates); err == nil {
			valueDate = &vd
		}
	}

	var bankBalance *int64
	if strings.TrimSpace(row.Balance) != "" {
		if b, err := money.ParseAmount(row.Balance, ac.DecimalStyle); err == nil {
			v := money.ToMinor(b, ac.Currency)
			bankBalance = &v
		}
	}

	description := strings.Join(strings.Fields(row.Description), " ")
	source := row.Merchant
	if strings.TrimSpace(source) == "" {
		source = description
	}
	name := merchant.Clean(source)
	if name == "" {
		name = "Unknown"
	}
	key := merchant.Key(name)

	rawCategory := strings.Join(strings.Fields(row.Category), " ")
	category, _ := repository.ParseCategory(rawCategory)
	subcategory := ""
	if rawCategory != "" && !strings.EqualFold(rawCategory, string(category)) {
		subcategory = rawCategory
	}

	txn := repository.Transaction{
		AccountID:   ac.AccountID,
		Date:        date,
		ValueDate:   valueDate,
		Amount:      minor,
		Direction:   repository.DirectionOf(minor),
		Merchant:    name,
		Description: description,
		Category:    category,
		Subcategory: subcategory,
		BankBalance: bankBalance,
		Fingerprint: Fingerprint(ac.AccountID, date, minor, key),
	}
	return Candidate{Txn: txn, MerchantKey: key, Line: row.Line}, nil
}

// rowAmount is credit - debit when split columns are present, else the single amount.
// Debit cells are treated as outflows whatever their printed sign.
func rowAmount(row RawRow, style money.DecimalStyle) (decimal.Decimal, error) {
	debit, credit := strings.TrimSpace(row.Debit), strings.TrimSpace(row.Credit)
	if debit == "" && credit == "" {
		if strings.TrimSpace(row.Amount) == "" {
			return decimal.Zero, fmt.Errorf("missing amount")
		}
		return money.ParseAmount(row.Amount, style)
	}
	total := decimal.Zero
	if credit != "" {
		c, err := money.ParseAmount(credit, style)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(c)
	}
	if debit != "" {
		d, err := money.ParseAmount(debit, style)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Sub(d.Abs())
	}
	return total, nil
}

// Fingerprint is the hex SHA-256 over account, day, minor-unit amount and merchant key.
func Fingerprint(accountID string, date time.Time, amountMinor int64, merchantKey string) string {
	return hashSource(accountID, date.Format(time.DateOnly), fmt.Sprintf("%d", amountMinor), merchantKey)
}

// FingerprintOf recomputes the fingerprint of a stored transaction.
func FingerprintOf(t repository.Transaction) string {
	return Fingerprint(t.AccountID, t.Date, t.Amount, merchant.Key(t.Merchant))
}

func hashSource(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h[:])
}
