// Package testdata generates deterministic sample ledgers for tests and demos.
package testdata

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jask/ledgerkeep/internal/database/repository"
	"github.com/jask/ledgerkeep/internal/ingest"
	"github.com/jask/ledgerkeep/internal/merchant"
)

// Options shapes a generated dataset. Zero fields take defaults.
type Options struct {
	Accounts               int
	TransactionsPerAccount int
	Start                  time.Time
	Currency               string
	// Seed makes the output reproducible.
	Seed int64
}

// Result lists what Seed wrote.
type Result struct {
	Accounts     []repository.Account
	Transactions int
	Checkpoints  int
	From, To     time.Time
}

type pattern struct {
	merchant string
	amount   int64
	category repository.Category
	everyDay int
	monthly  bool
}

// recurringPatterns are emitted on a fixed cadence so detection has something to find.
var recurringPatterns = []pattern{
	{merchant: "ACME PAYROLL", amount: 250000, category: repository.CategoryIncome, monthly: true},
	{merchant: "NETFLIX.COM", amount: -1599, category: repository.CategorySubscriptions, monthly: true},
	{merchant: "CITY GYM", amount: -1200, category: repository.CategoryHealth, everyDay: 7},
}

var noise = []struct {
	merchant string
	category repository.Category
}{
	{"ESSELUNGA", repository.CategoryGroceries},
	{"UBER EATS* SUSHI", repository.CategoryDining},
	{"AMAZON.COM*XYZ", repository.CategoryShopping},
	{"TRENITALIA", repository.CategoryTransport},
	{"FARMACIA CENTRALE", repository.CategoryHealth},
}

func (o Options) withDefaults() Options {
	if o.Accounts <= 0 {
		o.Accounts = 1
	}
	if o.TransactionsPerAccount <= 0 {
		o.TransactionsPerAccount = 60
	}
	if o.Start.IsZero() {
		o.Start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	if o.Currency == "" {
		o.Currency = "EUR"
	}
	if o.Seed == 0 {
		o.Seed = 1
	}
	return o
}

// Transactions generates n transactions for an account in date order. The first ones follow
// the recurring patterns; the rest are random purchases.
func Transactions(accountID string, n int, start time.Time, rng *rand.Rand) []repository.Transaction {
	var out []repository.Transaction
	day := start
	for len(out) < n {
		for _, p := range recurringPatterns {
			if len(out) >= n {
				break
			}
			due := (p.monthly && day.Day() == 1+len(p.merchant)%20) || (p.everyDay > 0 && int(day.Sub(start).Hours()/24)%p.everyDay == 0)
			if due {
				out = append(out, txn(accountID, day, p.amount, p.merchant, p.category))
			}
		}
		if len(out) < n && rng.Intn(3) == 0 {
			pick := noise[rng.Intn(len(noise))]
			out = append(out, txn(accountID, day, -int64(rng.Intn(12000)+150), pick.merchant, pick.category))
		}
		day = day.AddDate(0, 0, 1)
	}
	return out
}

func txn(accountID string, day time.Time, amount int64, raw string, cat repository.Category) repository.Transaction {
	name := merchant.Clean(raw)
	return repository.Transaction{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Date:        day,
		Amount:      amount,
		Direction:   repository.DirectionOf(amount),
		Merchant:    name,
		Description: raw,
		Category:    cat,
		Fingerprint: ingest.Fingerprint(accountID, day, amount, merchant.Key(name)),
	}
}

// Seed writes accounts, transactions and one checkpoint per account. Balances are left for
// the ledger recalculation.
func Seed(ctx context.Context, st *repository.Store, opts Options) (Result, error) {
	opts = opts.withDefaults()
	rng := rand.New(rand.NewSource(opts.Seed))
	var res Result
	for i := 0; i < opts.Accounts; i++ {
		initial := int64(100000 * (i + 1))
		start := opts.Start
		acct := repository.Account{
			ID:                 uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("sample-%d-%d", opts.Seed, i))).String(),
			Name:               fmt.Sprintf("Sample Account %d", i+1),
			Institution:        "Sample Bank",
			AccountType:        "checking",
			Currency:           opts.Currency,
			InitialBalance:     &initial,
			InitialBalanceDate: &start,
			IsActive:           true,
		}
		if err := st.Accounts.Insert(ctx, acct); err != nil {
			return res, fmt.Errorf("insert account: %w", err)
		}
		res.Accounts = append(res.Accounts, acct)

		txns := Transactions(acct.ID, opts.TransactionsPerAccount, opts.Start, rng)
		running := initial
		for _, t := range txns {
			if err := st.Transactions.Insert(ctx, t); err != nil {
				return res, fmt.Errorf("insert transaction: %w", err)
			}
			running += t.Amount
			if res.From.IsZero() || t.Date.Before(res.From) {
				res.From = t.Date
			}
			if t.Date.After(res.To) {
				res.To = t.Date
			}
		}
		res.Transactions += len(txns)

		last := txns[len(txns)-1].Date.AddDate(0, 0, 1)
		cp := repository.BalanceCheckpoint{ID: uuid.NewString(), AccountID: acct.ID, Date: last, Balance: running, Note: "statement close"}
		if err := st.Checkpoints.Insert(ctx, cp); err != nil {
			return res, fmt.Errorf("insert checkpoint: %w", err)
		}
		res.Checkpoints++
	}
	return res, nil
}

// StatementCSV renders transactions as a semicolon-separated Italian bank export with a running
// balance column, newest row last.
func StatementCSV(txns []repository.Transaction, opening int64) string {
	var b strings.Builder
	b.WriteString("Data operazione;Descrizione;Uscite;Entrate;Saldo\n")
	balance := opening
	for _, t := range txns {
		balance += t.Amount
		out, in := "", ""
		if t.Amount < 0 {
			out = euro(-t.Amount)
		} else {
			in = euro(t.Amount)
		}
		fmt.Fprintf(&b, "%s;%s;%s;%s;%s\n", t.Date.Format("02/01/2006"), t.Description, out, in, euro(balance))
	}
	return b.String()
}

func euro(minor int64) string {
	sign := ""
	if minor < 0 {
		sign, minor = "-", -minor
	}
	whole, cents := minor/100, minor%100
	s := fmt.Sprintf("%d", whole)
	var groups []string
	for len(s) > 3 {
		groups = append([]string{s[len(s)-3:]}, groups...)
		s = s[:len(s)-3]
	}
	groups = append([]string{s}, groups...)
	return fmt.Sprintf("%s%s,%02d", sign, strings.Join(groups, "."), cents)
}
