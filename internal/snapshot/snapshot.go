// Package snapshot defines the versioned full-dataset backup format and its validator.
package snapshot

import (
	"fmt"
	"sort"
	"time"

	"github.com/jask/ledgerkeep/internal/database/repository"
)

// Version is the only snapshot format this build reads and writes.
const Version = "v1"

// App is written into every export.
const App = "ledgerkeep"

// SnapshotV1 is the on-disk backup document. Dates are YYYY-MM-DD and amounts are minor units.
type SnapshotV1 struct {
	Version            string        `json:"version"`
	ExportedAt         time.Time     `json:"exportedAt"`
	App                string        `json:"app"`
	Counts             *Counts       `json:"counts,omitempty"`
	DateRange          *DateRange    `json:"dateRange,omitempty"`
	Accounts           []Account     `json:"accounts"`
	Transactions       []Transaction `json:"transactions"`
	BalanceCheckpoints []Checkpoint  `json:"balanceCheckpoints"`
	Budgets            []Budget      `json:"budgets"`
	Goals              []Goal        `json:"goals"`
	Recurring          []Recurring   `json:"recurring"`
	Settings           []Setting     `json:"settings"`
}

// Counts is the number of items per collection.
type Counts struct {
	Accounts           int `json:"accounts"`
	Transactions       int `json:"transactions"`
	BalanceCheckpoints int `json:"balanceCheckpoints"`
	Budgets            int `json:"budgets"`
	Goals              int `json:"goals"`
	Recurring          int `json:"recurring"`
	Settings           int `json:"settings"`
}

// DateRange spans the transaction dates of a snapshot.
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type Account struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	Institution        string  `json:"institution,omitempty"`
	AccountType        string  `json:"accountType,omitempty"`
	Currency           string  `json:"currency"`
	Color              string  `json:"color,omitempty"`
	Balance            int64   `json:"balance"`
	InitialBalance     *int64  `json:"initialBalance,omitempty"`
	InitialBalanceDate *string `json:"initialBalanceDate,omitempty"`
	IsActive           bool    `json:"isActive"`
}

type Transaction struct {
	ID           string   `json:"id"`
	AccountID    string   `json:"accountId"`
	Seq          int64    `json:"seq"`
	Date         string   `json:"date"`
	ValueDate    *string  `json:"valueDate,omitempty"`
	Amount       int64    `json:"amount"`
	Direction    string   `json:"direction"`
	Merchant     string   `json:"merchant"`
	Description  string   `json:"description,omitempty"`
	Category     string   `json:"category"`
	Subcategory  string   `json:"subcategory,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	BalanceAfter *int64   `json:"balanceAfter,omitempty"`
	BankBalance  *int64   `json:"bankBalance,omitempty"`
	IsRecurring  bool     `json:"isRecurring"`
	RecurringID  *string  `json:"recurringId,omitempty"`
	Fingerprint  string   `json:"fingerprint"`
}

type Checkpoint struct {
	ID        string `json:"id"`
	AccountID string `json:"accountId"`
	Date      string `json:"date"`
	Balance   int64  `json:"balance"`
	Note      string `json:"note,omitempty"`
}

type Occurrence struct {
	TransactionID string `json:"transactionId"`
	Date          string `json:"date"`
}

type Recurring struct {
	ID           string       `json:"id"`
	AccountID    string       `json:"accountId"`
	Name         string       `json:"name"`
	Category     string       `json:"category"`
	Amount       int64        `json:"amount"`
	Frequency    string       `json:"frequency"`
	Type         string       `json:"type"`
	Status       string       `json:"status"`
	Occurrences  []Occurrence `json:"occurrences"`
	LastDetected *string      `json:"lastDetected,omitempty"`
	NextExpected *string      `json:"nextExpected,omitempty"`
	StartDate    string       `json:"startDate"`
	EndDate      *string      `json:"endDate,omitempty"`
	CancelledAt  *string      `json:"cancelledAt,omitempty"`
	IsExcluded   bool         `json:"isExcluded"`
	IsManual     bool         `json:"isManual"`
	Confidence   float64      `json:"confidence"`
}

type Budget struct {
	ID        string  `json:"id"`
	Category  string  `json:"category"`
	Amount    int64   `json:"amount"`
	Period    string  `json:"period"`
	AccountID *string `json:"accountId,omitempty"`
}

type Goal struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Target     int64   `json:"target"`
	Saved      int64   `json:"saved"`
	TargetDate *string `json:"targetDate,omitempty"`
	AccountID  *string `json:"accountId,omitempty"`
}

type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Data is the full user dataset in repository form.
type Data struct {
	Accounts     []repository.Account
	Transactions []repository.Transaction
	Checkpoints  []repository.BalanceCheckpoint
	Budgets      []repository.Budget
	Goals        []repository.Goal
	Recurring    []repository.RecurringTransaction
	Settings     []repository.Setting
}

// Build converts a dataset into a snapshot with counts and date range filled in.
func Build(d Data, exportedAt time.Time) SnapshotV1 {
	s := SnapshotV1{
		Version:            Version,
		ExportedAt:         exportedAt.UTC(),
		App:                App,
		Accounts:           make([]Account, 0, len(d.Accounts)),
		Transactions:       make([]Transaction, 0, len(d.Transactions)),
		BalanceCheckpoints: make([]Checkpoint, 0, len(d.Checkpoints)),
		Budgets:            make([]Budget, 0, len(d.Budgets)),
		Goals:              make([]Goal, 0, len(d.Goals)),
		Recurring:          make([]Recurring, 0, len(d.Recurring)),
		Settings:           make([]Setting, 0, len(d.Settings)),
	}
	for _, a := range d.Accounts {
		s.Accounts = append(s.Accounts, Account{
			ID: a.ID, Name: a.Name, Institution: a.Institution, AccountType: a.AccountType,
			Currency: a.Currency, Color: a.Color, Balance: a.Balance,
			InitialBalance: a.InitialBalance, InitialBalanceDate: dayPtr(a.InitialBalanceDate),
			IsActive: a.IsActive,
		})
	}
	for _, t := range d.Transactions {
		s.Transactions = append(s.Transactions, Transaction{
			ID: t.ID, AccountID: t.AccountID, Seq: t.Seq, Date: day(t.Date), ValueDate: dayPtr(t.ValueDate),
			Amount: t.Amount, Direction: string(repository.DirectionOf(t.Amount)), Merchant: t.Merchant,
			Description: t.Description, Category: string(t.Category), Subcategory: t.Subcategory,
			Tags: t.Tags, BalanceAfter: t.BalanceAfter, BankBalance: t.BankBalance,
			IsRecurring: t.IsRecurring, RecurringID: t.RecurringID, Fingerprint: t.Fingerprint,
		})
	}
	for _, c := range d.Checkpoints {
		s.BalanceCheckpoints = append(s.BalanceCheckpoints, Checkpoint{
			ID: c.ID, AccountID: c.AccountID, Date: day(c.Date), Balance: c.Balance, Note: c.Note,
		})
	}
	for _, b := range d.Budgets {
		s.Budgets = append(s.Budgets, Budget{ID: b.ID, Category: string(b.Category), Amount: b.Amount, Period: b.Period, AccountID: b.AccountID})
	}
	for _, g := range d.Goals {
		s.Goals = append(s.Goals, Goal{ID: g.ID, Name: g.Name, Target: g.Target, Saved: g.Saved, TargetDate: dayPtr(g.TargetDate), AccountID: g.AccountID})
	}
	for _, r := range d.Recurring {
		occ := make([]Occurrence, 0, len(r.Occurrences))
		for _, o := range r.Occurrences {
			occ = append(occ, Occurrence{TransactionID: o.TransactionID, Date: day(o.Date)})
		}
		s.Recurring = append(s.Recurring, Recurring{
			ID: r.ID, AccountID: r.AccountID, Name: r.Name, Category: string(r.Category), Amount: r.Amount,
			Frequency: string(r.Frequency), Type: string(r.Type), Status: string(r.Status), Occurrences: occ,
			LastDetected: dayPtr(r.LastDetected), NextExpected: dayPtr(r.NextExpected), StartDate: day(r.StartDate),
			EndDate: dayPtr(r.EndDate), CancelledAt: dayPtr(r.CancelledAt), IsExcluded: r.IsExcluded,
			IsManual: r.IsManual, Confidence: r.Confidence,
		})
	}
	for _, st := range d.Settings {
		s.Settings = append(s.Settings, Setting{Key: st.Key, Value: st.Value})
	}
	counts := s.count()
	s.Counts = &counts
	s.DateRange = s.dateRange()
	return s
}

func (s SnapshotV1) count() Counts {
	return Counts{
		Accounts:           len(s.Accounts),
		Transactions:       len(s.Transactions),
		BalanceCheckpoints: len(s.BalanceCheckpoints),
		Budgets:            len(s.Budgets),
		Goals:              len(s.Goals),
		Recurring:          len(s.Recurring),
		Settings:           len(s.Settings),
	}
}

// dateRange relies on YYYY-MM-DD sorting lexically.
func (s SnapshotV1) dateRange() *DateRange {
	if len(s.Transactions) == 0 {
		return nil
	}
	r := DateRange{From: s.Transactions[0].Date, To: s.Transactions[0].Date}
	for _, t := range s.Transactions[1:] {
		if t.Date < r.From {
			r.From = t.Date
		}
		if t.Date > r.To {
			r.To = t.Date
		}
	}
	return &r
}

// Records converts a validated snapshot back into repository form. References to transactions
// or series that are not part of the snapshot are dropped.
func (s SnapshotV1) Records() (Data, error) {
	var d Data
	txIDs := make(map[string]struct{}, len(s.Transactions))
	for _, t := range s.Transactions {
		txIDs[t.ID] = struct{}{}
	}
	seriesIDs := make(map[string]struct{}, len(s.Recurring))
	for _, r := range s.Recurring {
		seriesIDs[r.ID] = struct{}{}
	}

	for _, a := range s.Accounts {
		ibd, err := parseDayPtr(a.InitialBalanceDate)
		if err != nil {
			return Data{}, fmt.Errorf("account %s: %w", a.ID, err)
		}
		d.Accounts = append(d.Accounts, repository.Account{
			ID: a.ID, Name: a.Name, Institution: a.Institution, AccountType: a.AccountType,
			Currency: a.Currency, Color: a.Color, Balance: a.Balance,
			InitialBalance: a.InitialBalance, InitialBalanceDate: ibd, IsActive: a.IsActive,
		})
	}

	txns := make([]Transaction, len(s.Transactions))
	copy(txns, s.Transactions)
	sort.SliceStable(txns, func(i, j int) bool { return txns[i].Seq < txns[j].Seq })
	for _, t := range txns {
		date, err := parseDay(t.Date)
		if err != nil {
			return Data{}, fmt.Errorf("transaction %s: %w", t.ID, err)
		}
		vd, err := parseDayPtr(t.ValueDate)
		if err != nil {
			return Data{}, fmt.Errorf("transaction %s: %w", t.ID, err)
		}
		cat, _ := repository.ParseCategory(t.Category)
		rid := t.RecurringID
		if rid != nil {
			if _, ok := seriesIDs[*rid]; !ok {
				rid = nil
			}
		}
		d.Transactions = append(d.Transactions, repository.Transaction{
			ID: t.ID, AccountID: t.AccountID, Seq: t.Seq, Date: date, ValueDate: vd, Amount: t.Amount,
			Direction: repository.DirectionOf(t.Amount), Merchant: t.Merchant, Description: t.Description,
			Category: cat, Subcategory: t.Subcategory, Tags: t.Tags, BalanceAfter: t.BalanceAfter,
			BankBalance: t.BankBalance, IsRecurring: rid != nil, RecurringID: rid, Fingerprint: t.Fingerprint,
		})
	}

	for _, c := range s.BalanceCheckpoints {
		date, err := parseDay(c.Date)
		if err != nil {
			return Data{}, fmt.Errorf("checkpoint %s: %w", c.ID, err)
		}
		d.Checkpoints = append(d.Checkpoints, repository.BalanceCheckpoint{
			ID: c.ID, AccountID: c.AccountID, Date: date, Balance: c.Balance, Note: c.Note,
		})
	}

	for _, b := range s.Budgets {
		cat, _ := repository.ParseCategory(b.Category)
		d.Budgets = append(d.Budgets, repository.Budget{ID: b.ID, Category: cat, Amount: b.Amount, Period: b.Period, AccountID: b.AccountID})
	}

	for _, g := range s.Goals {
		td, err := parseDayPtr(g.TargetDate)
		if err != nil {
			return Data{}, fmt.Errorf("goal %s: %w", g.ID, err)
		}
		d.Goals = append(d.Goals, repository.Goal{ID: g.ID, Name: g.Name, Target: g.Target, Saved: g.Saved, TargetDate: td, AccountID: g.AccountID})
	}

	for _, r := range s.Recurring {
		rt, err := r.record(txIDs)
		if err != nil {
			return Data{}, fmt.Errorf("recurring %s: %w", r.ID, err)
		}
		d.Recurring = append(d.Recurring, rt)
	}

	for _, st := range s.Settings {
		d.Settings = append(d.Settings, repository.Setting{Key: st.Key, Value: st.Value})
	}
	return d, nil
}

func (r Recurring) record(txIDs map[string]struct{}) (repository.RecurringTransaction, error) {
	freq, err := repository.ParseFrequency(r.Frequency)
	if err != nil {
		return repository.RecurringTransaction{}, err
	}
	typ, err := repository.ParseRecurringType(r.Type)
	if err != nil {
		return repository.RecurringTransaction{}, err
	}
	status, err := repository.ParseRecurringStatus(r.Status)
	if err != nil {
		return repository.RecurringTransaction{}, err
	}
	start, err := parseDay(r.StartDate)
	if err != nil {
		return repository.RecurringTransaction{}, err
	}
	rt := repository.RecurringTransaction{
		ID: r.ID, AccountID: r.AccountID, Name: r.Name, Amount: r.Amount, Frequency: freq, Type: typ,
		Status: status, StartDate: start, IsExcluded: r.IsExcluded, IsManual: r.IsManual, Confidence: r.Confidence,
	}
	rt.Category, _ = repository.ParseCategory(r.Category)
	for _, p := range []struct {
		raw *string
		dst **time.Time
	}{
		{r.LastDetected, &rt.LastDetected},
		{r.NextExpected, &rt.NextExpected},
		{r.EndDate, &rt.EndDate},
		{r.CancelledAt, &rt.CancelledAt},
	} {
		if *p.dst, err = parseDayPtr(p.raw); err != nil {
			return repository.RecurringTransaction{}, err
		}
	}
	for _, o := range r.Occurrences {
		if _, ok := txIDs[o.TransactionID]; !ok {
			continue
		}
		od, err := parseDay(o.Date)
		if err != nil {
			return repository.RecurringTransaction{}, err
		}
		rt.Occurrences = append(rt.Occurrences, repository.Occurrence{TransactionID: o.TransactionID, Date: od})
	}
	return rt, nil
}

func day(t time.Time) string {
	return t.Format(time.DateOnly)
}

func dayPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := day(*t)
	return &s
}

func parseDay(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

func parseDayPtr(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := parseDay(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
