package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jask/ledgerkeep/internal/database/repository"
)

// ErrInvalid is wrapped by Result.Err when a snapshot has error-level issues.
var ErrInvalid = errors.New("snapshot invalid")

// Level grades an issue. Only errors block a restore.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
)

// Issue is one validation finding.
type Issue struct {
	Level      Level
	Collection string
	Message    string
}

func (i Issue) String() string {
	if i.Collection == "" {
		return fmt.Sprintf("%s: %s", i.Level, i.Message)
	}
	return fmt.Sprintf("%s: %s: %s", i.Level, i.Collection, i.Message)
}

// Preview summarizes what a restore would write.
type Preview struct {
	Counts    Counts
	DateRange *DateRange
}

// Result is the outcome of ValidateV1. Snapshot is nil whenever OK is false.
type Result struct {
	OK       bool
	Snapshot *SnapshotV1
	Preview  Preview
	Issues   []Issue
}

// Errors returns the error-level issues.
func (r Result) Errors() []Issue {
	return r.filter(LevelError)
}

// Warnings returns the warning-level issues.
func (r Result) Warnings() []Issue {
	return r.filter(LevelWarning)
}

func (r Result) filter(l Level) []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Level == l {
			out = append(out, i)
		}
	}
	return out
}

// Err is nil for a restorable snapshot, otherwise it wraps ErrInvalid with every error issue.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	errs := r.Errors()
	msgs := make([]string, 0, len(errs))
	for _, i := range errs {
		msgs = append(msgs, i.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

type validator struct {
	issues []Issue
}

func (v *validator) errorf(collection, format string, args ...interface{}) {
	v.issues = append(v.issues, Issue{Level: LevelError, Collection: collection, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) warnf(collection, format string, args ...interface{}) {
	v.issues = append(v.issues, Issue{Level: LevelWarning, Collection: collection, Message: fmt.Sprintf(format, args...)})
}

// collections lists the required collections in restore order.
var collections = []string{"accounts", "transactions", "budgets", "goals", "recurring", "settings"}

// ValidateV1 checks a decoded (not gzip) snapshot payload.
func ValidateV1(payload []byte) Result {
	v := &validator{}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		v.errorf("", "decode: %v", err)
		return Result{Issues: v.issues}
	}

	var version string
	if msg, ok := raw["version"]; !ok {
		v.errorf("", "missing version")
	} else if err := json.Unmarshal(msg, &version); err != nil {
		v.errorf("", "version is not a string")
	} else if version != Version {
		v.errorf("", "unsupported version %q (want %q)", version, Version)
	}

	var s SnapshotV1
	s.Version = version
	decode := func(name string, dst interface{}, required bool) bool {
		msg, ok := raw[name]
		if !ok || string(msg) == "null" {
			if required {
				v.errorf(name, "missing collection")
			} else {
				v.warnf(name, "missing collection")
			}
			return false
		}
		if err := json.Unmarshal(msg, dst); err != nil {
			v.errorf(name, "malformed: %v", err)
			return false
		}
		return true
	}
	decode("accounts", &s.Accounts, true)
	decode("transactions", &s.Transactions, true)
	decode("balanceCheckpoints", &s.BalanceCheckpoints, false)
	decode("budgets", &s.Budgets, true)
	decode("goals", &s.Goals, true)
	decode("recurring", &s.Recurring, true)
	decode("settings", &s.Settings, true)
	if msg, ok := raw["exportedAt"]; ok {
		if err := json.Unmarshal(msg, &s.ExportedAt); err != nil {
			v.warnf("", "exportedAt: %v", err)
		}
	}
	if msg, ok := raw["counts"]; ok {
		if err := json.Unmarshal(msg, &s.Counts); err != nil {
			v.errorf("", "counts: %v", err)
		}
	}
	if msg, ok := raw["app"]; ok {
		_ = json.Unmarshal(msg, &s.App)
	}

	v.checkItems(&s, raw)

	actual := s.count()
	if s.Counts != nil {
		v.checkCounts(*s.Counts, actual)
	}
	s.DateRange = s.dateRange()

	res := Result{Preview: Preview{Counts: actual, DateRange: s.DateRange}, Issues: v.issues}
	res.OK = len(res.Errors()) == 0
	if res.OK {
		res.Snapshot = &s
	}
	return res
}

func (v *validator) checkCounts(declared, actual Counts) {
	pairs := []struct {
		name           string
		declared, have int
	}{
		{"accounts", declared.Accounts, actual.Accounts},
		{"transactions", declared.Transactions, actual.Transactions},
		{"balanceCheckpoints", declared.BalanceCheckpoints, actual.BalanceCheckpoints},
		{"budgets", declared.Budgets, actual.Budgets},
		{"goals", declared.Goals, actual.Goals},
		{"recurring", declared.Recurring, actual.Recurring},
		{"settings", declared.Settings, actual.Settings},
	}
	for _, p := range pairs {
		if p.declared != p.have {
			v.errorf(p.name, "declared count %d but found %d", p.declared, p.have)
		}
	}
}

// ids reports duplicates and empty ids, returning the set.
func (v *validator) ids(collection string, ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for i, id := range ids {
		if id == "" {
			v.errorf(collection, "item %d has no id", i)
			continue
		}
		if _, dup := set[id]; dup {
			v.errorf(collection, "duplicate id %q", id)
			continue
		}
		set[id] = struct{}{}
	}
	return set
}

func (v *validator) date(collection, id, field, value string) {
	if _, err := parseDay(value); err != nil {
		v.errorf(collection, "%s: %s: %v", id, field, err)
	}
}

func (v *validator) optDate(collection, id, field string, value *string) {
	if value != nil && *value != "" {
		v.date(collection, id, field, *value)
	}
}

func (v *validator) checkItems(s *SnapshotV1, raw map[string]json.RawMessage) {
	for _, name := range append([]string{"balanceCheckpoints"}, collections...) {
		if msg, ok := raw[name]; ok && strings.TrimSpace(string(msg)) == "[]" {
			v.warnf(name, "empty collection")
		}
	}

	accIDs := make([]string, len(s.Accounts))
	for i, a := range s.Accounts {
		accIDs[i] = a.ID
	}
	accounts := v.ids("accounts", accIDs)
	for _, a := range s.Accounts {
		if a.Name == "" {
			v.errorf("accounts", "%s: missing name", a.ID)
		}
		if a.Currency == "" {
			v.warnf("accounts", "%s: missing currency", a.ID)
		}
		v.optDate("accounts", a.ID, "initialBalanceDate", a.InitialBalanceDate)
	}
	account := func(collection, id, ref string) {
		if _, ok := accounts[ref]; !ok {
			v.errorf(collection, "%s: unknown account %q", id, ref)
		}
	}

	seriesIDs := make([]string, len(s.Recurring))
	for i, r := range s.Recurring {
		seriesIDs[i] = r.ID
	}
	series := v.ids("recurring", seriesIDs)

	txIDs := make([]string, len(s.Transactions))
	for i, t := range s.Transactions {
		txIDs[i] = t.ID
	}
	txns := v.ids("transactions", txIDs)
	for _, t := range s.Transactions {
		account("transactions", t.ID, t.AccountID)
		v.date("transactions", t.ID, "date", t.Date)
		v.optDate("transactions", t.ID, "valueDate", t.ValueDate)
		switch repository.Direction(t.Direction) {
		case repository.Credit, repository.Debit:
			if repository.Direction(t.Direction) != repository.DirectionOf(t.Amount) && t.Amount != 0 {
				v.warnf("transactions", "%s: direction %s disagrees with amount sign", t.ID, t.Direction)
			}
		default:
			v.errorf("transactions", "%s: invalid direction %q", t.ID, t.Direction)
		}
		if _, ok := repository.ParseCategory(t.Category); !ok && t.Category != "" {
			v.warnf("transactions", "%s: unknown category %q becomes %s", t.ID, t.Category, repository.CategoryOther)
		}
		if t.RecurringID != nil {
			if _, ok := series[*t.RecurringID]; !ok {
				v.warnf("transactions", "%s: link to unknown recurring %q is dropped", t.ID, *t.RecurringID)
			}
		}
	}

	cpIDs := make([]string, len(s.BalanceCheckpoints))
	for i, c := range s.BalanceCheckpoints {
		cpIDs[i] = c.ID
	}
	v.ids("balanceCheckpoints", cpIDs)
	for _, c := range s.BalanceCheckpoints {
		account("balanceCheckpoints", c.ID, c.AccountID)
		v.date("balanceCheckpoints", c.ID, "date", c.Date)
	}

	for _, r := range s.Recurring {
		account("recurring", r.ID, r.AccountID)
		if _, err := repository.ParseFrequency(r.Frequency); err != nil {
			v.errorf("recurring", "%s: %v", r.ID, err)
		}
		if _, err := repository.ParseRecurringType(r.Type); err != nil {
			v.errorf("recurring", "%s: %v", r.ID, err)
		}
		status, err := repository.ParseRecurringStatus(r.Status)
		if err != nil {
			v.errorf("recurring", "%s: %v", r.ID, err)
		} else if status.Ended() && (r.EndDate == nil || *r.EndDate == "") {
			v.errorf("recurring", "%s: %s without endDate", r.ID, status)
		}
		v.date("recurring", r.ID, "startDate", r.StartDate)
		v.optDate("recurring", r.ID, "lastDetected", r.LastDetected)
		v.optDate("recurring", r.ID, "nextExpected", r.NextExpected)
		v.optDate("recurring", r.ID, "endDate", r.EndDate)
		v.optDate("recurring", r.ID, "cancelledAt", r.CancelledAt)
		for _, o := range r.Occurrences {
			v.date("recurring", r.ID, "occurrence date", o.Date)
			if _, ok := txns[o.TransactionID]; !ok {
				v.warnf("recurring", "%s: occurrence of unknown transaction %q is dropped", r.ID, o.TransactionID)
			}
		}
	}

	budgetIDs := make([]string, len(s.Budgets))
	for i, b := range s.Budgets {
		budgetIDs[i] = b.ID
	}
	v.ids("budgets", budgetIDs)
	for _, b := range s.Budgets {
		if b.Period != "monthly" && b.Period != "yearly" {
			v.errorf("budgets", "%s: invalid period %q", b.ID, b.Period)
		}
		if b.AccountID != nil {
			account("budgets", b.ID, *b.AccountID)
		}
	}

	goalIDs := make([]string, len(s.Goals))
	for i, g := range s.Goals {
		goalIDs[i] = g.ID
	}
	v.ids("goals", goalIDs)
	for _, g := range s.Goals {
		v.optDate("goals", g.ID, "targetDate", g.TargetDate)
		if g.AccountID != nil {
			account("goals", g.ID, *g.AccountID)
		}
	}

	keys := make([]string, len(s.Settings))
	for i, st := range s.Settings {
		keys[i] = st.Key
	}
	v.ids("settings", keys)
}
