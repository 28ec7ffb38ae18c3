package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/ledgerkeep/internal/database/repository"
)

func day0(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sampleData() Data {
	initial := int64(100000)
	initialDate := day0(2024, 1, 1)
	end := day0(2024, 3, 31)
	series := "rec-gym"
	d := Data{
		Accounts: []repository.Account{
			{ID: "acc-1", Name: "Checking", Currency: "EUR", InitialBalance: &initial, InitialBalanceDate: &initialDate, IsActive: true},
			{ID: "acc-2", Name: "Savings", Currency: "EUR", IsActive: true},
		},
		Checkpoints: []repository.BalanceCheckpoint{
			{ID: "cp-1", AccountID: "acc-1", Date: day0(2024, 2, 1), Balance: 95000},
		},
		Budgets:  []repository.Budget{{ID: "b-1", Category: repository.CategoryDining, Amount: 20000, Period: "monthly"}},
		Goals:    []repository.Goal{{ID: "g-1", Name: "Holiday", Target: 150000, Saved: 2000}},
		Settings: []repository.Setting{{Key: repository.SettingDefaultCurrency, Value: "EUR"}},
		Recurring: []repository.RecurringTransaction{{
			ID: series, AccountID: "acc-1", Name: "City Gym", Category: repository.CategorySubscriptions, Amount: -4000,
			Frequency: repository.Monthly, Type: repository.Subscription, Status: repository.StatusCancelled,
			StartDate: day0(2024, 1, 5), EndDate: &end, CancelledAt: &end,
			Occurrences: []repository.Occurrence{
				{TransactionID: "t-0", Date: day0(2024, 1, 5)},
				{TransactionID: "gone", Date: day0(2023, 12, 5)},
			},
		}},
	}
	for i := 0; i < 6; i++ {
		t := repository.Transaction{
			ID: fmt.Sprintf("t-%d", i), AccountID: "acc-1", Seq: int64(i + 1),
			Date: day0(2024, time.Month(i%3+1), 5), Amount: -4000, Merchant: "City Gym",
			Category: repository.CategorySubscriptions, Fingerprint: fmt.Sprintf("fp-%d", i),
		}
		if i == 0 {
			t.RecurringID = &series
			t.IsRecurring = true
			t.Tags = []string{"fitness"}
		}
		d.Transactions = append(d.Transactions, t)
	}
	return d
}

func encode(t *testing.T, s SnapshotV1, gz bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, s, gz))
	return buf.Bytes()
}

func TestBuildValidateRoundTrip(t *testing.T) {
	t.Parallel()

	snap := Build(sampleData(), time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC))
	require.Equal(t, Version, snap.Version)
	require.Equal(t, 6, snap.Counts.Transactions)
	require.Equal(t, &DateRange{From: "2024-01-05", To: "2024-03-05"}, snap.DateRange)

	for _, gz := range []bool{false, true} {
		raw := encode(t, snap, gz)
		if gz {
			require.Equal(t, gzipMagic, raw[:2])
		}
		res, err := Validate(bytes.NewReader(raw))
		require.NoError(t, err)
		require.True(t, res.OK, "%v", res.Issues)
		require.NoError(t, res.Err())
		require.NotNil(t, res.Snapshot)
		require.Equal(t, 2, res.Preview.Counts.Accounts)
		require.Equal(t, 6, res.Preview.Counts.Transactions)
		require.Equal(t, "2024-01-05", res.Preview.DateRange.From)
		require.NotEmpty(t, res.Warnings())

		data, err := res.Snapshot.Records()
		require.NoError(t, err)
		require.Len(t, data.Transactions, 6)
		require.Equal(t, []string{"fitness"}, data.Transactions[0].Tags)
		require.Equal(t, day0(2024, 1, 1), *data.Accounts[0].InitialBalanceDate)
		require.Len(t, data.Recurring, 1)
		require.Len(t, data.Recurring[0].Occurrences, 1)
		require.Equal(t, repository.StatusCancelled, data.Recurring[0].Status)
		require.Equal(t, day0(2024, 3, 31), *data.Recurring[0].EndDate)
	}
}

func mutate(t *testing.T, fn func(m map[string]interface{})) []byte {
	t.Helper()
	raw := encode(t, Build(sampleData(), time.Now()), false)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &m))
	fn(m)
	out, err := json.Marshal(m)
	require.NoError(t, err)
	return out
}

func hasIssue(res Result, level Level, fragment string) bool {
	for _, i := range res.Issues {
		if i.Level == level && strings.Contains(i.String(), fragment) {
			return true
		}
	}
	return false
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mutate   func(m map[string]interface{})
		fragment string
	}{
		{"unknown version", func(m map[string]interface{}) { m["version"] = "v0" }, `unsupported version "v0"`},
		{"missing version", func(m map[string]interface{}) { delete(m, "version") }, "missing version"},
		{"missing collection", func(m map[string]interface{}) { delete(m, "goals") }, "goals: missing collection"},
		{"malformed collection", func(m map[string]interface{}) { m["accounts"] = "nope" }, "accounts: malformed"},
		{"count mismatch", func(m map[string]interface{}) {
			m["counts"].(map[string]interface{})["transactions"] = 7
		}, "declared count 7 but found 6"},
		{"dangling account", func(m map[string]interface{}) {
			txns := m["transactions"].([]interface{})
			txns[1].(map[string]interface{})["accountId"] = "acc-9"
		}, `unknown account "acc-9"`},
		{"bad frequency", func(m map[string]interface{}) {
			m["recurring"].([]interface{})[0].(map[string]interface{})["frequency"] = "daily"
		}, `unknown frequency "daily"`},
		{"ended without end date", func(m map[string]interface{}) {
			delete(m["recurring"].([]interface{})[0].(map[string]interface{}), "endDate")
		}, "cancelled without endDate"},
		{"bad date", func(m map[string]interface{}) {
			m["transactions"].([]interface{})[2].(map[string]interface{})["date"] = "05/01/2024"
		}, `invalid date "05/01/2024"`},
		{"duplicate id", func(m map[string]interface{}) {
			m["transactions"].([]interface{})[2].(map[string]interface{})["id"] = "t-1"
		}, `duplicate id "t-1"`},
		{"bad direction", func(m map[string]interface{}) {
			m["transactions"].([]interface{})[3].(map[string]interface{})["direction"] = "sideways"
		}, `invalid direction "sideways"`},
		{"bad budget period", func(m map[string]interface{}) {
			m["budgets"].([]interface{})[0].(map[string]interface{})["period"] = "weekly"
		}, `invalid period "weekly"`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := ValidateV1(mutate(t, tt.mutate))
			require.False(t, res.OK)
			require.Nil(t, res.Snapshot)
			require.True(t, hasIssue(res, LevelError, tt.fragment), "%v", res.Issues)
			require.True(t, errors.Is(res.Err(), ErrInvalid))
		})
	}
}

func TestValidateUndecodable(t *testing.T) {
	t.Parallel()

	res := ValidateV1([]byte("{not json"))
	require.False(t, res.OK)
	require.Len(t, res.Errors(), 1)

	res, err := Validate(strings.NewReader(""))
	require.NoError(t, err)
	require.False(t, res.OK)
}

func TestValidateWarningsDoNotBlock(t *testing.T) {
	t.Parallel()

	raw := mutate(t, func(m map[string]interface{}) {
		delete(m, "balanceCheckpoints")
		delete(m, "counts")
		m["budgets"] = []interface{}{}
		m["transactions"].([]interface{})[4].(map[string]interface{})["category"] = "Mystery"
	})
	res := ValidateV1(raw)
	require.True(t, res.OK, "%v", res.Issues)
	require.Empty(t, res.Errors())
	require.True(t, hasIssue(res, LevelWarning, "balanceCheckpoints: missing collection"))
	require.True(t, hasIssue(res, LevelWarning, "budgets: empty collection"))
	require.True(t, hasIssue(res, LevelWarning, `unknown category "Mystery"`))

	data, err := res.Snapshot.Records()
	require.NoError(t, err)
	require.Empty(t, data.Checkpoints)
	require.Equal(t, repository.CategoryOther, data.Transactions[4].Category)
}
