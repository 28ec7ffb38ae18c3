package testdata

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/ledgerkeep/internal/database/repository"
)

func TestTransactionsAreDeterministic(t *testing.T) {
	t.Parallel()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := Transactions("acc", 50, start, rand.New(rand.NewSource(7)))
	b := Transactions("acc", 50, start, rand.New(rand.NewSource(7)))
	require.Len(t, a, 50)
	require.Len(t, b, 50)
	for i := range a {
		require.Equal(t, a[i].Date, b[i].Date)
		require.Equal(t, a[i].Amount, b[i].Amount)
		require.Equal(t, a[i].Fingerprint, b[i].Fingerprint)
		require.NotEqual(t, a[i].ID, b[i].ID)
		if i > 0 {
			require.False(t, a[i].Date.Before(a[i-1].Date))
		}
	}
}

func TestEuro(t *testing.T) {
	t.Parallel()
	require.Equal(t, "0,05", euro(5))
	require.Equal(t, "1.234,56", euro(123456))
	require.Equal(t, "-1.000.000,00", euro(-100000000))
}

func TestStatementCSV(t *testing.T) {
	t.Parallel()
	day := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	csv := StatementCSV([]repository.Transaction{
		{Date: day, Amount: -1599, Description: "NETFLIX.COM"},
		{Date: day, Amount: 250000, Description: "ACME PAYROLL"},
	}, 10000)
	lines := strings.Split(strings.TrimSpace(csv), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "09/03/2024;NETFLIX.COM;15,99;;84,01", lines[1])
	require.Equal(t, "09/03/2024;ACME PAYROLL;;2.500,00;2.584,01", lines[2])
}
