package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in    string
		style DecimalStyle
		want  string
	}{
		{"12.50", StyleAuto, "12.5"},
		{"-12.50", StyleAuto, "-12.5"},
		{"1,234.56", StyleAuto, "1234.56"},
		{"1.234,56", StyleAuto, "1234.56"},
		{"7,50", StyleAuto, "7.5"},
		{"1,234", StyleAuto, "1234"},
		{"1.234.567", StyleAuto, "1234567"},
		{"(12.00)", StyleAuto, "-12"},
		{"45.00-", StyleAuto, "-45"},
		{"-€ 7,50", StyleAuto, "-7.5"},
		{"EUR 1.000,00", StyleAuto, "1000"},
		{"1.234", StyleComma, "1234"},
		{"1,234", StylePoint, "1234"},
		{"+3", StyleAuto, "3"},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in, tt.style)
		require.NoError(t, err, tt.in)
		require.True(t, decimal.RequireFromString(tt.want).Equal(got), "%s: got %s want %s", tt.in, got, tt.want)
	}
}

func TestParseAmountRejects(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "   ", "abc", "12#4", "--"} {
		_, err := ParseAmount(in, StyleAuto)
		require.Error(t, err, in)
	}
}

func TestToMinorUsesCurrencyFraction(t *testing.T) {
	t.Parallel()

	require.Equal(t, int64(1235), ToMinor(decimal.RequireFromString("12.345"), "EUR"))
	require.Equal(t, int64(-1235), ToMinor(decimal.RequireFromString("-12.345"), "EUR"))
	require.Equal(t, int64(1500), ToMinor(decimal.RequireFromString("1500"), "JPY"))
	require.Equal(t, int64(100), MajorUnit("USD"))
	require.Equal(t, int64(1), MajorUnit("JPY"))
	require.Equal(t, 2, Fraction("???"))
}

func TestFormat(t *testing.T) {
	t.Parallel()

	require.Equal(t, "$12.50", Format(1250, "USD"))
	require.Equal(t, "12.50 XXY", Format(1250, "xxy"))
	require.True(t, decimal.RequireFromString("-7.5").Equal(FromMinor(-750, "EUR")))
}

func TestParseStyle(t *testing.T) {
	t.Parallel()

	s, err := ParseStyle("european")
	require.NoError(t, err)
	require.Equal(t, StyleComma, s)
	_, err = ParseStyle("roman")
	require.Error(t, err)
}
