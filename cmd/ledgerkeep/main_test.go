package main

import (
	"bytes"
	"flag"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/subcommands"
	"github.com/stretchr/testify/require"
)

func TestRegisterUniqueNames(t *testing.T) {
	c := subcommands.NewCommander(flag.NewFlagSet("ledgerkeep", flag.ContinueOnError), "ledgerkeep")
	register(c)

	seen := map[string]bool{}
	c.VisitCommands(func(_ *subcommands.CommandGroup, cmd subcommands.Command) {
		require.False(t, seen[cmd.Name()], "duplicate command %s", cmd.Name())
		seen[cmd.Name()] = true
		require.NotEmpty(t, cmd.Synopsis(), cmd.Name())
		require.Contains(t, cmd.Usage(), cmd.Name())
	})
	for _, name := range []string{"import", "recalc", "checkpoint-add", "detect", "sync", "pause", "merge", "export", "validate", "restore", "daemon"} {
		require.True(t, seen[name], name)
	}
}

func TestParseHelpers(t *testing.T) {
	t.Parallel()

	d, err := parseDay("2024-02-29")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), d)
	_, err = parseDay("29/02/2024")
	require.ErrorAs(t, err, new(usageError))

	v, err := parseMinor("-15.99", "EUR")
	require.NoError(t, err)
	require.Equal(t, int64(-1599), v)
	v, err = parseMinor("1.234,56", "EUR")
	require.NoError(t, err)
	require.Equal(t, int64(123456), v)
	v, err = parseMinor("1500", "JPY")
	require.NoError(t, err)
	require.Equal(t, int64(1500), v)
	_, err = parseMinor("abc", "EUR")
	require.Error(t, err)
}

func TestTableAlignsColumns(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	table(&buf, []string{"ID", "NAME"}, [][]string{{"a", "Netflix"}, {"long-id", "Gym"}})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	col := strings.Index(lines[0], "NAME")
	require.Equal(t, col, strings.Index(lines[1], "Netflix"))
	require.Equal(t, col, strings.Index(lines[2], "Gym"))
	t.Log("\n" + buf.String())
}

func TestPadRight(t *testing.T) {
	t.Parallel()
	require.Equal(t, "ab  ", padRight("ab", 4))
	require.Equal(t, "abcdef", padRight("abcdef", 3))
	require.Equal(t, 5, lipgloss.Width(padRight("€", 5)))
}
