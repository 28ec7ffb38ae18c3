package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFileDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	require.Equal(t, 500, cfg.Import.BatchSize)
	require.Equal(t, "EUR", cfg.Import.DefaultCurrency)
	require.True(t, cfg.Import.AutoDetect)
	require.Equal(t, 12, cfg.Detection.LookbackMonths)
	require.Equal(t, 3, cfg.Detection.MinMonths)
	require.Equal(t, 5, cfg.Detection.MinOccurrences)
	require.InDelta(t, 1.5, cfg.Detection.SpikeFactor, 1e-9)
	require.Equal(t, 10, cfg.Backup.Keep)
}

func TestLoadFileOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[database]
path = "/tmp/ledger.db"

[import]
batch_size = 50
default_currency = "GBP"

[detection]
min_months = 4
amount_tolerance_pct = 10.0
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/ledger.db", cfg.Database.Path)
	require.Equal(t, 50, cfg.Import.BatchSize)
	require.Equal(t, "GBP", cfg.Import.DefaultCurrency)
	require.Equal(t, 4, cfg.Detection.MinMonths)
	require.InDelta(t, 10.0, cfg.Detection.AmountTolerancePct, 1e-9)
	require.Equal(t, 500, cfg.Ledger.BatchSize)
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[import]\nbatch_size = 0\n"), 0o644))
	_, err := LoadFile(path)
	require.ErrorContains(t, err, "import.batch_size")
}

func TestSaveFileRoundTrip(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "none.toml"))
	require.NoError(t, err)
	cfg.Database.Path = "/data/ledger.db"
	cfg.Backup.Keep = 3

	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	require.NoError(t, SaveFile(cfg, path))

	got, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, cfg, got)
}
