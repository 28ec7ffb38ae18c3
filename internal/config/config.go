package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Import    ImportConfig    `mapstructure:"import"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Detection DetectionConfig `mapstructure:"detection"`
	Backup    BackupConfig    `mapstructure:"backup"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Log       LogConfig       `mapstructure:"log"`
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ImportConfig controls statement imports.
type ImportConfig struct {
	BatchSize       int    `mapstructure:"batch_size"`
	DefaultCurrency string `mapstructure:"default_currency"`
	ProfilesPath    string `mapstructure:"profiles_path"`
	AutoDetect      bool   `mapstructure:"auto_detect"`
}

// LedgerConfig controls balance recalculation.
type LedgerConfig struct {
	BatchSize int `mapstructure:"batch_size"`
}

// DetectionConfig holds the recurring-detection thresholds.
type DetectionConfig struct {
	LookbackMonths     int     `mapstructure:"lookback_months"`
	MinMonths          int     `mapstructure:"min_months"`
	MinOccurrences     int     `mapstructure:"min_occurrences"`
	AmountTolerancePct float64 `mapstructure:"amount_tolerance_pct"`
	SpikeFactor        float64 `mapstructure:"spike_factor"`
	SyncMinConfidence  float64 `mapstructure:"sync_min_confidence"`
	MerchantSimilarity float64 `mapstructure:"merchant_similarity"`
}

// BackupConfig controls local snapshot files.
type BackupConfig struct {
	Dir      string `mapstructure:"dir"`
	Gzip     bool   `mapstructure:"gzip"`
	Keep     int    `mapstructure:"keep"`
	Schedule string `mapstructure:"schedule"`
}

// ScheduleConfig holds cron specs for the daemon. Empty disables a job.
type ScheduleConfig struct {
	Detect string `mapstructure:"detect"`
}

// LogConfig configures zerolog output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and env. Env var overrides use prefix LEDGERKEEP_.
func Load() (Config, error) {
	return load(os.Getenv("LEDGERKEEP_CONFIG"))
}

// LoadFile reads configuration from an explicit TOML file plus env overrides.
func LoadFile(path string) (Config, error) {
	return load(path)
}

func load(cfgPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("toml")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "ledgerkeep"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("LEDGERKEEP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// a missing file is fine; a broken one is not
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	home := os.Getenv("HOME")
	v.SetDefault("database.path", filepath.Join(home, ".local", "share", "ledgerkeep", "ledgerkeep.db"))
	v.SetDefault("import.batch_size", 500)
	v.SetDefault("import.default_currency", "EUR")
	v.SetDefault("import.profiles_path", filepath.Join(home, ".config", "ledgerkeep", "profiles.toml"))
	v.SetDefault("import.auto_detect", true)
	v.SetDefault("ledger.batch_size", 500)
	v.SetDefault("detection.lookback_months", 12)
	v.SetDefault("detection.min_months", 3)
	v.SetDefault("detection.min_occurrences", 5)
	v.SetDefault("detection.amount_tolerance_pct", 5.0)
	v.SetDefault("detection.spike_factor", 1.5)
	v.SetDefault("detection.sync_min_confidence", 0.8)
	v.SetDefault("detection.merchant_similarity", 0.8)
	v.SetDefault("backup.dir", filepath.Join(home, ".local", "share", "ledgerkeep", "backups"))
	v.SetDefault("backup.gzip", true)
	v.SetDefault("backup.keep", 10)
	v.SetDefault("backup.schedule", "@daily")
	v.SetDefault("schedule.detect", "@weekly")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database.Path) == "" {
		errs = append(errs, errors.New("database.path must be set"))
	}
	if c.Import.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("import.batch_size must be positive, got %d", c.Import.BatchSize))
	}
	if c.Ledger.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("ledger.batch_size must be positive, got %d", c.Ledger.BatchSize))
	}
	d := c.Detection
	if d.LookbackMonths <= 0 || d.MinMonths <= 0 || d.MinOccurrences <= 0 {
		errs = append(errs, errors.New("detection lookback_months, min_months and min_occurrences must be positive"))
	}
	if d.AmountTolerancePct < 0 {
		errs = append(errs, fmt.Errorf("detection.amount_tolerance_pct must not be negative, got %v", d.AmountTolerancePct))
	}
	if d.SpikeFactor <= 1 {
		errs = append(errs, fmt.Errorf("detection.spike_factor must be greater than 1, got %v", d.SpikeFactor))
	}
	if d.SyncMinConfidence < 0 || d.SyncMinConfidence > 1 {
		errs = append(errs, fmt.Errorf("detection.sync_min_confidence must be within [0,1], got %v", d.SyncMinConfidence))
	}
	if d.MerchantSimilarity <= 0 || d.MerchantSimilarity > 1 {
		errs = append(errs, fmt.Errorf("detection.merchant_similarity must be within (0,1], got %v", d.MerchantSimilarity))
	}
	if c.Backup.Keep < 0 {
		errs = append(errs, fmt.Errorf("backup.keep must not be negative, got %d", c.Backup.Keep))
	}
	return errors.Join(errs...)
}

// Save writes the provided config to disk, creating the config directory if needed.
func Save(cfg Config) error {
	path := os.Getenv("LEDGERKEEP_CONFIG")
	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".config", "ledgerkeep", "config.toml")
	}
	return SaveFile(cfg, path)
}

// SaveFile writes cfg as TOML to path.
func SaveFile(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("database.path", cfg.Database.Path)
	v.Set("import.batch_size", cfg.Import.BatchSize)
	v.Set("import.default_currency", cfg.Import.DefaultCurrency)
	v.Set("import.profiles_path", cfg.Import.ProfilesPath)
	v.Set("import.auto_detect", cfg.Import.AutoDetect)
	v.Set("ledger.batch_size", cfg.Ledger.BatchSize)
	v.Set("detection.lookback_months", cfg.Detection.LookbackMonths)
	v.Set("detection.min_months", cfg.Detection.MinMonths)
	v.Set("detection.min_occurrences", cfg.Detection.MinOccurrences)
	v.Set("detection.amount_tolerance_pct", cfg.Detection.AmountTolerancePct)
	v.Set("detection.spike_factor", cfg.Detection.SpikeFactor)
	v.Set("detection.sync_min_confidence", cfg.Detection.SyncMinConfidence)
	v.Set("detection.merchant_similarity", cfg.Detection.MerchantSimilarity)
	v.Set("backup.dir", cfg.Backup.Dir)
	v.Set("backup.gzip", cfg.Backup.Gzip)
	v.Set("backup.keep", cfg.Backup.Keep)
	v.Set("backup.schedule", cfg.Backup.Schedule)
	v.Set("schedule.detect", cfg.Schedule.Detect)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.format", cfg.Log.Format)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
