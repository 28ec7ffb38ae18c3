package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/subcommands"
	"github.com/rs/zerolog"

	"github.com/jask/ledgerkeep/internal/config"
	"github.com/jask/ledgerkeep/internal/database"
	"github.com/jask/ledgerkeep/internal/ingest"
	"github.com/jask/ledgerkeep/internal/logger"
	"github.com/jask/ledgerkeep/internal/money"
	"github.com/jask/ledgerkeep/internal/service"
)

// as a short lived CLI, global flags are fine.
var configPath = flag.String("config", "", "Path to a TOML config file. Defaults to $LEDGERKEEP_CONFIG or ~/.config/ledgerkeep/config.toml.")

func register(c *subcommands.Commander) {
	c.Register(&importCmd{}, "statements")

	c.Register(&accountsCmd{}, "ledger")
	c.Register(&recalcCmd{}, "ledger")
	c.Register(&setInitialCmd{}, "ledger")
	c.Register(&checkpointAddCmd{}, "ledger")
	c.Register(&checkpointDeleteCmd{}, "ledger")

	c.Register(&detectCmd{}, "recurring")
	c.Register(&syncCmd{}, "recurring")
	c.Register(&recurringCmd{}, "recurring")
	c.Register(&addRecurringCmd{}, "recurring")
	for _, lc := range lifecycleCmds() {
		c.Register(lc, "recurring")
	}
	c.Register(&excludeCmd{}, "recurring")
	c.Register(&setTypeCmd{}, "recurring")
	c.Register(&mergeCmd{}, "recurring")
	c.Register(&deleteRecurringCmd{}, "recurring")

	c.Register(&exportCmd{}, "backup")
	c.Register(&validateCmd{}, "backup")
	c.Register(&restoreCmd{}, "backup")
	c.Register(&backupsCmd{}, "backup")

	c.Register(&resetCmd{}, "maintenance")
	c.Register(&seedDemoCmd{}, "maintenance")
	c.Register(&daemonCmd{}, "maintenance")
}

// app is the wired service graph shared by every command.
type app struct {
	cfg         config.Config
	log         zerolog.Logger
	db          *sql.DB
	ledger      *service.LedgerService
	recurring   *service.RecurringService
	imports     *service.ImportService
	backup      *service.BackupService
	maintenance *service.MaintenanceService
}

func loadConfig() (config.Config, error) {
	if *configPath != "" {
		return config.LoadFile(*configPath)
	}
	return config.Load()
}

// openApp loads config, opens and migrates the database and builds the services.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	profiles, err := ingest.LoadProfiles(cfg.Import.ProfilesPath)
	if err != nil {
		return nil, err
	}
	db, err := database.OpenAndMigrate(ctx, cfg.Database.Path, cfg.Import.DefaultCurrency)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
	}

	ledger := &service.LedgerService{DB: db, BatchSize: cfg.Ledger.BatchSize, Log: log.With().Str("svc", "ledger").Logger()}
	rec := &service.RecurringService{DB: db, Detection: cfg.Detection, Log: log.With().Str("svc", "recurring").Logger()}
	return &app{
		cfg:       cfg,
		log:       log,
		db:        db,
		ledger:    ledger,
		recurring: rec,
		imports: &service.ImportService{
			DB:              db,
			Ledger:          ledger,
			Recurring:       rec,
			Profiles:        profiles,
			BatchSize:       cfg.Import.BatchSize,
			DefaultCurrency: cfg.Import.DefaultCurrency,
			AutoDetect:      cfg.Import.AutoDetect,
			Log:             log.With().Str("svc", "import").Logger(),
		},
		backup: &service.BackupService{
			DB:     db,
			Ledger: ledger,
			Dir:    cfg.Backup.Dir,
			Gzip:   cfg.Backup.Gzip,
			Keep:   cfg.Backup.Keep,
			Log:    log.With().Str("svc", "backup").Logger(),
		},
		maintenance: &service.MaintenanceService{DB: db, DefaultCurrency: cfg.Import.DefaultCurrency, Log: log},
	}, nil
}

func (a *app) Close() error { return a.db.Close() }

// withApp opens the app, runs fn and maps its error onto an exit status.
func withApp(ctx context.Context, fn func(a *app) error) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		return fail(err)
	}
	defer a.Close()
	if err := fn(a); err != nil {
		var usage usageError
		if errors.As(err, &usage) {
			fmt.Fprintln(os.Stderr, errorStyle.Render("usage: "+usage.Error()))
			return subcommands.ExitUsageError
		}
		return fail(err)
	}
	return subcommands.ExitSuccess
}

type usageError string

func (e usageError) Error() string { return string(e) }

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
	return subcommands.ExitFailure
}

func parseDay(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, usageError(fmt.Sprintf("date %q must be YYYY-MM-DD", s))
	}
	return t, nil
}

// parseMinor reads a user-typed amount like "-15.99" or "1.234,56" in the account currency.
func parseMinor(raw, currency string) (int64, error) {
	d, err := money.ParseAmount(raw, money.StyleAuto)
	if err != nil {
		return 0, usageError(fmt.Sprintf("amount %q: %v", raw, err))
	}
	return money.ToMinor(d, currency), nil
}

// accountCurrency returns the currency of an account, or ErrAccountNotFound.
func (a *app) accountCurrency(ctx context.Context, id string) (string, error) {
	acct, err := a.ledger.Account(ctx, id)
	if err != nil {
		return "", err
	}
	return acct.Currency, nil
}
