package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/jask/ledgerkeep/internal/database/repository"
	"github.com/jask/ledgerkeep/internal/scheduler"
	"github.com/jask/ledgerkeep/internal/testdata"
)

type resetCmd struct {
	yes bool
}

func (*resetCmd) Name() string     { return "reset" }
func (*resetCmd) Synopsis() string { return "delete all user data, keeping the schema" }
func (*resetCmd) Usage() string {
	return `ledgerkeep reset -yes
`
}

func (c *resetCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.yes, "yes", false, "Confirm wiping every account and transaction.")
}

func (c *resetCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !c.yes {
		warn(os.Stderr, "reset deletes all data; re-run with -yes to proceed")
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(a *app) error {
		if err := a.maintenance.Reset(ctx); err != nil {
			return err
		}
		success(os.Stdout, "all data deleted")
		return nil
	})
}

type seedDemoCmd struct {
	accounts int
	perAcct  int
	seed     int64
}

func (*seedDemoCmd) Name() string     { return "seed-demo" }
func (*seedDemoCmd) Synopsis() string { return "fill the database with generated sample accounts" }
func (*seedDemoCmd) Usage() string {
	return `ledgerkeep seed-demo [-accounts <n>] [-transactions <n>] [-seed <n>]
`
}

func (c *seedDemoCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.accounts, "accounts", 2, "Number of accounts.")
	f.IntVar(&c.perAcct, "transactions", 120, "Transactions per account.")
	f.Int64Var(&c.seed, "seed", 1, "Random seed.")
}

func (c *seedDemoCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(a *app) error {
		var res testdata.Result
		err := repository.NewStore(a.db).Tx(ctx, func(st *repository.Store) error {
			var err error
			res, err = testdata.Seed(ctx, st, testdata.Options{
				Accounts:               c.accounts,
				TransactionsPerAccount: c.perAcct,
				Currency:               a.cfg.Import.DefaultCurrency,
				Seed:                   c.seed,
			})
			return err
		})
		if err != nil {
			return err
		}
		if _, err := a.ledger.RecalculateAll(ctx); err != nil {
			return err
		}
		if _, err := a.recurring.AutoDetectAll(ctx); err != nil {
			return err
		}
		success(os.Stdout, "seeded %d accounts, %d transactions from %s to %s",
			len(res.Accounts), res.Transactions, res.From.Format(time.DateOnly), res.To.Format(time.DateOnly))
		return nil
	})
}

type daemonCmd struct {
	runNow bool
}

func (*daemonCmd) Name() string { return "daemon" }
func (*daemonCmd) Synopsis() string {
	return "run scheduled backups and recurring detection until interrupted"
}
func (*daemonCmd) Usage() string {
	return `ledgerkeep daemon [-now]

  Schedules come from backup.schedule and schedule.detect (cron syntax or
  descriptors such as @daily). An empty schedule disables the job.
`
}

func (c *daemonCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.runNow, "now", false, "Run every job once at startup.")
}

func (c *daemonCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(a *app) error {
		jobs := scheduler.Jobs(a.cfg, a.backup, a.recurring)
		s, err := scheduler.New(a.log.With().Str("svc", "scheduler").Logger(), jobs...)
		if err != nil {
			return err
		}
		if c.runNow {
			for _, j := range jobs {
				// failures are logged; the daemon keeps going
				_ = s.RunNow(ctx, j.Name)
			}
		}
		s.Start(ctx)
		a.log.Info().Int("jobs", s.Scheduled()).Msg("daemon started")
		<-ctx.Done()
		<-s.Stop().Done()
		a.log.Info().Msg("daemon stopped")
		return nil
	})
}
