package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/jask/ledgerkeep/internal/snapshot"
)

type exportCmd struct {
	out  string
	gzip bool
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "export the whole dataset as a v1 JSON snapshot" }
func (*exportCmd) Usage() string {
	return `ledgerkeep export [-o <file>] [-gzip]

  Without -o the snapshot is written to the configured backup directory and old
  backups beyond backup.keep are pruned. Use -o - for stdout.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.out, "o", "", "Output file, or - for stdout.")
	f.BoolVar(&c.gzip, "gzip", false, "Gzip the output. Implied by a .gz file name.")
}

func (c *exportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(a *app) error {
		if c.out == "" {
			path, err := a.backup.ExportToDir(ctx)
			if err != nil {
				return err
			}
			success(os.Stderr, "backup written to %s", path)
			return nil
		}
		gz := c.gzip || strings.HasSuffix(c.out, ".gz")
		w := os.Stdout
		if c.out != "-" {
			fh, err := os.OpenFile(c.out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
			if err != nil {
				return err
			}
			defer fh.Close()
			w = fh
		}
		counts, err := a.backup.Export(ctx, w, gz)
		if err != nil {
			return err
		}
		if c.out != "-" {
			if err := w.Close(); err != nil {
				return err
			}
		}
		success(os.Stderr, "exported %d accounts and %d transactions", counts.Accounts, counts.Transactions)
		return nil
	})
}

type validateCmd struct{}

func (*validateCmd) Name() string { return "validate" }
func (*validateCmd) Synopsis() string {
	return "check a snapshot file and preview what a restore would load"
}
func (*validateCmd) Usage() string {
	return `ledgerkeep validate <file>
`
}
func (*validateCmd) SetFlags(*flag.FlagSet) {}

func (c *validateCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	res, err := validateFile(f.Arg(0))
	if err != nil {
		return fail(err)
	}
	if !res.OK {
		return fail(res.Err())
	}
	return subcommands.ExitSuccess
}

// validateFile prints the preview and every issue of a snapshot file.
func validateFile(path string) (snapshot.Result, error) {
	fh, err := os.Open(path)
	if err != nil {
		return snapshot.Result{}, err
	}
	defer fh.Close()
	res, err := snapshot.Validate(fh)
	if err != nil {
		return snapshot.Result{}, err
	}
	n := res.Preview.Counts
	fmt.Println(titleStyle.Render(path))
	pairs := []string{
		"accounts", itoa(n.Accounts),
		"transactions", itoa(n.Transactions),
		"checkpoints", itoa(n.BalanceCheckpoints),
		"recurring", itoa(n.Recurring),
		"budgets", itoa(n.Budgets),
		"goals", itoa(n.Goals),
		"settings", itoa(n.Settings),
	}
	if r := res.Preview.DateRange; r != nil {
		pairs = append(pairs, "dates", r.From+" → "+r.To)
	}
	kv(os.Stdout, pairs...)
	for _, is := range res.Issues {
		if is.Level == snapshot.LevelError {
			fmt.Println(errorStyle.Render("✗ " + is.String()))
		} else {
			warn(os.Stdout, "%s", is.String())
		}
	}
	if res.OK {
		success(os.Stdout, "snapshot is valid")
	}
	return res, nil
}

type restoreCmd struct {
	backupFirst bool
	yes         bool
}

func (*restoreCmd) Name() string     { return "restore" }
func (*restoreCmd) Synopsis() string { return "replace all data with the contents of a snapshot" }
func (*restoreCmd) Usage() string {
	return `ledgerkeep restore [-backup-first=false] -yes <file>

  Validates the file, writes a backup of the current data and then replaces every
  account, transaction, checkpoint, recurring series, budget, goal and setting in
  one database transaction. Any failure leaves the current data untouched.
`
}

func (c *restoreCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.backupFirst, "backup-first", true, "Back up the current data before restoring.")
	f.BoolVar(&c.yes, "yes", false, "Confirm replacing all current data.")
}

func (c *restoreCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	res, err := validateFile(f.Arg(0))
	if err != nil {
		return fail(err)
	}
	if !res.OK {
		return fail(res.Err())
	}
	if !c.yes {
		warn(os.Stderr, "restore replaces all current data; re-run with -yes to proceed")
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(a *app) error {
		if c.backupFirst {
			path, err := a.backup.ExportToDir(ctx)
			if err != nil {
				return fmt.Errorf("pre-restore backup: %w", err)
			}
			success(os.Stdout, "current data backed up to %s", path)
		}
		rep, err := a.backup.RestoreReplace(ctx, res.Snapshot)
		if err != nil {
			return err
		}
		success(os.Stdout, "restored %d accounts and %d transactions", rep.Counts.Accounts, rep.Counts.Transactions)
		for _, r := range rep.Recalc {
			for _, w := range r.Warnings {
				warn(os.Stdout, "%s: %s", r.AccountID, w.String())
			}
		}
		return nil
	})
}

type backupsCmd struct{}

func (*backupsCmd) Name() string     { return "backups" }
func (*backupsCmd) Synopsis() string { return "list snapshot files in the backup directory" }
func (*backupsCmd) Usage() string {
	return `ledgerkeep backups
`
}
func (*backupsCmd) SetFlags(*flag.FlagSet) {}

func (c *backupsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(a *app) error {
		files, err := a.backup.Backups()
		if err != nil {
			return err
		}
		if len(files) == 0 {
			warn(os.Stdout, "no backups in %s", a.cfg.Backup.Dir)
			return nil
		}
		for _, f := range files {
			fmt.Println(f)
		}
		return nil
	})
}
