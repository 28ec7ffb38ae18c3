package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/subcommands"

	"github.com/jask/ledgerkeep/internal/ingest"
	"github.com/jask/ledgerkeep/internal/money"
	"github.com/jask/ledgerkeep/internal/service"
)

type importCmd struct {
	accountID string
	name      string
	profile   string
	dryRun    bool
	noDetect  bool
}

func (*importCmd) Name() string { return "import" }
func (*importCmd) Synopsis() string {
	return "import bank statement files (CSV or XLSX) into an account"
}
func (*importCmd) Usage() string {
	return `ledgerkeep import (-account <id> | -name <account name>) [-profile <name>] [-dry-run] <file>...

  Parses each statement, skips rows already imported and commits the rest in batches.
  A new account is created when -name does not match an existing one. The initial
  balance is derived from the first statement balance when the account has none.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.accountID, "account", "", "Id of an existing account.")
	f.StringVar(&c.name, "name", "", "Account name; creates the account when it does not exist.")
	f.StringVar(&c.profile, "profile", "", "Import profile name from the profiles file. Defaults to matching the file name.")
	f.BoolVar(&c.dryRun, "dry-run", false, "Only preview, do not write anything.")
	f.BoolVar(&c.noDetect, "no-detect", false, "Skip recurring detection after the import.")
}

func (c *importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(a *app) error {
		if c.noDetect {
			a.imports.AutoDetect = false
		}
		var profile *ingest.Profile
		if c.profile != "" {
			p, ok := a.imports.Profiles[c.profile]
			if !ok {
				return usageError(fmt.Sprintf("unknown profile %q", c.profile))
			}
			profile = &p
		}
		for _, file := range f.Args() {
			if err := c.importFile(ctx, a, file, profile); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *importCmd) importFile(ctx context.Context, a *app, file string, profile *ingest.Profile) error {
	fh, err := os.Open(file)
	if err != nil {
		return err
	}
	defer fh.Close()

	p, err := a.imports.Preview(ctx, service.PreviewRequest{
		AccountID:   c.accountID,
		AccountName: c.name,
		FileName:    filepath.Base(file),
		Reader:      fh,
		Profile:     profile,
	})
	if err != nil {
		return err
	}
	res := p.Result
	fmt.Println(titleStyle.Render(filepath.Base(file)))
	pairs := []string{
		"account", p.Account.Name + " (" + p.Account.ID + ")",
		"rows", strconv.Itoa(res.TotalRows),
		"new", strconv.Itoa(res.NewCount),
		"duplicates", strconv.Itoa(res.DuplicateCount),
		"skipped", strconv.Itoa(res.SkippedCount),
	}
	if !res.DateRange.Empty() {
		pairs = append(pairs, "dates", res.DateRange.From.Format(time.DateOnly)+" → "+res.DateRange.To.Format(time.DateOnly))
	}
	kv(os.Stdout, pairs...)
	for i, s := range res.Skipped {
		if i == 10 {
			warn(os.Stdout, "… %d more skipped rows", len(res.Skipped)-i)
			break
		}
		warn(os.Stdout, "%s", s.Error())
	}
	if c.dryRun {
		success(os.Stdout, "dry run, nothing written")
		return nil
	}

	sum, err := a.imports.Commit(ctx, p, service.CommitOptions{
		Progress: func(done, total int) {
			fmt.Fprintf(os.Stderr, "\r%s", labelStyle.Render(fmt.Sprintf("committed %d/%d", done, total)))
		},
	})
	if sum.Batches > 0 {
		fmt.Fprintln(os.Stderr)
	}
	var batchErr *service.ImportBatchError
	if errors.As(err, &batchErr) {
		warn(os.Stdout, "%d rows committed before the failure; re-running the import skips them", batchErr.Committed)
	}
	if err != nil {
		return err
	}
	cur := p.Account.Currency
	success(os.Stdout, "imported %d transactions in %d batches", sum.Inserted, sum.Batches)
	kv(os.Stdout, "balance", signed(sum.Recalc.FinalBalance, money.Format(sum.Recalc.FinalBalance, cur)))
	if sum.InitialBalanceDerived {
		warn(os.Stdout, "initial balance derived from the statement; adjust it with set-initial if needed")
	}
	for _, w := range sum.Recalc.Warnings {
		warn(os.Stdout, "%s", w.String())
	}
	if sum.Detect != nil {
		kv(os.Stdout,
			"recurring new", strconv.Itoa(sum.Detect.Created),
			"recurring updated", strconv.Itoa(sum.Detect.Updated),
			"price spikes", strconv.Itoa(len(sum.Detect.Spikes)),
		)
	}
	return nil
}
