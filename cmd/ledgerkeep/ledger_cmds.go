package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/subcommands"

	"github.com/jask/ledgerkeep/internal/database/repository"
	"github.com/jask/ledgerkeep/internal/money"
	"github.com/jask/ledgerkeep/internal/service"
)

type accountsCmd struct {
	checkpoints bool
}

func (*accountsCmd) Name() string     { return "accounts" }
func (*accountsCmd) Synopsis() string { return "list accounts with their reconciled balance" }
func (*accountsCmd) Usage() string {
	return `ledgerkeep accounts [-checkpoints]
`
}

func (c *accountsCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.checkpoints, "checkpoints", false, "Also list balance checkpoints per account.")
}

func (c *accountsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(a *app) error {
		accounts, err := a.ledger.Accounts(ctx)
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			warn(os.Stdout, "no accounts yet; run import first")
			return nil
		}
		rows := make([][]string, 0, len(accounts))
		for _, acct := range accounts {
			initial := "-"
			if acct.InitialBalance != nil && acct.InitialBalanceDate != nil {
				initial = money.Format(*acct.InitialBalance, acct.Currency) + " @ " + acct.InitialBalanceDate.Format(time.DateOnly)
			}
			rows = append(rows, []string{acct.ID, acct.Name, acct.Currency, money.Format(acct.Balance, acct.Currency), initial})
		}
		table(os.Stdout, []string{"ID", "NAME", "CUR", "BALANCE", "INITIAL"}, rows)
		if !c.checkpoints {
			return nil
		}
		for _, acct := range accounts {
			cps, err := a.ledger.Checkpoints(ctx, acct.ID)
			if err != nil {
				return err
			}
			if len(cps) == 0 {
				continue
			}
			fmt.Println()
			fmt.Println(titleStyle.Render(acct.Name))
			cpRows := make([][]string, len(cps))
			for i, cp := range cps {
				cpRows[i] = []string{cp.ID, cp.Date.Format(time.DateOnly), money.Format(cp.Balance, acct.Currency), cp.Note}
			}
			table(os.Stdout, []string{"ID", "DATE", "BALANCE", "NOTE"}, cpRows)
		}
		return nil
	})
}

type recalcCmd struct {
	accountID string
}

func (*recalcCmd) Name() string { return "recalc" }
func (*recalcCmd) Synopsis() string {
	return "replay running balances from the initial balance and checkpoints"
}
func (*recalcCmd) Usage() string {
	return `ledgerkeep recalc [-account <id>]
`
}

func (c *recalcCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.accountID, "account", "", "Account to recalculate. Defaults to every account.")
}

func (c *recalcCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(a *app) error {
		var reps []service.RecalcReport
		if c.accountID != "" {
			rep, err := a.ledger.Recalculate(ctx, c.accountID)
			if err != nil {
				return err
			}
			reps = append(reps, rep)
		} else {
			var err error
			if reps, err = a.ledger.RecalculateAll(ctx); err != nil {
				return err
			}
		}
		for _, rep := range reps {
			printRecalc(ctx, a, rep)
		}
		return nil
	})
}

func printRecalc(ctx context.Context, a *app, rep service.RecalcReport) {
	cur, err := a.accountCurrency(ctx, rep.AccountID)
	if err != nil {
		cur = a.cfg.Import.DefaultCurrency
	}
	success(os.Stdout, "%s: %d transactions replayed", rep.AccountID, rep.Transactions)
	kv(os.Stdout, "balance", signed(rep.FinalBalance, money.Format(rep.FinalBalance, cur)))
	for _, d := range rep.Drifts {
		warn(os.Stdout, "checkpoint %s absorbed %s", d.Date.Format(time.DateOnly), money.Format(d.Delta(), cur))
	}
	for _, w := range rep.Warnings {
		warn(os.Stdout, "%s", w.String())
	}
}

type setInitialCmd struct {
	accountID string
	amount    string
	date      string
	clear     bool
}

func (*setInitialCmd) Name() string     { return "set-initial" }
func (*setInitialCmd) Synopsis() string { return "set or clear the initial balance of an account" }
func (*setInitialCmd) Usage() string {
	return `ledgerkeep set-initial -account <id> (-amount <amount> -date <YYYY-MM-DD> | -clear)
`
}

func (c *setInitialCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.accountID, "account", "", "Account id.")
	f.StringVar(&c.amount, "amount", "", "Balance at the start of -date, e.g. 1234.56.")
	f.StringVar(&c.date, "date", "", "Anchor date.")
	f.BoolVar(&c.clear, "clear", false, "Remove the initial balance.")
}

func (c *setInitialCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(a *app) error {
		if c.accountID == "" {
			return usageError("-account is required")
		}
		var balance *int64
		var date *time.Time
		if !c.clear {
			if c.amount == "" || c.date == "" {
				return usageError("-amount and -date are required unless -clear is set")
			}
			cur, err := a.accountCurrency(ctx, c.accountID)
			if err != nil {
				return err
			}
			v, err := parseMinor(c.amount, cur)
			if err != nil {
				return err
			}
			d, err := parseDay(c.date)
			if err != nil {
				return err
			}
			balance, date = &v, &d
		}
		rep, err := a.ledger.SetInitialBalance(ctx, c.accountID, balance, date)
		if err != nil {
			return err
		}
		printRecalc(ctx, a, rep)
		return nil
	})
}

type checkpointAddCmd struct {
	accountID string
	amount    string
	date      string
	note      string
}

func (*checkpointAddCmd) Name() string { return "checkpoint-add" }
func (*checkpointAddCmd) Synopsis() string {
	return "assert the account balance at the start of a day"
}
func (*checkpointAddCmd) Usage() string {
	return `ledgerkeep checkpoint-add -account <id> -amount <amount> -date <YYYY-MM-DD> [-note <text>]
`
}

func (c *checkpointAddCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.accountID, "account", "", "Account id.")
	f.StringVar(&c.amount, "amount", "", "Asserted balance.")
	f.StringVar(&c.date, "date", "", "Day the balance holds at the start of.")
	f.StringVar(&c.note, "note", "", "Free text note.")
}

func (c *checkpointAddCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(a *app) error {
		if c.accountID == "" || c.amount == "" || c.date == "" {
			return usageError("-account, -amount and -date are required")
		}
		cur, err := a.accountCurrency(ctx, c.accountID)
		if err != nil {
			return err
		}
		v, err := parseMinor(c.amount, cur)
		if err != nil {
			return err
		}
		d, err := parseDay(c.date)
		if err != nil {
			return err
		}
		cp, rep, err := a.ledger.AddCheckpoint(ctx, repository.BalanceCheckpoint{AccountID: c.accountID, Date: d, Balance: v, Note: c.note})
		if err != nil {
			return err
		}
		success(os.Stdout, "checkpoint %s added", cp.ID)
		printRecalc(ctx, a, rep)
		return nil
	})
}

type checkpointDeleteCmd struct{}

func (*checkpointDeleteCmd) Name() string     { return "checkpoint-delete" }
func (*checkpointDeleteCmd) Synopsis() string { return "delete a balance checkpoint and recalculate" }
func (*checkpointDeleteCmd) Usage() string {
	return `ledgerkeep checkpoint-delete <checkpoint id>...
`
}
func (*checkpointDeleteCmd) SetFlags(*flag.FlagSet) {}

func (c *checkpointDeleteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(a *app) error {
		for _, id := range f.Args() {
			rep, err := a.ledger.DeleteCheckpoint(ctx, id)
			if err != nil {
				return err
			}
			success(os.Stdout, "checkpoint %s deleted", id)
			printRecalc(ctx, a, rep)
		}
		return nil
	})
}

func itoa(n int) string { return strconv.Itoa(n) }
