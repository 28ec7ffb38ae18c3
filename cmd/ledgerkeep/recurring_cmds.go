package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/subcommands"

	"github.com/jask/ledgerkeep/internal/database/repository"
	"github.com/jask/ledgerkeep/internal/money"
	"github.com/jask/ledgerkeep/internal/service"
)

type detectCmd struct {
	accountID string
}

func (*detectCmd) Name() string     { return "detect" }
func (*detectCmd) Synopsis() string { return "detect recurring payments and income in recent history" }
func (*detectCmd) Usage() string {
	return `ledgerkeep detect [-account <id>]
`
}

func (c *detectCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.accountID, "account", "", "Account to scan. Defaults to every active account.")
}

func (c *detectCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(a *app) error {
		var reps []service.DetectReport
		if c.accountID != "" {
			rep, err := a.recurring.AutoDetect(ctx, c.accountID)
			if err != nil {
				return err
			}
			reps = append(reps, rep)
		} else {
			var err error
			if reps, err = a.recurring.AutoDetectAll(ctx); err != nil {
				return err
			}
		}
		for _, rep := range reps {
			success(os.Stdout, "%s: %d new, %d updated, %d linked", rep.AccountID, rep.Created, rep.Updated, rep.Linked)
			cur, _ := a.accountCurrency(ctx, rep.AccountID)
			for _, s := range rep.Spikes {
				warn(os.Stdout, "%s on %s charged %s (usually %s)", s.Name, s.Date.Format(time.DateOnly),
					money.Format(s.Amount, cur), money.Format(s.Average, cur))
			}
		}
		return nil
	})
}

type syncCmd struct {
	accountID string
}

func (*syncCmd) Name() string { return "sync" }
func (*syncCmd) Synopsis() string {
	return "re-link history to recurring series and repair broken links"
}
func (*syncCmd) Usage() string {
	return `ledgerkeep sync [-account <id>]
`
}

func (c *syncCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.accountID, "account", "", "Account to repair. Defaults to every account.")
}

func (c *syncCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(a *app) error {
		res, err := a.recurring.SyncAndRepair(ctx, c.accountID)
		if err != nil {
			return err
		}
		success(os.Stdout, "sync finished")
		kv(os.Stdout,
			"series updated", itoa(res.RecurringUpdated),
			"transactions linked", itoa(res.TransactionsLinked),
			"series created", itoa(res.NewRecurringCreated),
			"stale links removed", itoa(res.Unlinked),
		)
		for _, e := range res.Errors {
			warn(os.Stdout, "%s", e)
		}
		return nil
	})
}

type recurringCmd struct {
	accountID  string
	status     string
	summary    bool
	candidates bool
}

func (*recurringCmd) Name() string { return "recurring" }
func (*recurringCmd) Synopsis() string {
	return "list recurring series, a monthly summary or merge suggestions"
}
func (*recurringCmd) Usage() string {
	return `ledgerkeep recurring [-account <id>] [-status <status>] [-summary | -candidates]
`
}

func (c *recurringCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.accountID, "account", "", "Restrict to one account.")
	f.StringVar(&c.status, "status", "", "Filter by status: active, paused, cancelled, completed.")
	f.BoolVar(&c.summary, "summary", false, "Show monthly totals and upcoming payments instead of the list.")
	f.BoolVar(&c.candidates, "candidates", false, "Show series that look like duplicates of each other.")
}

func (c *recurringCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(a *app) error {
		cur := a.cfg.Import.DefaultCurrency
		if c.accountID != "" {
			var err error
			if cur, err = a.accountCurrency(ctx, c.accountID); err != nil {
				return err
			}
		}
		switch {
		case c.summary:
			sum, err := a.recurring.Summary(ctx, c.accountID)
			if err != nil {
				return err
			}
			kv(os.Stdout,
				"active", itoa(sum.Active),
				"paused", itoa(sum.Paused),
				"ended", itoa(sum.Ended),
				"excluded", itoa(sum.Excluded),
				"monthly out", money.Format(sum.MonthlyOutflow, cur),
				"monthly in", money.Format(sum.MonthlyInflow, cur),
			)
			if len(sum.DueSoon) > 0 {
				fmt.Println(titleStyle.Render("due soon"))
				rows := make([][]string, len(sum.DueSoon))
				for i, d := range sum.DueSoon {
					rows[i] = []string{d.Date.Format(time.DateOnly), d.Name, signed(d.Amount, money.Format(d.Amount, cur))}
				}
				table(os.Stdout, []string{"DATE", "NAME", "AMOUNT"}, rows)
			}
			return nil
		case c.candidates:
			cands, err := a.recurring.FindMergeCandidates(ctx, c.accountID)
			if err != nil {
				return err
			}
			if len(cands) == 0 {
				success(os.Stdout, "no duplicate series found")
				return nil
			}
			rows := make([][]string, len(cands))
			for i, m := range cands {
				rows[i] = []string{m.TargetID, m.TargetName, m.SourceID, m.SourceName, fmt.Sprintf("%.0f%%", m.Similarity*100)}
			}
			table(os.Stdout, []string{"TARGET", "NAME", "SOURCE", "NAME", "SIMILARITY"}, rows)
			return nil
		}

		var status repository.RecurringStatus
		if c.status != "" {
			s, err := repository.ParseRecurringStatus(c.status)
			if err != nil {
				return usageError(err.Error())
			}
			status = s
		}
		series, err := a.recurring.List(ctx, repository.RecurringFilters{AccountID: c.accountID, Status: status})
		if err != nil {
			return err
		}
		rows := make([][]string, 0, len(series))
		for _, r := range series {
			next := "-"
			if r.NextExpected != nil {
				next = r.NextExpected.Format(time.DateOnly)
			}
			state := string(r.Status)
			if r.IsExcluded {
				state += " (excluded)"
			}
			rows = append(rows, []string{
				r.ID, r.Name, string(r.Type), string(r.Frequency), signed(r.Amount, money.Format(r.Amount, cur)),
				state, next, itoa(len(r.Occurrences)),
			})
		}
		table(os.Stdout, []string{"ID", "NAME", "TYPE", "EVERY", "AMOUNT", "STATUS", "NEXT", "SEEN"}, rows)
		return nil
	})
}

type addRecurringCmd struct {
	accountID string
	name      string
	amount    string
	frequency string
	kind      string
	category  string
	start     string
	end       string
}

func (*addRecurringCmd) Name() string     { return "add-recurring" }
func (*addRecurringCmd) Synopsis() string { return "declare a recurring payment or income by hand" }
func (*addRecurringCmd) Usage() string {
	return `ledgerkeep add-recurring -account <id> -name <name> -amount <amount> -every <frequency> -start <YYYY-MM-DD> [-type <type>] [-category <category>] [-end <YYYY-MM-DD>]
`
}

func (c *addRecurringCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.accountID, "account", "", "Account id.")
	f.StringVar(&c.name, "name", "", "Display name, usually the merchant.")
	f.StringVar(&c.amount, "amount", "", "Amount per occurrence; negative for payments.")
	f.StringVar(&c.frequency, "every", "monthly", "weekly, biweekly, monthly, quarterly or yearly.")
	f.StringVar(&c.kind, "type", "subscription", "subscription, bill, loan or income.")
	f.StringVar(&c.category, "category", "", "Category; defaults from the type.")
	f.StringVar(&c.start, "start", "", "First occurrence.")
	f.StringVar(&c.end, "end", "", "Optional last date.")
}

func (c *addRecurringCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, func(a *app) error {
		if c.accountID == "" || c.name == "" || c.amount == "" || c.start == "" {
			return usageError("-account, -name, -amount and -start are required")
		}
		cur, err := a.accountCurrency(ctx, c.accountID)
		if err != nil {
			return err
		}
		amount, err := parseMinor(c.amount, cur)
		if err != nil {
			return err
		}
		freq, err := repository.ParseFrequency(c.frequency)
		if err != nil {
			return usageError(err.Error())
		}
		typ, err := repository.ParseRecurringType(c.kind)
		if err != nil {
			return usageError(err.Error())
		}
		start, err := parseDay(c.start)
		if err != nil {
			return err
		}
		r := repository.RecurringTransaction{
			AccountID: c.accountID, Name: c.name, Amount: amount, Frequency: freq, Type: typ, StartDate: start,
		}
		if c.category != "" {
			cat, ok := repository.ParseCategory(c.category)
			if !ok {
				return usageError(fmt.Sprintf("unknown category %q", c.category))
			}
			r.Category = cat
		}
		if c.end != "" {
			end, err := parseDay(c.end)
			if err != nil {
				return err
			}
			r.EndDate = &end
		}
		created, err := a.recurring.CreateManual(ctx, r)
		if err != nil {
			return err
		}
		success(os.Stdout, "recurring %s created, next on %s", created.ID, created.NextExpected.Format(time.DateOnly))
		return nil
	})
}

// lifecycleCmd runs one status transition on each id given.
type lifecycleCmd struct {
	name     string
	synopsis string
	past     string
	apply    func(s *service.RecurringService, ctx context.Context, id string) (repository.RecurringTransaction, error)
}

func lifecycleCmds() []*lifecycleCmd {
	return []*lifecycleCmd{
		{name: "pause", synopsis: "pause recurring series", past: "paused", apply: (*service.RecurringService).Pause},
		{name: "resume", synopsis: "resume paused recurring series", past: "resumed", apply: (*service.RecurringService).Resume},
		{name: "cancel", synopsis: "cancel recurring series as of today", past: "cancelled", apply: (*service.RecurringService).Cancel},
		{name: "complete", synopsis: "mark loans as paid off as of today", past: "completed", apply: (*service.RecurringService).Complete},
	}
}

func (c *lifecycleCmd) Name() string     { return c.name }
func (c *lifecycleCmd) Synopsis() string { return c.synopsis }
func (c *lifecycleCmd) Usage() string {
	return "ledgerkeep " + c.name + " <recurring id>...\n"
}
func (*lifecycleCmd) SetFlags(*flag.FlagSet) {}

func (c *lifecycleCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(a *app) error {
		for _, id := range f.Args() {
			r, err := c.apply(a.recurring, ctx, id)
			if err != nil {
				return err
			}
			success(os.Stdout, "%s %s", r.Name, c.past)
		}
		return nil
	})
}

type excludeCmd struct {
	undo bool
}

func (*excludeCmd) Name() string     { return "exclude" }
func (*excludeCmd) Synopsis() string { return "flag recurring series as false positives" }
func (*excludeCmd) Usage() string {
	return `ledgerkeep exclude [-undo] <recurring id>...

  Excluded series are hidden from summaries, their transactions are unlinked and
  detection will not recreate them.
`
}

func (c *excludeCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.undo, "undo", false, "Remove the exclusion instead.")
}

func (c *excludeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(a *app) error {
		for _, id := range f.Args() {
			r, err := a.recurring.SetExcluded(ctx, id, !c.undo)
			if err != nil {
				return err
			}
			if c.undo {
				success(os.Stdout, "%s included again; run sync to re-link its transactions", r.Name)
			} else {
				success(os.Stdout, "%s excluded", r.Name)
			}
		}
		return nil
	})
}

type setTypeCmd struct{}

func (*setTypeCmd) Name() string     { return "set-type" }
func (*setTypeCmd) Synopsis() string { return "change the type of a recurring series" }
func (*setTypeCmd) Usage() string {
	return `ledgerkeep set-type <recurring id> <subscription|bill|loan|income>
`
}
func (*setTypeCmd) SetFlags(*flag.FlagSet) {}

func (c *setTypeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		fmt.Fprintln(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(a *app) error {
		typ, err := repository.ParseRecurringType(strings.ToLower(f.Arg(1)))
		if err != nil {
			return usageError(err.Error())
		}
		r, err := a.recurring.ChangeType(ctx, f.Arg(0), typ)
		if err != nil {
			return err
		}
		success(os.Stdout, "%s is now a %s in %s", r.Name, r.Type, r.Category)
		return nil
	})
}

type mergeCmd struct{}

func (*mergeCmd) Name() string     { return "merge" }
func (*mergeCmd) Synopsis() string { return "merge a duplicate recurring series into another" }
func (*mergeCmd) Usage() string {
	return `ledgerkeep merge <target id> <source id>

  Occurrences of source move to target and source is deleted.
`
}
func (*mergeCmd) SetFlags(*flag.FlagSet) {}

func (c *mergeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		fmt.Fprintln(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(a *app) error {
		r, err := a.recurring.Merge(ctx, f.Arg(0), f.Arg(1))
		if err != nil {
			return err
		}
		success(os.Stdout, "merged into %s, %d occurrences", r.Name, len(r.Occurrences))
		return nil
	})
}

type deleteRecurringCmd struct{}

func (*deleteRecurringCmd) Name() string { return "delete-recurring" }
func (*deleteRecurringCmd) Synopsis() string {
	return "delete recurring series and unlink their transactions"
}
func (*deleteRecurringCmd) Usage() string {
	return `ledgerkeep delete-recurring <recurring id>...
`
}
func (*deleteRecurringCmd) SetFlags(*flag.FlagSet) {}

func (c *deleteRecurringCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	return withApp(ctx, func(a *app) error {
		for _, id := range f.Args() {
			if err := a.recurring.Delete(ctx, id); err != nil {
				return err
			}
			success(os.Stdout, "%s deleted", id)
		}
		return nil
	})
}
