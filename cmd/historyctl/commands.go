package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"PortfolioHistory/internal/di"
	"PortfolioHistory/internal/usecase"
	"PortfolioHistory/pkg/calendar"
	"PortfolioHistory/pkg/util"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

type statusCmd struct {
	json bool
}

func (*statusCmd) Name() string { return "status" }

func (*statusCmd) Synopsis() string { return "show the freshness of every history dimension" }

func (*statusCmd) Usage() string {
	return `status [-json] [dimension...]

  Prints each dimension's sync state, latest stored day and the window a sync
  would fill. With no dimension, every dimension is listed.
`
}

func (c *statusCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.json, "json", false, "print JSON instead of a table")
}

func (c *statusCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	dims, err := parseDimensions(strings.Join(f.Args(), ","))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	return withToolkit(func(tk *di.Toolkit) subcommands.ExitStatus {
		var statuses []usecase.Status
		if len(dims) == 0 {
			statuses, err = tk.Sync.CheckAll(ctx)
		} else {
			for _, d := range dims {
				st, cerr := tk.Sync.Check(ctx, d)
				if cerr != nil {
					err = cerr
					break
				}
				statuses = append(statuses, st)
			}
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error checking status: %v\n", err)
			return subcommands.ExitFailure
		}
		if c.json {
			return printJSON(statuses)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DIMENSION\tSTATE\tLATEST\tPENDING")
		for _, st := range statuses {
			latest, pending := "-", "-"
			if st.Latest != nil {
				latest = calendar.Format(*st.Latest)
			}
			if st.Window != nil {
				pending = st.Window.String()
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", st.Dimension, st.State, latest, pending)
		}
		if err := w.Flush(); err != nil {
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	})
}

type syncCmd struct {
	overwrite bool
	json      bool
}

func (*syncCmd) Name() string { return "sync" }

func (*syncCmd) Synopsis() string { return "bring history up to the last trading day" }

func (*syncCmd) Usage() string {
	return `sync [-overwrite] [-json] [dimension...]

  Computes and stores the missing days of each dimension. With -overwrite the
  stored window is recomputed as well. With no dimension, all are synced and
  share one ledger replay.
`
}

func (c *syncCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.overwrite, "overwrite", false, "recompute already stored days")
	f.BoolVar(&c.json, "json", false, "print JSON instead of a summary")
}

func (c *syncCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	dims, err := parseDimensions(strings.Join(f.Args(), ","))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	return withToolkit(func(tk *di.Toolkit) subcommands.ExitStatus {
		var results []usecase.SyncResult
		if len(dims) == 0 {
			results = tk.Sync.SyncAll(ctx, c.overwrite)
		} else {
			for _, d := range dims {
				results = append(results, tk.Sync.Sync(ctx, d, c.overwrite))
			}
		}
		return reportResults(results, c.json)
	})
}

type rebuildCmd struct {
	from  string
	queue bool
	json  bool
}

func (*rebuildCmd) Name() string { return "rebuild" }

func (*rebuildCmd) Synopsis() string { return "recompute history from a date" }

func (*rebuildCmd) Usage() string {
	return `rebuild [-from YYYY-MM-DD] [-queue] [-json] [dimension...]

  Recomputes stored history from the given date (the configured start date
  when omitted) through the last trading day. With -queue the rebuild is
  handed to the running service instead of executed here.
`
}

func (c *rebuildCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.from, "from", "", "first day to recompute")
	f.BoolVar(&c.queue, "queue", false, "enqueue the rebuild for the service")
	f.BoolVar(&c.json, "json", false, "print JSON instead of a summary")
}

func (c *rebuildCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	dims, err := parseDimensions(strings.Join(f.Args(), ","))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	var from *time.Time
	if c.from != "" {
		if from = util.ParseDayPtr(c.from); from == nil {
			fmt.Fprintf(os.Stderr, "Error: invalid -from date %q\n", c.from)
			return subcommands.ExitUsageError
		}
	}

	return withToolkit(func(tk *di.Toolkit) subcommands.ExitStatus {
		if c.queue {
			id, err := tk.Jobs.PublishMessage(ctx, usecase.HistoryJobType, usecase.HistoryJobRequest{
				Mode:       usecase.JobModeRebuild,
				Dimensions: dimensionNames(dims),
				From:       from,
				Reason:     "historyctl",
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error enqueuing rebuild: %v\n", err)
				return subcommands.ExitFailure
			}
			fmt.Printf("queued rebuild job %s\n", id)
			return subcommands.ExitSuccess
		}

		var results []usecase.SyncResult
		if len(dims) == 0 {
			results = tk.Sync.RebuildAll(ctx, from)
		} else {
			for _, d := range dims {
				results = append(results, tk.Sync.Rebuild(ctx, d, from))
			}
		}
		return reportResults(results, c.json)
	})
}

type positionsCmd struct {
	closed bool
	json   bool
}

func (*positionsCmd) Name() string { return "positions" }

func (*positionsCmd) Synopsis() string { return "summarize current holdings" }

func (*positionsCmd) Usage() string {
	return `positions [-closed] [-json] [symbol...]

  Replays the ledger through today and prints quantity, cost basis, dividends
  and current value per symbol.
`
}

func (c *positionsCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.closed, "closed", false, "include fully sold positions")
	f.BoolVar(&c.json, "json", false, "print JSON instead of a table")
}

func (c *positionsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	symbols := make([]string, 0, f.NArg())
	for _, s := range f.Args() {
		symbols = append(symbols, strings.ToUpper(s))
	}
	return withToolkit(func(tk *di.Toolkit) subcommands.ExitStatus {
		report, err := tk.Positions.Summaries(ctx, symbols, c.closed)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error computing positions: %v\n", err)
			return subcommands.ExitFailure
		}
		if c.json {
			return printJSON(report)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "SYMBOL\tQUANTITY\tCOST\tDIVIDENDS\tPRICE\tVALUE\t")
		for _, p := range report.Positions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
				p.Symbol, p.Quantity, p.CostBasis.StringFixed(2), p.TotalDividends.StringFixed(2),
				nullFixed(p.CurrentPrice), nullFixed(p.CurrentValue))
		}
		if err := w.Flush(); err != nil {
			return subcommands.ExitFailure
		}
		for sym, reason := range report.Failed {
			fmt.Fprintf(os.Stderr, "%s: %s\n", sym, reason)
		}
		if len(report.Failed) > 0 {
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	})
}

func reportResults(results []usecase.SyncResult, asJSON bool) subcommands.ExitStatus {
	status := subcommands.ExitSuccess
	type view struct {
		usecase.SyncResult
		Error string `json:"error,omitempty"`
	}
	views := make([]view, len(results))
	for i, r := range results {
		views[i] = view{SyncResult: r}
		if r.Err != nil {
			views[i].Error = r.Err.Error()
			status = subcommands.ExitFailure
		}
	}
	if asJSON {
		if s := printJSON(views); s != subcommands.ExitSuccess {
			return s
		}
		return status
	}
	for _, v := range views {
		window := "-"
		if v.Window != nil {
			window = v.Window.String()
		}
		line := fmt.Sprintf("%-10s %-8s rows=%d window=%s", v.Dimension, v.State, v.Rows, window)
		if v.PriceGaps > 0 {
			line += fmt.Sprintf(" price_gaps=%d", v.PriceGaps)
		}
		if v.Error != "" {
			line += " error=" + v.Error
		}
		fmt.Println(line)
	}
	return status
}

func nullFixed(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.StringFixed(2)
}

type queueCmd struct {
	json bool
}

func (*queueCmd) Name() string { return "queue" }

func (*queueCmd) Synopsis() string { return "show history job queue depth" }

func (*queueCmd) Usage() string {
	return `queue [-json]

  Prints how many history jobs are pending, waiting for a retry and dead.
`
}

func (c *queueCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.json, "json", false, "print JSON instead of a table")
}

func (c *queueCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withToolkit(func(tk *di.Toolkit) subcommands.ExitStatus {
		st, err := tk.Jobs.Stats(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading queue: %v\n", err)
			return subcommands.ExitFailure
		}
		if c.json {
			return printJSON(st)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "PENDING\tRETRYING\tDEAD\t")
		fmt.Fprintf(w, "%d\t%d\t%d\t\n", st.Pending, st.Retrying, st.Dead)
		w.Flush()
		return subcommands.ExitSuccess
	})
}
