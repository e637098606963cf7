package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"compliance_screener/internal/feature/compliance/domain/entity"
	"compliance_screener/internal/feature/compliance/usecase"
)

// run loads the runtime, bounds ctx with timeout and reports errors on stderr.
func run(ctx context.Context, load Loader, timeout time.Duration, fn func(context.Context, *Runtime) error) subcommands.ExitStatus {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	rt, err := load(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if rt.Close != nil {
		defer rt.Close()
	}
	if err := fn(ctx, rt); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type checkCmd struct {
	load     Loader
	out      io.Writer
	exchange string
	json     bool
	timeout  time.Duration
}

func (*checkCmd) Name() string     { return "check" }
func (*checkCmd) Synopsis() string { return "evaluate a single ticker" }
func (*checkCmd) Usage() string {
	return `screen check [-exchange <hint>] [-json] <ticker>

  Normalizes the ticker, queries the compliance provider (or cache) and
  prints the verdict with its confidence and exclusion reasons.
`
}

func (c *checkCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.exchange, "exchange", "", "Exchange hint (MIC code, suffix or alias such as NASDAQ).")
	f.BoolVar(&c.json, "json", false, "Print JSON instead of a table.")
	f.DurationVar(&c.timeout, "timeout", time.Minute, "Overall deadline.")
}

func (c *checkCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	l, err := ParseListing(f.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	if c.exchange != "" {
		l.Exchange = c.exchange
	}
	return run(ctx, c.load, c.timeout, func(ctx context.Context, rt *Runtime) error {
		st, err := rt.Screener.Evaluate(ctx, l.Ticker, l.Exchange)
		if err != nil {
			return err
		}
		if c.json {
			return writeJSON(c.out, st)
		}
		return writeStatus(c.out, st)
	})
}

type filterCmd struct {
	load         Loader
	out          io.Writer
	conservative bool
	json         bool
	timeout      time.Duration
}

func (*filterCmd) Name() string     { return "filter" }
func (*filterCmd) Synopsis() string { return "screen a list of tickers, excluding anything not proven compliant" }
func (*filterCmd) Usage() string {
	return `screen filter [-conservative=false] [-timeout 5m] [-json] <ticker[@exchange]>...

  Evaluates every listing concurrently. Only verified-compliant tickers are
  kept; unknown and non-compliant tickers are reported with reasons.
  Example: screen filter AAPL@NASDAQ BMW.DE JPM@NYSE
`
}

func (c *filterCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.conservative, "conservative", true, "Also exclude compliant tickers below the confidence threshold.")
	f.BoolVar(&c.json, "json", false, "Print JSON instead of tables.")
	f.DurationVar(&c.timeout, "timeout", 5*time.Minute, "Overall deadline for the batch.")
}

func (c *filterCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	listings := make([]entity.Listing, 0, f.NArg())
	for _, arg := range f.Args() {
		l, err := ParseListing(arg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitUsageError
		}
		listings = append(listings, l)
	}
	return run(ctx, c.load, c.timeout, func(ctx context.Context, rt *Runtime) error {
		return filterAndPrint(ctx, rt.Screener, listings, c.conservative, c.json, c.out)
	})
}

func filterAndPrint(ctx context.Context, s Screener, listings []entity.Listing, conservative, asJSON bool, out io.Writer) error {
	res, err := s.Filter(ctx, listings, conservative)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(out, res)
	}
	return writeFilterResult(out, res)
}

type universeCmd struct {
	load         Loader
	out          io.Writer
	exchanges    string
	limit        int
	conservative bool
	json         bool
	timeout      time.Duration
}

func (*universeCmd) Name() string     { return "universe" }
func (*universeCmd) Synopsis() string { return "pull the listings of exchanges and screen them" }
func (*universeCmd) Usage() string {
	return `screen universe -exchange <NASDAQ,XETR,...> [-limit N] [-conservative=false] [-json]

  Fetches common stocks from the listing source (TWELVE_DATA_API_KEY) and
  runs them through the filter.
`
}

func (c *universeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.exchanges, "exchange", "", "Comma-separated exchanges to pull listings from.")
	f.IntVar(&c.limit, "limit", 100, "Maximum number of listings to screen (0 = all).")
	f.BoolVar(&c.conservative, "conservative", true, "Also exclude compliant tickers below the confidence threshold.")
	f.BoolVar(&c.json, "json", false, "Print JSON instead of tables.")
	f.DurationVar(&c.timeout, "timeout", 30*time.Minute, "Overall deadline.")
}

func (c *universeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	exchanges := strings.Split(c.exchanges, ",")
	if strings.TrimSpace(c.exchanges) == "" {
		f.Usage()
		return subcommands.ExitUsageError
	}
	return run(ctx, c.load, c.timeout, func(ctx context.Context, rt *Runtime) error {
		if rt.Universe == nil {
			return errors.New("no listing source configured (set TWELVE_DATA_API_KEY)")
		}
		listings, err := rt.Universe.Collect(ctx, exchanges, c.limit)
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, "collected listings", "exchanges", exchanges, "count", len(listings))
		if len(listings) == 0 {
			return errors.New("no listings found")
		}
		return filterAndPrint(ctx, rt.Screener, listings, c.conservative, c.json, c.out)
	})
}

type auditCmd struct {
	load   Loader
	out    io.Writer
	ticker string
	stage  string
	limit  int
	since  time.Duration
}

func (*auditCmd) Name() string     { return "audit" }
func (*auditCmd) Synopsis() string { return "show recorded exclusion decisions" }
func (*auditCmd) Usage() string {
	return `screen audit [-ticker T] [-stage gateway|filter] [-since 24h] [-limit N]
`
}

func (c *auditCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.ticker, "ticker", "", "Only records for this ticker.")
	f.StringVar(&c.stage, "stage", "", "Only records from this stage (gateway or filter).")
	f.IntVar(&c.limit, "limit", usecase.DefaultAuditLimit, "Maximum number of records.")
	f.DurationVar(&c.since, "since", 0, "Only records newer than this age.")
}

func (c *auditCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.stage != "" && c.stage != string(entity.StageGateway) && c.stage != string(entity.StageFilter) {
		fmt.Fprintf(os.Stderr, "unknown stage %q\n", c.stage)
		return subcommands.ExitUsageError
	}
	q := usecase.AuditQuery{Ticker: c.ticker, Stage: entity.AuditStage(c.stage), Limit: c.limit}
	if c.since > 0 {
		q.Since = time.Now().Add(-c.since)
	}
	return run(ctx, c.load, time.Minute, func(ctx context.Context, rt *Runtime) error {
		recs, err := rt.Screener.Audit(ctx, q)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RECORDED_AT\tTICKER\tSTAGE\tVERDICT\tCONFIDENCE\tSOURCE\tREASONS")
		for _, r := range recs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", r.RecordedAt.Format(time.RFC3339), r.Ticker, r.Stage,
				r.Verdict, r.Confidence, r.DataSource, reasons(r.Reasons))
		}
		return tw.Flush()
	})
}

type exchangesCmd struct {
	load Loader
	out  io.Writer
}

func (*exchangesCmd) Name() string     { return "exchanges" }
func (*exchangesCmd) Synopsis() string { return "list supported exchanges and suffixes" }
func (*exchangesCmd) Usage() string    { return "screen exchanges\n" }
func (*exchangesCmd) SetFlags(*flag.FlagSet) {}

func (c *exchangesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, c.load, 0, func(ctx context.Context, rt *Runtime) error {
		tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "MIC\tSUFFIX\tREGION\tCOUNTRY\tNAME")
		for _, e := range rt.Screener.Exchanges() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Code, e.Suffix, e.Region, e.Country, e.Name)
		}
		return tw.Flush()
	})
}

type purgeCmd struct {
	load Loader
	out  io.Writer
}

func (*purgeCmd) Name() string     { return "purge" }
func (*purgeCmd) Synopsis() string { return "drop cached compliance verdicts" }
func (*purgeCmd) Usage() string {
	return `screen purge [ticker]

  Without a ticker the whole compliance namespace is purged.
`
}
func (*purgeCmd) SetFlags(*flag.FlagSet) {}

func (c *purgeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() > 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	ticker := f.Arg(0)
	return run(ctx, c.load, time.Minute, func(ctx context.Context, rt *Runtime) error {
		if err := rt.Screener.Purge(ctx, ticker); err != nil {
			return err
		}
		if ticker == "" {
			fmt.Fprintln(c.out, "purged compliance cache")
		} else {
			fmt.Fprintf(c.out, "purged %s\n", ticker)
		}
		return nil
	})
}

type reportsCmd struct {
	load    Loader
	out     io.Writer
	status  string
	max     int
	screen  bool
	json    bool
	timeout time.Duration
}

func (*reportsCmd) Name() string     { return "reports" }
func (*reportsCmd) Synopsis() string { return "list every provider report with a given status" }
func (*reportsCmd) Usage() string {
	return `screen reports [-status COMPLIANT] [-max N] [-screen] [-json]

  Pages through the provider's full stock report listing (zoya only).
  With -screen the listed symbols are run through the filter as well.
`
}

func (c *reportsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.status, "status", "COMPLIANT", "Status filter (COMPLIANT, NOT_COMPLIANT, QUESTIONABLE; empty = all).")
	f.IntVar(&c.max, "max", 0, "Maximum number of reports (0 = all pages).")
	f.BoolVar(&c.screen, "screen", false, "Screen the listed symbols instead of printing the raw reports.")
	f.BoolVar(&c.json, "json", false, "Print JSON instead of tables.")
	f.DurationVar(&c.timeout, "timeout", 30*time.Minute, "Overall deadline.")
}

func (c *reportsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, c.load, c.timeout, func(ctx context.Context, rt *Runtime) error {
		if rt.Reports == nil {
			return errors.New("bulk report listing needs COMPLIANCE_PROVIDER=zoya")
		}
		reports, err := rt.Reports.Reports(ctx, c.status, c.max)
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, "fetched provider reports", "status", c.status, "count", len(reports))

		if c.screen {
			if len(reports) == 0 {
				return errors.New("no reports found")
			}
			listings := make([]entity.Listing, len(reports))
			for i, r := range reports {
				listings[i] = entity.Listing{Ticker: r.Symbol, Exchange: r.Exchange}
			}
			return filterAndPrint(ctx, rt.Screener, listings, true, c.json, c.out)
		}
		if c.json {
			return writeJSON(c.out, reportRows(reports))
		}
		return writeReports(c.out, reports)
	})
}
