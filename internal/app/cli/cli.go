// Package cli はバッチスクリーニング用のサブコマンドを提供します。
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"

	"compliance_screener/internal/feature/compliance/domain/entity"
	"compliance_screener/internal/feature/compliance/usecase"
)

// Screener is the compliance service as seen from the command line.
type Screener interface {
	Evaluate(ctx context.Context, ticker, exchangeHint string) (entity.ComplianceStatus, error)
	Filter(ctx context.Context, listings []entity.Listing, conservative bool) (*entity.FilterResult, error)
	Audit(ctx context.Context, q usecase.AuditQuery) ([]entity.AuditRecord, error)
	Exchanges() []entity.ExchangeMapping
	Purge(ctx context.Context, ticker string) error
}

// ListingCollector pulls (ticker, exchange) pairs for exchanges.
type ListingCollector interface {
	Collect(ctx context.Context, exchanges []string, limit int) ([]entity.Listing, error)
}

// ReportLister pages through a provider's full report listing.
type ReportLister interface {
	Reports(ctx context.Context, statusFilter string, max int) ([]entity.ProviderReport, error)
}

// Runtime is what a command needs once configuration has been loaded.
type Runtime struct {
	Screener Screener
	Universe ListingCollector // nil when no listing source is configured
	Reports  ReportLister     // nil when the provider has no bulk listing
	Close    func()
}

// Loader builds the Runtime. Commands call it only after their flags parsed.
type Loader func(ctx context.Context) (*Runtime, error)

// Commands returns every screening subcommand writing to out.
func Commands(load Loader, out io.Writer) []subcommands.Command {
	return []subcommands.Command{
		&checkCmd{load: load, out: out},
		&filterCmd{load: load, out: out},
		&universeCmd{load: load, out: out},
		&auditCmd{load: load, out: out},
		&exchangesCmd{load: load, out: out},
		&purgeCmd{load: load, out: out},
		&reportsCmd{load: load, out: out},
	}
}

// ParseListing parses "TICKER" or "TICKER@EXCHANGE".
func ParseListing(arg string) (entity.Listing, error) {
	ticker, exchange, _ := strings.Cut(strings.TrimSpace(arg), "@")
	if ticker == "" {
		return entity.Listing{}, fmt.Errorf("empty ticker in %q", arg)
	}
	return entity.Listing{Ticker: ticker, Exchange: exchange}, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func reasons(rs []entity.ReasonCode) string {
	if len(rs) == 0 {
		return "-"
	}
	s := make([]string, len(rs))
	for i, r := range rs {
		s[i] = string(r)
	}
	return strings.Join(s, ",")
}

func writeStatus(out io.Writer, st entity.ComplianceStatus) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TICKER\tVERDICT\tCONFIDENCE\tSOURCE\tREASONS")
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", st.Ticker, st.IsCompliant, st.Confidence, st.DataSource, reasons(st.ExclusionReasons))
	return tw.Flush()
}

func writeFilterResult(out io.Writer, res *entity.FilterResult) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "COMPLIANT (%d)\n", len(res.Compliant))
	fmt.Fprintln(tw, "TICKER\tCONFIDENCE\tSOURCE\tSCORE")
	for _, st := range res.Compliant {
		score := "-"
		if st.ComplianceScore != nil {
			score = st.ComplianceScore.StringFixed(2)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", st.Ticker, st.Confidence, st.DataSource, score)
	}
	fmt.Fprintf(tw, "\nEXCLUDED (%d)\n", len(res.Excluded))
	fmt.Fprintln(tw, "TICKER\tVERDICT\tCONFIDENCE\tREASONS")
	for _, ex := range res.Excluded {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ex.Status.Ticker, ex.Status.IsCompliant, ex.Status.Confidence, reasons(ex.Reasons))
	}
	s := res.Summary
	fmt.Fprintf(tw, "\ntotal=%d compliant=%d non_compliant=%d unknown=%d excluded=%d conservative=%t\n",
		s.Total, s.Compliant, s.NonCompliant, s.Unknown, s.Excluded, res.Conservative)
	return tw.Flush()
}

type reportRow struct {
	Symbol     string `json:"symbol"`
	Name       string `json:"name,omitempty"`
	Exchange   string `json:"exchange,omitempty"`
	Status     string `json:"status"`
	ReportDate string `json:"report_date,omitempty"`
}

func reportRows(reports []entity.ProviderReport) map[string]any {
	rows := make([]reportRow, len(reports))
	for i, r := range reports {
		rows[i] = reportRow{Symbol: r.Symbol, Name: r.Name, Exchange: r.Exchange, Status: r.RawStatus}
		if !r.ReportDate.IsZero() {
			rows[i].ReportDate = r.ReportDate.Format("2006-01-02")
		}
	}
	return map[string]any{"total_count": len(rows), "reports": rows}
}

// writeReports prints the reports followed by a per-exchange count.
func writeReports(out io.Writer, reports []entity.ProviderReport) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tEXCHANGE\tSTATUS\tNAME")
	byExchange := map[string]int{}
	for _, r := range reports {
		ex := r.Exchange
		if ex == "" {
			ex = "-"
		}
		byExchange[ex]++
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Symbol, ex, r.RawStatus, r.Name)
	}
	fmt.Fprintf(tw, "\ntotal=%d\n", len(reports))
	for _, ex := range slices.Sorted(maps.Keys(byExchange)) {
		fmt.Fprintf(tw, "%s\t%d\n", ex, byExchange[ex])
	}
	return tw.Flush()
}
