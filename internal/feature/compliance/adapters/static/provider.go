// Package static serves compliance reports from a local CSV file.
//
// The file has a header row and the columns
//
//	ticker,is_compliant,reasons,source,last_updated
//
// is_compliant is true, false or empty (unknown); reasons are separated by "|".
package static

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"compliance_screener/internal/feature/compliance/domain"
	"compliance_screener/internal/feature/compliance/domain/entity"
	"compliance_screener/internal/feature/compliance/gateway"
)

// Name is the data source reported for entries without a source column.
const Name = "static"

var columns = []string{"ticker", "is_compliant", "reasons", "source", "last_updated"}

// Provider is an in-memory, read-only Provider.
type Provider struct {
	reports map[string]entity.ProviderReport
}

var _ gateway.Provider = (*Provider)(nil)

// Open loads path. A missing file yields an empty provider so every symbol
// comes back as not found.
func Open(path string) (*Provider, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("static compliance data file not found; every symbol will be unknown", "path", path)
		return &Provider{reports: map[string]entity.ProviderReport{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrConfiguration, path, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("failed to close static compliance file", "error", err)
		}
	}()

	p, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	slog.Info("loaded static compliance data", "path", path, "symbols", p.Len())
	return p, nil
}

// Load parses CSV records from r.
func Load(r io.Reader) (*Provider, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return &Provider{reports: map[string]entity.ProviderReport{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", domain.ErrConfiguration, err)
	}
	idx, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	reports := make(map[string]entity.ProviderReport)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", domain.ErrConfiguration, line, err)
		}
		rep, err := parseRecord(rec, idx)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", domain.ErrConfiguration, line, err)
		}
		if rep.Symbol == "" {
			continue
		}
		reports[rep.Symbol] = rep
	}
	return &Provider{reports: reports}, nil
}

// Name returns "static".
func (p *Provider) Name() string { return Name }

// Len returns the number of symbols loaded.
func (p *Provider) Len() int { return len(p.reports) }

// Fetch returns the stored report, or nil when the symbol is absent.
func (p *Provider) Fetch(ctx context.Context, symbol string) (*entity.ProviderReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rep, ok := p.reports[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return nil, nil
	}
	rep.Reasons = append([]string(nil), rep.Reasons...)
	return &rep, nil
}

func columnIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, c := range columns[:2] {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", domain.ErrConfiguration, c)
		}
	}
	return idx, nil
}

func field(rec []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func parseRecord(rec []string, idx map[string]int) (entity.ProviderReport, error) {
	rep := entity.ProviderReport{
		Symbol: strings.ToUpper(field(rec, idx, "ticker")),
		Source: field(rec, idx, "source"),
	}
	if rep.Source == "" {
		rep.Source = Name
	}

	switch v := field(rec, idx, "is_compliant"); v {
	case "":
		rep.RawStatus = "questionable"
	default:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return rep, fmt.Errorf("is_compliant %q: %v", v, err)
		}
		rep.RawStatus = "not-compliant"
		if b {
			rep.RawStatus = "compliant"
		}
	}

	for _, r := range strings.Split(field(rec, idx, "reasons"), "|") {
		if r = strings.TrimSpace(r); r != "" {
			rep.Reasons = append(rep.Reasons, r)
		}
	}

	if d := field(rec, idx, "last_updated"); d != "" {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			return rep, fmt.Errorf("last_updated %q: %v", d, err)
		}
		rep.ReportDate = t
	}
	return rep, nil
}
