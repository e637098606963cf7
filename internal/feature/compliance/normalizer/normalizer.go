// Package normalizer maps vendor tickers (BMW.DE, BRK.B, AAPL) onto base symbols.
package normalizer

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"compliance_screener/internal/feature/compliance/domain/entity"
)

//go:embed exchanges.yaml
var defaultTable []byte

// table is the on-disk layout of exchanges.yaml.
type table struct {
	Version          int                      `yaml:"version"`
	PreserveSuffixes []string                 `yaml:"preserve_suffixes"`
	USVenues         []entity.ExchangeMapping `yaml:"us_venues"`
	Exchanges        []entity.ExchangeMapping `yaml:"exchanges"`
}

var tickerPattern = regexp.MustCompile(`^[A-Z0-9^][A-Z0-9.\-&/=]{0,19}$`)

// Normalizer is read-only after construction and safe for concurrent use.
type Normalizer struct {
	version   int
	bySuffix  map[string]entity.ExchangeMapping
	byHint    map[string]entity.ExchangeMapping
	suffixes  []string // longest first
	preserve  []string // longest first
	exchanges []entity.ExchangeMapping
	now       func() time.Time
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// New builds a Normalizer from the embedded exchange table.
func New(opts ...Option) (*Normalizer, error) {
	return Load(defaultTable, opts...)
}

// LoadFile builds a Normalizer from an exchange table on disk.
func LoadFile(path string, opts ...Option) (*Normalizer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read exchange table: %w", err)
	}
	return Load(raw, opts...)
}

// Load parses a YAML exchange table.
func Load(raw []byte, opts ...Option) (*Normalizer, error) {
	var t table
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("parse exchange table: %w", err)
	}

	n := &Normalizer{
		version:  t.Version,
		bySuffix: make(map[string]entity.ExchangeMapping, len(t.Exchanges)),
		byHint:   make(map[string]entity.ExchangeMapping),
		now:      time.Now,
	}
	for _, o := range opts {
		o(n)
	}

	for _, m := range t.Exchanges {
		m.Suffix = strings.ToUpper(strings.TrimSpace(m.Suffix))
		m.Code = strings.ToUpper(strings.TrimSpace(m.Code))
		if len(m.Suffix) < 2 || (m.Suffix[0] != '.' && m.Suffix[0] != '-') {
			return nil, fmt.Errorf("exchange %s: invalid suffix %q", m.Code, m.Suffix)
		}
		if m.Code == "" {
			return nil, fmt.Errorf("exchange suffix %s: missing code", m.Suffix)
		}
		region, err := entity.ParseMarketRegion(string(m.Region))
		if err != nil {
			return nil, fmt.Errorf("exchange %s: %w", m.Code, err)
		}
		m.Region = region
		if _, dup := n.bySuffix[m.Suffix]; dup {
			return nil, fmt.Errorf("duplicate exchange suffix %s", m.Suffix)
		}
		n.bySuffix[m.Suffix] = m
		n.suffixes = append(n.suffixes, m.Suffix)
		n.exchanges = append(n.exchanges, m)
		n.addHints(m, m.Code, m.Suffix[1:])
	}
	for _, m := range t.USVenues {
		m.Code = strings.ToUpper(strings.TrimSpace(m.Code))
		m.Region = entity.RegionUS
		m.Country = "US"
		n.exchanges = append(n.exchanges, m)
		n.addHints(m, m.Code)
	}
	for _, p := range t.PreserveSuffixes {
		n.preserve = append(n.preserve, strings.ToUpper(strings.TrimSpace(p)))
	}

	longestFirst := func(a, b string) int {
		if len(a) != len(b) {
			return len(b) - len(a)
		}
		return strings.Compare(a, b)
	}
	slices.SortFunc(n.suffixes, longestFirst)
	slices.SortFunc(n.preserve, longestFirst)
	return n, nil
}

func (n *Normalizer) addHints(m entity.ExchangeMapping, keys ...string) {
	keys = append(keys, m.Aliases...)
	for _, k := range keys {
		k = strings.ToUpper(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		// first writer wins so a MIC code is never shadowed by a later alias
		if _, ok := n.byHint[k]; !ok {
			n.byHint[k] = m
		}
	}
}

// Version returns the exchange table version.
func (n *Normalizer) Version() int { return n.version }

// Valid reports whether ticker is well-formed enough to look up.
func (n *Normalizer) Valid(ticker string) bool {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if !tickerPattern.MatchString(t) {
		return false
	}
	if strings.Contains(t, "..") || strings.HasSuffix(t, ".") || strings.HasSuffix(t, "-") {
		return false
	}
	return true
}

// Normalize maps ticker onto its base symbol. It never fails: input it cannot
// make sense of comes back verbatim with LOW confidence.
func (n *Normalizer) Normalize(ticker, exchangeHint, sourceGateway string) entity.NormalizedSymbol {
	out := entity.NormalizedSymbol{
		OriginalTicker: ticker,
		BaseSymbol:     ticker,
		Confidence:     entity.ConfidenceLow,
		Timestamp:      n.now().UTC(),
		SourceGateway:  sourceGateway,
	}

	if !n.Valid(ticker) {
		out.TransformationNotes = append(out.TransformationNotes, "unrecognized ticker format")
		return out
	}
	t := strings.ToUpper(strings.TrimSpace(ticker))

	hint, hintOK := n.resolveHint(exchangeHint)
	if strings.TrimSpace(exchangeHint) != "" && !hintOK {
		out.TransformationNotes = append(out.TransformationNotes, fmt.Sprintf("unrecognized exchange hint %s", exchangeHint))
	}

	// 1) special suffixes are part of the symbol
	if p := n.preservedSuffix(t); p != "" {
		out.BaseSymbol = t
		out.TransformationNotes = append(out.TransformationNotes, fmt.Sprintf("preserved special suffix %s", p))
		n.applyHint(&out, hint, hintOK)
		return out
	}

	// 2) known exchange suffix, longest match first
	if m, ok := n.exchangeSuffix(t); ok {
		base := t[:len(t)-len(m.Suffix)]
		if n.stacked(base) {
			out.TransformationNotes = append(out.TransformationNotes, "ambiguous stacked exchange suffixes")
			return out
		}
		out.BaseSymbol = base
		out.ExchangeCode = m.Code
		out.MarketRegion = m.Region
		out.Confidence = entity.ConfidenceHigh
		out.TransformationNotes = append(out.TransformationNotes, fmt.Sprintf("stripped exchange suffix %s (%s)", m.Suffix, m.Code))
		if hintOK && hint.Code != m.Code {
			out.Confidence = entity.ConfidenceLow
			out.TransformationNotes = append(out.TransformationNotes,
				fmt.Sprintf("exchange hint %s conflicts with suffix %s (%s)", exchangeHint, m.Suffix, m.Code))
		}
		return out
	}

	// 3) unrecognized short alphabetic suffix
	if base, suffix, ok := heuristicSuffix(t); ok {
		out.BaseSymbol = base
		out.Confidence = entity.ConfidenceMedium
		out.TransformationNotes = append(out.TransformationNotes, fmt.Sprintf("stripped unrecognized suffix %s", suffix))
		if hintOK {
			out.ExchangeCode = hint.Code
			out.MarketRegion = hint.Region
		}
		return out
	}

	// 4) plain symbol
	out.BaseSymbol = t
	n.applyHint(&out, hint, hintOK)
	return out
}

// BaseSymbol is a shorthand for Normalize(ticker, "", "").BaseSymbol.
func (n *Normalizer) BaseSymbol(ticker string) string {
	return n.Normalize(ticker, "", "").BaseSymbol
}

// applyHint fills exchange data from a resolved hint. Without one the listing
// is assumed to be US and the result stays LOW.
func (n *Normalizer) applyHint(out *entity.NormalizedSymbol, hint entity.ExchangeMapping, ok bool) {
	if !ok {
		out.MarketRegion = entity.RegionUS
		out.Confidence = entity.ConfidenceLow
		out.TransformationNotes = append(out.TransformationNotes, "no exchange suffix or hint; assuming US listing")
		return
	}
	out.ExchangeCode = hint.Code
	out.MarketRegion = hint.Region
	out.Confidence = entity.ConfidenceHigh
	out.TransformationNotes = append(out.TransformationNotes, fmt.Sprintf("exchange hint resolved to %s", hint.Code))
}

// stacked reports whether base would itself be stripped again on a second pass.
func (n *Normalizer) stacked(base string) bool {
	if _, ok := n.exchangeSuffix(base); ok {
		return true
	}
	if n.preservedSuffix(base) != "" {
		return false
	}
	_, _, ok := heuristicSuffix(base)
	return ok
}

func (n *Normalizer) preservedSuffix(t string) string {
	for _, p := range n.preserve {
		if len(t) > len(p) && strings.HasSuffix(t, p) {
			return p
		}
	}
	return ""
}

func (n *Normalizer) exchangeSuffix(t string) (entity.ExchangeMapping, bool) {
	for _, s := range n.suffixes {
		if len(t) > len(s) && strings.HasSuffix(t, s) {
			return n.bySuffix[s], true
		}
	}
	return entity.ExchangeMapping{}, false
}

func (n *Normalizer) resolveHint(hint string) (entity.ExchangeMapping, bool) {
	h := strings.ToUpper(strings.TrimSpace(hint))
	if h == "" {
		return entity.ExchangeMapping{}, false
	}
	if m, ok := n.bySuffix[h]; ok {
		return m, true
	}
	m, ok := n.byHint[strings.TrimLeft(h, ".")]
	return m, ok
}

// heuristicSuffix strips a trailing ".XYZ" of one to three letters when the
// remainder contains no further dot.
func heuristicSuffix(t string) (base, suffix string, ok bool) {
	i := strings.LastIndexByte(t, '.')
	if i <= 0 {
		return "", "", false
	}
	base, rest := t[:i], t[i+1:]
	if len(rest) < 1 || len(rest) > 3 || strings.ContainsAny(base, ".") {
		return "", "", false
	}
	for _, r := range rest {
		if r < 'A' || r > 'Z' {
			return "", "", false
		}
	}
	return base, t[i:], true
}

// ExchangeInfo looks up an exchange by suffix (".DE"), MIC code ("XETR") or alias ("NASDAQ").
func (n *Normalizer) ExchangeInfo(s string) (entity.ExchangeMapping, bool) {
	return n.resolveHint(s)
}

// Exchanges returns every known exchange, suffixed ones first.
func (n *Normalizer) Exchanges() []entity.ExchangeMapping {
	return slices.Clone(n.exchanges)
}
