package entity

import (
	"bytes"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Verdict is the tri-state compliance classification.
// The zero value is VerdictUnknown.
type Verdict int8

const (
	VerdictUnknown Verdict = iota
	VerdictCompliant
	VerdictNonCompliant
)

func (v Verdict) String() string {
	switch v {
	case VerdictCompliant:
		return "compliant"
	case VerdictNonCompliant:
		return "non-compliant"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the verdict as true, false or null.
func (v Verdict) MarshalJSON() ([]byte, error) {
	switch v {
	case VerdictCompliant:
		return []byte("true"), nil
	case VerdictNonCompliant:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

func (v *Verdict) UnmarshalJSON(b []byte) error {
	switch string(bytes.TrimSpace(b)) {
	case "true":
		*v = VerdictCompliant
	case "false":
		*v = VerdictNonCompliant
	case "null":
		*v = VerdictUnknown
	default:
		return fmt.Errorf("invalid verdict %s", b)
	}
	return nil
}

// ReasonCode explains why a security was excluded.
type ReasonCode string

const (
	ReasonUnverified          ReasonCode = "UNVERIFIED"
	ReasonNotFound            ReasonCode = "NOT_FOUND"
	ReasonProviderUnavailable ReasonCode = "PROVIDER_UNAVAILABLE"
	ReasonMalformedPayload    ReasonCode = "MALFORMED_PAYLOAD"
	ReasonUnrecognizedStatus  ReasonCode = "UNRECOGNIZED_STATUS"
	ReasonQuestionable        ReasonCode = "QUESTIONABLE"
	ReasonNonCompliant        ReasonCode = "NON_COMPLIANT"
	ReasonInvalidTicker       ReasonCode = "INVALID_TICKER"
	ReasonBanking             ReasonCode = "BANKING"
)

// ReasonFromProvider turns a free-form provider reason into a code, e.g. "conventional banking" -> CONVENTIONAL_BANKING.
func ReasonFromProvider(s string) ReasonCode {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, s)
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return ReasonCode(strings.Trim(s, "_"))
}

// DataSourceUnavailable marks a verdict synthesized after the provider could not be reached.
const DataSourceUnavailable = "unavailable"

// ComplianceStatus is the screening verdict for one ticker.
type ComplianceStatus struct {
	Ticker            string            `json:"ticker"`
	IsCompliant       Verdict           `json:"is_compliant"`
	Confidence        Confidence        `json:"confidence"`
	ExclusionReasons  []ReasonCode      `json:"exclusion_reasons,omitempty"`
	DataSource        string            `json:"data_source"`
	LastUpdated       time.Time         `json:"last_updated"`
	CompanyName       string            `json:"company_name,omitempty"`
	PurificationRatio *decimal.Decimal  `json:"purification_ratio,omitempty"`
	ComplianceScore   *decimal.Decimal  `json:"compliance_score,omitempty"`
	NormalizedFrom    *NormalizedSymbol `json:"normalized_from,omitempty"`
}

// AddReason adds r to the reason set, keeping it sorted and free of duplicates.
func (s *ComplianceStatus) AddReason(r ReasonCode) {
	if r == "" || slices.Contains(s.ExclusionReasons, r) {
		return
	}
	s.ExclusionReasons = append(s.ExclusionReasons, r)
	slices.Sort(s.ExclusionReasons)
}

// ScoreFromPurification derives a 0-100 compliance score from a purification
// ratio in [0, 1]. A nil ratio yields a nil score.
func ScoreFromPurification(ratio *decimal.Decimal) *decimal.Decimal {
	if ratio == nil {
		return nil
	}
	hundred := decimal.NewFromInt(100)
	score := hundred.Sub(ratio.Mul(hundred))
	if score.IsNegative() {
		score = decimal.Zero
	}
	return &score
}

// HasReason reports whether r is in the reason set.
func (s ComplianceStatus) HasReason(r ReasonCode) bool {
	return slices.Contains(s.ExclusionReasons, r)
}

// ProviderReport is the raw, unmapped answer of a compliance provider.
type ProviderReport struct {
	Symbol            string
	Name              string
	Exchange          string
	RawStatus         string
	Reasons           []string
	ReportDate        time.Time
	PurificationRatio *decimal.Decimal
	Source            string
}
