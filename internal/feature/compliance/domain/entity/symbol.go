// Package entity defines the value types of the compliance screening pipeline.
package entity

import (
	"fmt"
	"strings"
	"time"
)

// MarketRegion groups exchanges by geography.
type MarketRegion string

const (
	RegionUS    MarketRegion = "US"
	RegionEU    MarketRegion = "EU"
	RegionUK    MarketRegion = "UK"
	RegionAsia  MarketRegion = "ASIA"
	RegionOther MarketRegion = "OTHER"
)

// ParseMarketRegion maps a region label onto a MarketRegion.
func ParseMarketRegion(s string) (MarketRegion, error) {
	switch r := MarketRegion(strings.ToUpper(strings.TrimSpace(s))); r {
	case RegionUS, RegionEU, RegionUK, RegionAsia, RegionOther:
		return r, nil
	}
	return "", fmt.Errorf("unknown market region %q", s)
}

// Confidence is ordered: Low < Medium < High.
// The zero value is Low so an unset confidence never passes a threshold.
type Confidence int8

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "HIGH"
	case ConfidenceMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// ParseConfidence parses HIGH, MEDIUM or LOW (case-insensitive).
func ParseConfidence(s string) (Confidence, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HIGH":
		return ConfidenceHigh, nil
	case "MEDIUM":
		return ConfidenceMedium, nil
	case "LOW":
		return ConfidenceLow, nil
	}
	return ConfidenceLow, fmt.Errorf("unknown confidence %q", s)
}

func (c Confidence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Confidence) UnmarshalText(b []byte) error {
	v, err := ParseConfidence(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// MinConfidence returns the weakest of the given confidences.
func MinConfidence(first Confidence, rest ...Confidence) Confidence {
	m := first
	for _, c := range rest {
		if c < m {
			m = c
		}
	}
	return m
}

// NormalizedSymbol is the result of mapping a vendor ticker onto a base symbol.
// It is created per call and never persisted on its own.
type NormalizedSymbol struct {
	BaseSymbol          string       `json:"base_symbol"`
	OriginalTicker      string       `json:"original_ticker"`
	ExchangeCode        string       `json:"exchange_code,omitempty"`
	MarketRegion        MarketRegion `json:"market_region,omitempty"`
	Confidence          Confidence   `json:"confidence"`
	TransformationNotes []string     `json:"transformation_notes,omitempty"`
	Timestamp           time.Time    `json:"timestamp"`
	SourceGateway       string       `json:"source_gateway,omitempty"`
}

// Listing is a (ticker, exchange) pair supplied by a market-data source or a caller.
type Listing struct {
	Ticker   string `json:"ticker"`
	Exchange string `json:"exchange,omitempty"`
}
