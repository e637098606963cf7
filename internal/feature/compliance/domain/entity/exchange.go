package entity

// ExchangeMapping describes one exchange a ticker suffix or hint resolves to.
type ExchangeMapping struct {
	Suffix  string       `json:"suffix,omitempty" yaml:"suffix"`
	Code    string       `json:"code" yaml:"code"`
	Name    string       `json:"name" yaml:"name"`
	Region  MarketRegion `json:"region" yaml:"region"`
	Country string       `json:"country" yaml:"country"`
	Aliases []string     `json:"aliases,omitempty" yaml:"aliases"`
}
