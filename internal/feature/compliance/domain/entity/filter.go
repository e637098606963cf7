package entity

// UnknownLabel is attached to every excluded entry whose verdict is unknown.
const UnknownLabel = "no verified compliance data"

// Exclusion is a ticker rejected by the filter together with the reasons.
type Exclusion struct {
	Status  ComplianceStatus `json:"status"`
	Reasons []ReasonCode     `json:"reasons"`
	Label   string           `json:"label,omitempty"`
}

// Summary counts the outcome of a screening batch.
type Summary struct {
	Total        int `json:"total"`
	Compliant    int `json:"compliant"`
	NonCompliant int `json:"non_compliant"`
	Unknown      int `json:"unknown"`
	Excluded     int `json:"excluded"`
}

// FilterResult splits a batch into verified-compliant and excluded tickers.
type FilterResult struct {
	Compliant    []ComplianceStatus `json:"compliant"`
	Excluded     []Exclusion        `json:"excluded"`
	Summary      Summary            `json:"summary"`
	Conservative bool               `json:"conservative"`
}
