// Package dto defines data transfer objects for the Zoya GraphQL API.
package dto

import "github.com/shopspring/decimal"

// GraphQLRequest is the POST body of every Zoya query.
type GraphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// GraphQLError is one entry of the top-level "errors" array.
type GraphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// Report is a basic compliance report for one symbol.
type Report struct {
	Symbol            string           `json:"symbol"`
	Name              string           `json:"name"`
	Exchange          string           `json:"exchange"`
	Status            string           `json:"status"`
	ReportDate        string           `json:"reportDate"`
	PurificationRatio *decimal.Decimal `json:"purificationRatio"`
}

// ReportResponse represents the response of the basicCompliance.report query.
type ReportResponse struct {
	Data *struct {
		BasicCompliance *struct {
			Report *Report `json:"report"`
		} `json:"basicCompliance"`
	} `json:"data"`
	Errors []GraphQLError `json:"errors,omitempty"`
}

// ReportsPage is one page of the basicCompliance.reports listing.
type ReportsPage struct {
	NextToken *string  `json:"nextToken"`
	Items     []Report `json:"items"`
}

// ReportsResponse represents the response of the basicCompliance.reports query.
type ReportsResponse struct {
	Data *struct {
		BasicCompliance *struct {
			Reports *ReportsPage `json:"reports"`
		} `json:"basicCompliance"`
	} `json:"data"`
	Errors []GraphQLError `json:"errors,omitempty"`
}
