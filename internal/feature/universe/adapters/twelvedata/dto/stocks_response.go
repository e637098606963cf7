// Package dto defines data transfer objects for the Twelve Data API responses.
package dto

// StocksResponse represents the JSON response from the Twelve Data /stocks endpoint.
type StocksResponse struct {
	Status  string `json:"status"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Data    []struct {
		Symbol   string `json:"symbol"`
		Name     string `json:"name"`
		Currency string `json:"currency"`
		Exchange string `json:"exchange"`
		MICCode  string `json:"mic_code"`
		Country  string `json:"country"`
		Type     string `json:"type"`
	} `json:"data"`
}
