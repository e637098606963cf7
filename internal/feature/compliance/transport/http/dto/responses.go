package dto

import "compliance_screener/internal/feature/compliance/domain/entity"

// ErrorResponse はエラー時のレスポンスDTOです。
type ErrorResponse struct {
	Error string `json:"error"`
}

// AuditResponse は監査ログ検索のレスポンスDTOです。
type AuditResponse struct {
	Records []entity.AuditRecord `json:"records"`
	Count   int                  `json:"count"`
}

// ExchangesResponse は対応取引所一覧のレスポンスDTOです。
type ExchangesResponse struct {
	Exchanges []entity.ExchangeMapping `json:"exchanges"`
	Count     int                      `json:"count"`
}
