// Package dto はcomplianceフィーチャーのHTTPトランスポート層のデータ転送オブジェクトを定義します。
package dto

import "time"

// ListingReq はフィルタ対象の1銘柄です。
type ListingReq struct {
	Ticker   string `json:"ticker" binding:"required,max=32"`
	Exchange string `json:"exchange" binding:"max=32"`
}

// FilterReq は/compliance/filterエンドポイントのリクエストボディを表します。
// conservative を省略した場合は保守的モードになります。
type FilterReq struct {
	Listings     []ListingReq `json:"listings" binding:"required,min=1,max=1000,dive"`
	Conservative *bool        `json:"conservative"`
}

// AuditQueryReq は/compliance/auditエンドポイントのクエリパラメータを表します。
type AuditQueryReq struct {
	Ticker string    `form:"ticker" binding:"max=32"`
	Stage  string    `form:"stage" binding:"omitempty,oneof=gateway filter"`
	Since  time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit  int       `form:"limit" binding:"omitempty,min=1,max=1000"`
}
