// Package twelvedata はTwelve Data APIから上場銘柄一覧を取得するクライアントを提供します。
package twelvedata

import "time"

// DefaultBaseURL はTwelve Data APIのベースURLです。
const DefaultBaseURL = "https://api.twelvedata.com"

// Config はTwelve Data APIクライアントの設定を保持します。
type Config struct {
	APIKey  string        // 認証用APIキー
	BaseURL string        // APIのベースURL（空の場合は DefaultBaseURL）
	Timeout time.Duration // HTTPリクエストタイムアウト
}
