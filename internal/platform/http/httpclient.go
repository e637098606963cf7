package http

import (
	"net"
	"net/http"
	"time"
)

// ClientConfig は外部プロバイダ呼び出し用 HTTP クライアントの設定です。
type ClientConfig struct {
	Timeout             time.Duration // リクエスト全体のタイムアウト
	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration
	MaxIdleConnsPerHost int
}

// DefaultClientConfig はコンプライアンスプロバイダ向けの既定値を返します。
func DefaultClientConfig(timeout time.Duration) ClientConfig {
	return ClientConfig{
		Timeout:             timeout,
		DialTimeout:         5 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
		MaxIdleConnsPerHost: 16,
	}
}

// NewHTTPClient は外部API呼び出し用に設定されたHTTPクライアントを作成します。
//
// 注意:
//   - http.DefaultClientにはタイムアウトがないため、常にカスタムクライアントを使用すること
//   - バッチ処理は同一ホストへ並列に問い合わせるため MaxIdleConnsPerHost を既定の 2 より大きくする
func NewHTTPClient(cfg ClientConfig) *http.Client {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.TLSHandshakeTimeout <= 0 {
		cfg.TLSHandshakeTimeout = 5 * time.Second
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 16
	}
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: cfg.TLSHandshakeTimeout,
	}
	return &http.Client{Timeout: cfg.Timeout, Transport: t}
}
