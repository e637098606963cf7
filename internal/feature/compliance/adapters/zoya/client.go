package zoya

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"compliance_screener/internal/feature/compliance/adapters/zoya/dto"
	"compliance_screener/internal/feature/compliance/domain"
	"compliance_screener/internal/feature/compliance/domain/entity"
	"compliance_screener/internal/feature/compliance/gateway"
)

const reportQuery = `query BasicReport($symbol: String!) {
  basicCompliance {
    report(symbol: $symbol) {
      symbol
      name
      exchange
      status
      reportDate
      purificationRatio
    }
  }
}`

// reportsQuery lists basic stock reports one page at a time.
// The input object is inlined because the API exposes no variable type for it.
const reportsQuery = `query StockReports {
  basicCompliance {
    reports%s {
      nextToken
      items {
        symbol
        name
        exchange
        status
        reportDate
        purificationRatio
      }
    }
  }
}`

// maxBodyBytes caps how much of a response is read.
const maxBodyBytes = 8 << 20

// statusFilterPattern guards the status filter, which is inlined as a GraphQL enum.
var statusFilterPattern = regexp.MustCompile(`^[A-Z][A-Z_]*$`)

// Client はZoya GraphQL APIからコンプライアンスレポートを取得するProvider実装です。
type Client struct {
	apiKey string
	env    string
	url    string
	client *http.Client
	pace   func(ctx context.Context) error
}

// ClientOption は Client の設定を変更します。
type ClientOption func(*Client)

// WithPacer は Reports が各ページ取得前に呼ぶ待機関数を設定します（レートリミット用）。
// 単一銘柄の Fetch はゲートウェイ側で制御されるため対象外です。
func WithPacer(pace func(ctx context.Context) error) ClientOption {
	return func(c *Client) { c.pace = pace }
}

// ClientがProviderを実装していることをコンパイル時に検証します。
var _ gateway.Provider = (*Client)(nil)

// NewClient は設定を検証してClientを生成します。
// APIキーが空の場合は domain.ErrConfiguration を返します。
func NewClient(cfg Config, client *http.Client, opts ...ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: zoya api key is empty", domain.ErrConfiguration)
	}
	env, inferred := cfg.ResolveEnvironment()
	if cfg.Environment == "" && !inferred {
		slog.Warn("could not infer zoya environment from api key prefix; defaulting to sandbox",
			"api_key", MaskKey(cfg.APIKey))
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	c := &Client{apiKey: cfg.APIKey, env: env, url: cfg.Endpoint(env), client: client}
	for _, o := range opts {
		o(c)
	}
	slog.Info("zoya client initialized", "environment", env, "api_url", c.url, "api_key", MaskKey(cfg.APIKey))
	return c, nil
}

// Name はデータソース名を返します（例: "zoya-sandbox"）。
func (c *Client) Name() string { return "zoya-" + c.env }

// Environment は接続先環境を返します。
func (c *Client) Environment() string { return c.env }

// Fetch は1銘柄のレポートを取得します。
// 銘柄が存在しない場合は (nil, nil) を返します。
func (c *Client) Fetch(ctx context.Context, symbol string) (*entity.ProviderReport, error) {
	var payload dto.ReportResponse
	if err := c.do(ctx, reportQuery, map[string]any{"symbol": symbol}, &payload); err != nil {
		return nil, err
	}
	if len(payload.Errors) > 0 {
		return nil, graphQLError(payload.Errors)
	}
	if payload.Data == nil || payload.Data.BasicCompliance == nil || payload.Data.BasicCompliance.Report == nil {
		return nil, nil
	}

	r := payload.Data.BasicCompliance.Report
	if r.Status == "" {
		return nil, fmt.Errorf("%w: zoya report for %s has no status", domain.ErrDataQuality, symbol)
	}
	out := c.toReport(*r)
	if out.Symbol == "" {
		out.Symbol = symbol
	}
	return &out, nil
}

// Reports はページングしながら株式レポートを一括取得します。
// statusFilter は COMPLIANT / NOT_COMPLIANT / QUESTIONABLE などのステータス（空なら全件）、
// max は取得上限（0 以下なら nextToken が尽きるまで）です。結果はキャッシュしません。
func (c *Client) Reports(ctx context.Context, statusFilter string, max int) ([]entity.ProviderReport, error) {
	statusFilter = strings.ToUpper(strings.TrimSpace(statusFilter))
	if statusFilter != "" && !statusFilterPattern.MatchString(statusFilter) {
		return nil, fmt.Errorf("%w: invalid zoya status filter %q", domain.ErrConfiguration, statusFilter)
	}

	var (
		out   []entity.ProviderReport
		token string
		seen  = map[string]struct{}{}
	)
	for page := 1; ; page++ {
		if c.pace != nil {
			if err := c.pace(ctx); err != nil {
				return nil, fmt.Errorf("zoya reports page %d: %w", page, err)
			}
		}

		items, next, err := c.reportsPage(ctx, statusFilter, token)
		if err != nil {
			return nil, fmt.Errorf("zoya reports page %d: %w", page, err)
		}
		for _, it := range items {
			if it.Symbol == "" || it.Status == "" {
				slog.WarnContext(ctx, "skipping incomplete zoya report", "symbol", it.Symbol, "status", it.Status)
				continue
			}
			out = append(out, c.toReport(it))
		}
		slog.InfoContext(ctx, "fetched zoya reports page", "page", page, "items", len(items), "total", len(out))

		if max > 0 && len(out) >= max {
			return out[:max], nil
		}
		if next == "" {
			return out, nil
		}
		if _, dup := seen[next]; dup {
			return nil, fmt.Errorf("%w: zoya pagination token repeated on page %d", domain.ErrDataQuality, page)
		}
		seen[next] = struct{}{}
		token = next
	}
}

func (c *Client) reportsPage(ctx context.Context, statusFilter, token string) ([]dto.Report, string, error) {
	var parts []string
	if statusFilter != "" {
		parts = append(parts, fmt.Sprintf("filters: { status: %s }", statusFilter))
	}
	if token != "" {
		quoted, err := json.Marshal(token)
		if err != nil {
			return nil, "", err
		}
		parts = append(parts, "nextToken: "+string(quoted))
	}
	input := ""
	if len(parts) > 0 {
		input = "(input: { " + strings.Join(parts, ", ") + " })"
	}

	var payload dto.ReportsResponse
	if err := c.do(ctx, fmt.Sprintf(reportsQuery, input), map[string]any{}, &payload); err != nil {
		return nil, "", err
	}
	if len(payload.Errors) > 0 {
		return nil, "", graphQLError(payload.Errors)
	}
	if payload.Data == nil || payload.Data.BasicCompliance == nil || payload.Data.BasicCompliance.Reports == nil {
		return nil, "", nil
	}
	p := payload.Data.BasicCompliance.Reports
	next := ""
	if p.NextToken != nil {
		next = *p.NextToken
	}
	return p.Items, next, nil
}

func (c *Client) toReport(r dto.Report) entity.ProviderReport {
	return entity.ProviderReport{
		Symbol:            strings.ToUpper(r.Symbol),
		Name:              r.Name,
		Exchange:          r.Exchange,
		RawStatus:         r.Status,
		ReportDate:        parseReportDate(r.ReportDate),
		PurificationRatio: r.PurificationRatio,
		Source:            c.Name(),
	}
}

// do は GraphQL リクエストを送信し、レスポンスを out にデコードします。
func (c *Client) do(ctx context.Context, query string, vars map[string]any, out any) error {
	body, err := json.Marshal(dto.GraphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", domain.ErrConfiguration, err)
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return fmt.Errorf("zoya request: %w", ctxErr)
		}
		return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			slog.WarnContext(ctx, "failed to close response body", "error", err)
		}
	}()

	if err := statusError(res.StatusCode); err != nil {
		return err
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", domain.ErrProviderUnavailable, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode zoya response: %v", domain.ErrDataQuality, err)
	}
	return nil
}

// statusError maps HTTP status codes onto the domain error taxonomy.
func statusError(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: zoya http %d", domain.ErrConfiguration, code)
	case code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500:
		return fmt.Errorf("%w: zoya http %d", domain.ErrProviderUnavailable, code)
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: zoya endpoint not found (http 404)", domain.ErrConfiguration)
	default:
		return fmt.Errorf("%w: zoya http %d", domain.ErrDataQuality, code)
	}
}

func graphQLError(errs []dto.GraphQLError) error {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		switch strings.ToUpper(e.Extensions.Code) {
		case "UNAUTHENTICATED", "FORBIDDEN":
			return fmt.Errorf("%w: zoya: %s", domain.ErrConfiguration, e.Message)
		case "INTERNAL_SERVER_ERROR", "THROTTLED":
			return fmt.Errorf("%w: zoya: %s", domain.ErrProviderUnavailable, e.Message)
		}
		msgs = append(msgs, e.Message)
	}
	return fmt.Errorf("%w: zoya graphql errors: %s", domain.ErrDataQuality, strings.Join(msgs, "; "))
}

func parseReportDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	slog.Warn("unparseable zoya report date", "report_date", s)
	return time.Time{}
}
