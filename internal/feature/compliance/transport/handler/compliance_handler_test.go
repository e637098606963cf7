package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance_screener/internal/feature/compliance/domain"
	"compliance_screener/internal/feature/compliance/domain/entity"
	"compliance_screener/internal/feature/compliance/transport/handler"
	"compliance_screener/internal/feature/compliance/usecase"
	"compliance_screener/internal/platform/logger"
)

// mockComplianceUsecase はComplianceUsecaseインターフェースのモック実装です。
type mockComplianceUsecase struct {
	EvaluateFunc func(ctx context.Context, ticker, exchangeHint string) (entity.ComplianceStatus, error)
	FilterFunc   func(ctx context.Context, listings []entity.Listing, conservative bool) (*entity.FilterResult, error)
	AuditFunc    func(ctx context.Context, q usecase.AuditQuery) ([]entity.AuditRecord, error)
	PurgeFunc    func(ctx context.Context, ticker string) error
	exchanges    []entity.ExchangeMapping
}

func (m *mockComplianceUsecase) Purge(ctx context.Context, ticker string) error {
	return m.PurgeFunc(ctx, ticker)
}

func (m *mockComplianceUsecase) Evaluate(ctx context.Context, ticker, exchangeHint string) (entity.ComplianceStatus, error) {
	return m.EvaluateFunc(ctx, ticker, exchangeHint)
}

func (m *mockComplianceUsecase) Filter(ctx context.Context, listings []entity.Listing, conservative bool) (*entity.FilterResult, error) {
	return m.FilterFunc(ctx, listings, conservative)
}

func (m *mockComplianceUsecase) Audit(ctx context.Context, q usecase.AuditQuery) ([]entity.AuditRecord, error) {
	return m.AuditFunc(ctx, q)
}

func (m *mockComplianceUsecase) Exchanges() []entity.ExchangeMapping { return m.exchanges }

func (m *mockComplianceUsecase) ExchangeInfo(s string) (entity.ExchangeMapping, bool) {
	for _, e := range m.exchanges {
		if e.Code == s || e.Suffix == s {
			return e, true
		}
	}
	return entity.ExchangeMapping{}, false
}

var testTime = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func newRouter(uc handler.ComplianceUsecase) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := handler.NewComplianceHandler(uc)
	r.GET("/compliance/audit", h.Audit)
	r.GET("/compliance/:ticker", h.Evaluate)
	r.POST("/compliance/filter", h.Filter)
	r.GET("/exchanges", h.Exchanges)
	r.GET("/exchanges/:code", h.Exchange)
	r.DELETE("/compliance/cache", h.Purge)
	r.DELETE("/compliance/cache/:ticker", h.Purge)
	return r
}

func serve(r *gin.Engine, method, url, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// TestComplianceHandler_Evaluate はEvaluateのステータスコード変換とレスポンスを検証します。
func TestComplianceHandler_Evaluate(t *testing.T) {
	tests := []struct {
		name           string
		url            string
		mockEvaluate   func(ctx context.Context, ticker, exchangeHint string) (entity.ComplianceStatus, error)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "success: compliant",
			url:  "/compliance/AAPL?exchange=NASDAQ",
			mockEvaluate: func(ctx context.Context, ticker, exchangeHint string) (entity.ComplianceStatus, error) {
				assert.Equal(t, "AAPL", ticker)
				assert.Equal(t, "NASDAQ", exchangeHint)
				return entity.ComplianceStatus{
					Ticker: "AAPL", IsCompliant: entity.VerdictCompliant, Confidence: entity.ConfidenceHigh,
					DataSource: "zoya-live", LastUpdated: testTime,
				}, nil
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"ticker":"AAPL","is_compliant":true,"confidence":"HIGH","data_source":"zoya-live","last_updated":"2025-03-01T00:00:00Z"}`,
		},
		{
			name: "success: unknown renders null",
			url:  "/compliance/ZZZZ",
			mockEvaluate: func(ctx context.Context, ticker, exchangeHint string) (entity.ComplianceStatus, error) {
				return entity.ComplianceStatus{
					Ticker: "ZZZZ", Confidence: entity.ConfidenceLow, DataSource: "unavailable", LastUpdated: testTime,
					ExclusionReasons: []entity.ReasonCode{entity.ReasonProviderUnavailable},
				}, nil
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"ticker":"ZZZZ","is_compliant":null,"confidence":"LOW","exclusion_reasons":["PROVIDER_UNAVAILABLE"],"data_source":"unavailable","last_updated":"2025-03-01T00:00:00Z"}`,
		},
		{
			name: "error: invalid ticker",
			url:  "/compliance/A..B",
			mockEvaluate: func(ctx context.Context, ticker, exchangeHint string) (entity.ComplianceStatus, error) {
				return entity.ComplianceStatus{}, fmt.Errorf("%w: %q", domain.ErrInvalidTicker, ticker)
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"invalid ticker: \"A..B\""}`,
		},
		{
			name: "error: configuration",
			url:  "/compliance/AAPL",
			mockEvaluate: func(ctx context.Context, ticker, exchangeHint string) (entity.ComplianceStatus, error) {
				return entity.ComplianceStatus{}, fmt.Errorf("%w: http 401", domain.ErrConfiguration)
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   `{"error":"compliance provider misconfigured"}`,
		},
		{
			name: "error: timeout",
			url:  "/compliance/AAPL",
			mockEvaluate: func(ctx context.Context, ticker, exchangeHint string) (entity.ComplianceStatus, error) {
				return entity.ComplianceStatus{}, context.DeadlineExceeded
			},
			expectedStatus: http.StatusGatewayTimeout,
			expectedBody:   `{"error":"compliance check timed out"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(&mockComplianceUsecase{EvaluateFunc: tt.mockEvaluate})
			w := serve(r, http.MethodGet, tt.url, "")

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
		})
	}
}

// TestComplianceHandler_Filter はFilterのリクエストバインドとデフォルト値を検証します。
func TestComplianceHandler_Filter(t *testing.T) {
	okResult := &entity.FilterResult{
		Compliant:    []entity.ComplianceStatus{},
		Excluded:     []entity.Exclusion{},
		Summary:      entity.Summary{Total: 2, Excluded: 2},
		Conservative: true,
	}

	tests := []struct {
		name           string
		body           string
		mockFilter     func(ctx context.Context, listings []entity.Listing, conservative bool) (*entity.FilterResult, error)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "success: conservative by default",
			body: `{"listings":[{"ticker":"AAPL","exchange":"NASDAQ"},{"ticker":"BMW.DE"}]}`,
			mockFilter: func(ctx context.Context, listings []entity.Listing, conservative bool) (*entity.FilterResult, error) {
				assert.True(t, conservative)
				assert.Equal(t, []entity.Listing{{Ticker: "AAPL", Exchange: "NASDAQ"}, {Ticker: "BMW.DE"}}, listings)
				return okResult, nil
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"compliant":[],"excluded":[],"summary":{"total":2,"compliant":0,"non_compliant":0,"unknown":0,"excluded":2},"conservative":true}`,
		},
		{
			name: "success: lenient mode",
			body: `{"listings":[{"ticker":"AAPL"}],"conservative":false}`,
			mockFilter: func(ctx context.Context, listings []entity.Listing, conservative bool) (*entity.FilterResult, error) {
				assert.False(t, conservative)
				return &entity.FilterResult{Compliant: []entity.ComplianceStatus{}, Excluded: []entity.Exclusion{}}, nil
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"compliant":[],"excluded":[],"summary":{"total":0,"compliant":0,"non_compliant":0,"unknown":0,"excluded":0},"conservative":false}`,
		},
		{
			name:           "error: empty listings",
			body:           `{"listings":[]}`,
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"invalid request"}`,
		},
		{
			name:           "error: missing ticker",
			body:           `{"listings":[{"exchange":"NYSE"}]}`,
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"invalid request"}`,
		},
		{
			name:           "error: malformed json",
			body:           `{"listings":`,
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"invalid request"}`,
		},
		{
			name: "error: configuration aborts batch",
			body: `{"listings":[{"ticker":"AAPL"}]}`,
			mockFilter: func(ctx context.Context, listings []entity.Listing, conservative bool) (*entity.FilterResult, error) {
				return nil, fmt.Errorf("evaluate AAPL: %w", domain.ErrConfiguration)
			},
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   `{"error":"compliance provider misconfigured"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := &mockComplianceUsecase{FilterFunc: tt.mockFilter}
			if uc.FilterFunc == nil {
				uc.FilterFunc = func(context.Context, []entity.Listing, bool) (*entity.FilterResult, error) {
					t.Fatal("usecase must not be called for invalid requests")
					return nil, nil
				}
			}
			w := serve(newRouter(uc), http.MethodPost, "/compliance/filter", tt.body)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
		})
	}
}

// TestComplianceHandler_Audit はクエリパラメータのバインドを検証します。
func TestComplianceHandler_Audit(t *testing.T) {
	var got usecase.AuditQuery
	uc := &mockComplianceUsecase{
		AuditFunc: func(ctx context.Context, q usecase.AuditQuery) ([]entity.AuditRecord, error) {
			got = q
			return []entity.AuditRecord{}, nil
		},
	}
	r := newRouter(uc)

	w := serve(r, http.MethodGet, "/compliance/audit?ticker=JPM&stage=filter&limit=5&since=2025-03-01T00:00:00Z", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"records":[],"count":0}`, w.Body.String())
	assert.Equal(t, "JPM", got.Ticker)
	assert.Equal(t, entity.StageFilter, got.Stage)
	assert.Equal(t, 5, got.Limit)
	assert.True(t, got.Since.Equal(testTime))

	w = serve(r, http.MethodGet, "/compliance/audit?stage=bogus", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	uc.AuditFunc = func(ctx context.Context, q usecase.AuditQuery) ([]entity.AuditRecord, error) {
		return nil, fmt.Errorf("db down")
	}
	w = serve(r, http.MethodGet, "/compliance/audit", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// TestComplianceHandler_Exchanges は取引所一覧と個別検索を検証します。
func TestComplianceHandler_Exchanges(t *testing.T) {
	uc := &mockComplianceUsecase{exchanges: []entity.ExchangeMapping{
		{Suffix: ".DE", Code: "XETR", Name: "Xetra", Region: entity.RegionEU, Country: "DE"},
	}}
	r := newRouter(uc)

	w := serve(r, http.MethodGet, "/exchanges", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
	assert.Contains(t, w.Body.String(), `"XETR"`)

	w = serve(r, http.MethodGet, "/exchanges/XETR", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, http.MethodGet, "/exchanges/NOPE", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"unknown exchange"}`, w.Body.String())
}

// TestComplianceHandler_Purge はキャッシュ削除のステータスコードを検証します。
func TestComplianceHandler_Purge(t *testing.T) {
	tests := []struct {
		name           string
		url            string
		err            error
		expectedTicker string
		expectedStatus int
	}{
		{"all", "/compliance/cache", nil, "", http.StatusNoContent},
		{"one ticker", "/compliance/cache/BMW.DE", nil, "BMW.DE", http.StatusNoContent},
		{"invalid ticker", "/compliance/cache/$$$", fmt.Errorf("%w: $$$", domain.ErrInvalidTicker), "$$$", http.StatusBadRequest},
		{"backend failure", "/compliance/cache/AAPL", errors.New("redis down"), "AAPL", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			uc := &mockComplianceUsecase{PurgeFunc: func(ctx context.Context, ticker string) error {
				got = ticker
				return tt.err
			}}
			w := serve(newRouter(uc), http.MethodDelete, tt.url, "")

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedTicker, got)
		})
	}
}

// TestComplianceHandler_ErrorLogCarriesRequestID はハンドラのエラーログにリクエストIDが付与されることを検証します。
func TestComplianceHandler_ErrorLogCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(logger.New(&buf, "info", "json"))
	t.Cleanup(func() { slog.SetDefault(prev) })

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(logger.RequestLogger())
	h := handler.NewComplianceHandler(&mockComplianceUsecase{PurgeFunc: func(context.Context, string) error {
		return errors.New("redis down")
	}})
	r.DELETE("/compliance/cache/:ticker", h.Purge)

	const id = "0b5c9a52-6a8e-4d6f-9a59-3f4d2f4e7c11"
	req := httptest.NewRequest(http.MethodDelete, "/compliance/cache/AAPL", nil)
	req.Header.Set(logger.HeaderRequestID, id)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var found bool
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		if rec["msg"] == "cache purge failed" {
			found = true
			assert.Equal(t, id, rec["request_id"])
		}
	}
	assert.True(t, found, "purge failure must be logged")
}
