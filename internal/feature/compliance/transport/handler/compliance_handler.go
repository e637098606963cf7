// Package handler はcomplianceフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"compliance_screener/internal/feature/compliance/domain"
	"compliance_screener/internal/feature/compliance/domain/entity"
	"compliance_screener/internal/feature/compliance/transport/http/dto"
	"compliance_screener/internal/feature/compliance/usecase"
)

// ComplianceUsecase はコンプライアンス判定のユースケースインターフェースを定義します。
// Goの慣例に従い、インターフェースは利用者（handler）側で定義します。
type ComplianceUsecase interface {
	Evaluate(ctx context.Context, ticker, exchangeHint string) (entity.ComplianceStatus, error)
	Filter(ctx context.Context, listings []entity.Listing, conservative bool) (*entity.FilterResult, error)
	Audit(ctx context.Context, q usecase.AuditQuery) ([]entity.AuditRecord, error)
	Exchanges() []entity.ExchangeMapping
	ExchangeInfo(s string) (entity.ExchangeMapping, bool)
	Purge(ctx context.Context, ticker string) error
}

// ComplianceHandler はコンプライアンス判定のHTTPリクエストを処理します。
type ComplianceHandler struct {
	uc ComplianceUsecase
}

// NewComplianceHandler は指定されたusecaseでComplianceHandlerの新しいインスタンスを生成します。
func NewComplianceHandler(uc ComplianceUsecase) *ComplianceHandler {
	return &ComplianceHandler{uc: uc}
}

// Evaluate は1銘柄の判定結果をJSONで返します。
//
// エンドポイント例:
// GET /compliance/BMW.DE
// GET /compliance/AAPL?exchange=NASDAQ
func (h *ComplianceHandler) Evaluate(c *gin.Context) {
	ticker := c.Param("ticker")
	exchange := c.Query("exchange")

	st, err := h.uc.Evaluate(c.Request.Context(), ticker, exchange)
	if err != nil {
		writeError(c, "evaluate", ticker, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Filter は銘柄リストを保守的ポリシーで振り分けます。
//
// エンドポイント例:
// POST /compliance/filter
// {"listings":[{"ticker":"AAPL","exchange":"NASDAQ"},{"ticker":"BMW.DE"}],"conservative":true}
func (h *ComplianceHandler) Filter(c *gin.Context) {
	var req dto.FilterReq
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(c.Request.Context(), "filter validation failed", "error", err, "remote_addr", c.ClientIP())
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request"})
		return
	}

	conservative := true
	if req.Conservative != nil {
		conservative = *req.Conservative
	}
	listings := make([]entity.Listing, len(req.Listings))
	for i, l := range req.Listings {
		listings[i] = entity.Listing{Ticker: l.Ticker, Exchange: l.Exchange}
	}

	res, err := h.uc.Filter(c.Request.Context(), listings, conservative)
	if err != nil {
		writeError(c, "filter", "", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Audit は除外判定の監査ログを返します。
//
// エンドポイント例:
// GET /compliance/audit?ticker=JPM&stage=filter&limit=50
func (h *ComplianceHandler) Audit(c *gin.Context) {
	var req dto.AuditQueryReq
	if err := c.ShouldBindQuery(&req); err != nil {
		slog.WarnContext(c.Request.Context(), "audit query validation failed", "error", err, "remote_addr", c.ClientIP())
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid query"})
		return
	}

	recs, err := h.uc.Audit(c.Request.Context(), usecase.AuditQuery{
		Ticker: req.Ticker,
		Stage:  entity.AuditStage(req.Stage),
		Since:  req.Since,
		Limit:  req.Limit,
	})
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "audit query failed", "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "audit log unavailable"})
		return
	}
	c.JSON(http.StatusOK, dto.AuditResponse{Records: recs, Count: len(recs)})
}

// Exchanges は対応取引所の一覧を返します。
// GET /exchanges
func (h *ComplianceHandler) Exchanges(c *gin.Context) {
	ex := h.uc.Exchanges()
	c.JSON(http.StatusOK, dto.ExchangesResponse{Exchanges: ex, Count: len(ex)})
}

// Exchange はサフィックス・MICコード・別名で取引所を引きます。
// GET /exchanges/:code
func (h *ComplianceHandler) Exchange(c *gin.Context) {
	m, ok := h.uc.ExchangeInfo(c.Param("code"))
	if !ok {
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "unknown exchange"})
		return
	}
	c.JSON(http.StatusOK, m)
}

// Purge はコンプライアンス判定キャッシュを削除します。ticker を省略すると名前空間全体を削除します。
//
// エンドポイント例:
// DELETE /compliance/cache
// DELETE /compliance/cache/BMW.DE
func (h *ComplianceHandler) Purge(c *gin.Context) {
	ticker := c.Param("ticker")
	if err := h.uc.Purge(c.Request.Context(), ticker); err != nil {
		if errors.Is(err, domain.ErrInvalidTicker) {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
			return
		}
		slog.ErrorContext(c.Request.Context(), "cache purge failed", "ticker", ticker, "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "cache purge failed"})
		return
	}
	slog.InfoContext(c.Request.Context(), "compliance cache purged", "ticker", ticker)
	c.Status(http.StatusNoContent)
}

// writeError はドメインエラーをHTTPステータスへ変換します。
func writeError(c *gin.Context, op, ticker string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidTicker):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrConfiguration):
		// 設定内容は公開しない
		slog.ErrorContext(c.Request.Context(), op+" failed: configuration", "ticker", ticker, "error", err)
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: "compliance provider misconfigured"})
	case errors.Is(err, context.DeadlineExceeded):
		slog.WarnContext(c.Request.Context(), op+" timed out", "ticker", ticker, "error", err)
		c.JSON(http.StatusGatewayTimeout, dto.ErrorResponse{Error: "compliance check timed out"})
	default:
		slog.ErrorContext(c.Request.Context(), op+" failed", "ticker", ticker, "error", err)
		c.JSON(http.StatusBadGateway, dto.ErrorResponse{Error: "compliance check failed"})
	}
}
