// Package handler はプラットフォームレベルのエンドポイント用HTTPハンドラーを提供します。
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// Health は /healthz (GET, HEAD) の生存確認です。依存先は見ません。
func Health(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	if c.Request.Method == http.MethodHead {
		c.Status(http.StatusOK)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// CheckFunc は依存先 (Redis, DB など) の疎通を確認します。
type CheckFunc func(ctx context.Context) error

// ReadinessHandler は依存先の疎通を確認する /readyz を提供します。
type ReadinessHandler struct {
	checks  map[string]CheckFunc
	timeout time.Duration
}

// NewReadinessHandler は ReadinessHandler を生成します。timeout は各チェックに適用されます。
func NewReadinessHandler(checks map[string]CheckFunc, timeout time.Duration) *ReadinessHandler {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &ReadinessHandler{checks: checks, timeout: timeout}
}

// Ready はすべてのチェックが成功すれば 200、ひとつでも失敗すれば 503 を返します。
func (h *ReadinessHandler) Ready(c *gin.Context) {
	c.Header("Cache-Control", "no-store")

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(names))
	status := http.StatusOK
	for _, name := range names {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
		err := h.checks[name](ctx)
		cancel()
		if err != nil {
			slog.WarnContext(c.Request.Context(), "readiness check failed", "check", name, "error", err)
			results[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{"status": overall, "checks": results})
}
