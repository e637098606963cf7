package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	compliancehandler "compliance_screener/internal/feature/compliance/transport/handler"
	"compliance_screener/internal/platform/http/handler"
	jwtmw "compliance_screener/internal/platform/jwt"
	"compliance_screener/internal/platform/logger"
)

// Deps はルーター構築に必要な依存です。
type Deps struct {
	Compliance *compliancehandler.ComplianceHandler
	Readiness  *handler.ReadinessHandler
	Gatherer   prometheus.Gatherer
	JWTSecret  string
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logger.RequestLogger())

	// 認証不要
	// 導通確認用
	r.GET("/healthz", handler.Health)
	r.HEAD("/healthz", handler.Health)
	r.GET("/readyz", d.Readiness.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))

	// 認証必須のルート
	auth := r.Group("/")
	auth.Use(jwtmw.AuthRequired(d.JWTSecret), jwtmw.RequireScope(jwtmw.ScopeScreen))
	{
		// /compliance/audit は /compliance/:ticker より先に登録する
		auth.GET("/compliance/audit", d.Compliance.Audit)
		auth.GET("/compliance/:ticker", d.Compliance.Evaluate)
		auth.POST("/compliance/filter", d.Compliance.Filter)
		auth.GET("/exchanges", d.Compliance.Exchanges)
		auth.GET("/exchanges/:code", d.Compliance.Exchange)
	}

	// キャッシュ削除は admin スコープが必要
	admin := r.Group("/compliance/cache")
	admin.Use(jwtmw.AuthRequired(d.JWTSecret), jwtmw.RequireScope(jwtmw.ScopeAdmin))
	{
		admin.DELETE("", d.Compliance.Purge)
		admin.DELETE("/:ticker", d.Compliance.Purge)
	}

	return r
}
