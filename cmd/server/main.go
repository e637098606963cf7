package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"compliance_screener/internal/app/config"
	"compliance_screener/internal/app/di"
	"compliance_screener/internal/app/router"
	compliancehandler "compliance_screener/internal/feature/compliance/transport/handler"
	"compliance_screener/internal/platform/http/handler"
	"compliance_screener/internal/platform/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Setup(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	gin.SetMode(gin.ReleaseMode)

	// JWT_SECRETチェック
	if cfg.JWTSecret == "" {
		slog.Warn("JWT_SECRET is not set; every protected route will answer 500")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := di.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	r := router.NewRouter(router.Deps{
		Compliance: compliancehandler.NewComplianceHandler(app.Compliance),
		Readiness:  handler.NewReadinessHandler(app.ReadinessChecks(), 2*time.Second),
		Gatherer:   app.Registry,
		JWTSecret:  cfg.JWTSecret,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down", "timeout", cfg.HTTP.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
