// Package usecase は取引所ごとの上場銘柄を集めるユースケースを実装します。
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"compliance_screener/internal/feature/compliance/domain/entity"
)

// DefaultResource はTwelve Data向けのレートリミットリソース名です。
const DefaultResource = "twelvedata"

// ListingSource は取引所の上場銘柄を返すリポジトリのインターフェイスです。
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type ListingSource interface {
	Listings(ctx context.Context, exchange string) ([]entity.Listing, error)
}

// Limiter はリクエストごとにトークンを払い出します。
type Limiter interface {
	Acquire(ctx context.Context, resource string, n int, timeout time.Duration) (time.Duration, error)
}

// UniverseUsecase は複数取引所の銘柄一覧を取得して重複を除きます。
type UniverseUsecase struct {
	source         ListingSource
	limiter        Limiter
	resource       string
	acquireTimeout time.Duration
}

// NewUniverseUsecase は新しい UniverseUsecase を作成します。
func NewUniverseUsecase(source ListingSource, limiter Limiter, resource string, acquireTimeout time.Duration) *UniverseUsecase {
	if resource == "" {
		resource = DefaultResource
	}
	return &UniverseUsecase{source: source, limiter: limiter, resource: resource, acquireTimeout: acquireTimeout}
}

// Collect は指定された全取引所の銘柄を取得し、(ticker, exchange) で重複を除いて返します。
// limit が正の場合はその件数で打ち切ります。
// 1つの取引所で失敗しても処理を止めませんが、全て失敗した場合はエラーを返します。
func (u *UniverseUsecase) Collect(ctx context.Context, exchanges []string, limit int) ([]entity.Listing, error) {
	var (
		out  []entity.Listing
		errs []error
		seen = make(map[entity.Listing]struct{})
	)

	for _, ex := range exchanges {
		ex = strings.TrimSpace(ex)
		if ex == "" {
			continue
		}
		if _, err := u.limiter.Acquire(ctx, u.resource, 1, u.acquireTimeout); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("%s: %w", ex, err))
			continue
		}

		ls, err := u.source.Listings(ctx, ex)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// 1つの取引所でエラーが発生しても処理を止めずにログに出力し、次の処理を続ける
			slog.ErrorContext(ctx, "failed to fetch listings", "exchange", ex, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", ex, err))
			continue
		}

		for _, l := range ls {
			l.Ticker = strings.ToUpper(strings.TrimSpace(l.Ticker))
			if l.Ticker == "" {
				continue
			}
			if _, dup := seen[l]; dup {
				continue
			}
			seen[l] = struct{}{}
			out = append(out, l)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
		slog.InfoContext(ctx, "fetched listings", "exchange", ex, "count", len(ls))
	}

	if len(out) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}
