package twelvedata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"compliance_screener/internal/feature/compliance/domain/entity"
	"compliance_screener/internal/feature/universe/adapters/twelvedata/dto"
	"compliance_screener/internal/feature/universe/usecase"
)

// TwelveDataListings はTwelve Data外部APIから上場銘柄を取得するListingSource実装です。
type TwelveDataListings struct {
	cfg    Config
	client *http.Client
}

// TwelveDataListingsがListingSourceを実装していることをコンパイル時に検証します。
var _ usecase.ListingSource = (*TwelveDataListings)(nil)

// NewTwelveDataListings は指定された設定とHTTPクライアントでTwelveDataListingsの新しいインスタンスを生成します。
func NewTwelveDataListings(cfg Config, client *http.Client) *TwelveDataListings {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &TwelveDataListings{cfg: cfg, client: client}
}

// Listings は取引所（MICコードまたは名称）の普通株一覧を (ticker, exchange) の組で返します。
func (t *TwelveDataListings) Listings(ctx context.Context, exchange string) ([]entity.Listing, error) {
	q := url.Values{}
	// クエリパラメータを追加
	q.Set("exchange", exchange)
	q.Set("type", "Common Stock")
	if t.cfg.APIKey != "" {
		q.Set("apikey", t.cfg.APIKey)
	}

	// URLを生成
	u := fmt.Sprintf("%s/stocks?%s", strings.TrimRight(t.cfg.BaseURL, "/"), q.Encode())

	// リクエストオブジェクトを作成
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	// リクエストを実行
	res, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			slog.WarnContext(ctx, "failed to close response body", "error", err)
		}
	}()

	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("twelvedata http %d", res.StatusCode)
	}

	// JSONレスポンスをDTOにデコード
	var body dto.StocksResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode twelvedata stocks: %w", err)
	}
	if body.Status == "error" {
		return nil, fmt.Errorf("twelvedata: %s", body.Message)
	}

	listings := make([]entity.Listing, 0, len(body.Data))
	for _, d := range body.Data {
		if d.Symbol == "" {
			continue
		}
		// MICコードを優先し、無ければ取引所名を使う
		ex := d.MICCode
		if ex == "" {
			ex = d.Exchange
		}
		listings = append(listings, entity.Listing{Ticker: d.Symbol, Exchange: ex})
	}
	return listings, nil
}
