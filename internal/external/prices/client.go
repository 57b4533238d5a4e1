package prices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wonny/signalcast/pkg/httputil"
	"github.com/wonny/signalcast/pkg/logger"
)

// ErrNoQuote is returned when the chart response carries no usable price
var ErrNoQuote = errors.New("no quote in response")

// Source 스냅샷 source 컬럼 값
const Source = "yahoo"

// YahooClient Yahoo Finance chart API 시세 조회
// ⭐ SSOT: 가격 시세 HTTP 호출은 이 클라이언트에서만
type YahooClient struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
}

// NewYahooClient creates a price client; baseURL defaults to query1.finance.yahoo.com
func NewYahooClient(httpClient *httputil.Client, baseURL string, log *logger.Logger) *YahooClient {
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}
	return &YahooClient{
		httpClient: httpClient,
		logger:     log.WithModule("prices"),
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				RegularMarketTime  int64   `json:"regularMarketTime"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Quote returns the latest regular market price and its quote time
func (c *YahooClient) Quote(ctx context.Context, symbol string) (float64, time.Time, error) {
	fullURL := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1m&range=1d", c.baseURL, url.PathEscape(symbol))

	resp, err := c.httpClient.Get(ctx, fullURL)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("read response body failed: %w", err)
	}

	var parsed chartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		if resp.StatusCode != http.StatusOK {
			return 0, time.Time{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
		return 0, time.Time{}, fmt.Errorf("decode chart response: %w", err)
	}

	if e := parsed.Chart.Error; e != nil {
		return 0, time.Time{}, fmt.Errorf("chart %s: %s: %s", symbol, e.Code, e.Description)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, time.Time{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if len(parsed.Chart.Result) == 0 {
		return 0, time.Time{}, fmt.Errorf("chart %s: %w", symbol, ErrNoQuote)
	}

	meta := parsed.Chart.Result[0].Meta
	if meta.RegularMarketPrice <= 0 {
		return 0, time.Time{}, fmt.Errorf("chart %s: %w", symbol, ErrNoQuote)
	}

	quotedAt := time.Now().UTC()
	if meta.RegularMarketTime > 0 {
		quotedAt = time.Unix(meta.RegularMarketTime, 0).UTC()
	}

	c.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"price":  meta.RegularMarketPrice,
	}).Debug("Fetched quote")
	return meta.RegularMarketPrice, quotedAt, nil
}
