package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"pharmasignals/metrics"
)

const providerAlphaVantage = "alphavantage"

// globalQuoteResponse GLOBAL_QUOTE 接口响应
type globalQuoteResponse struct {
	GlobalQuote struct {
		Symbol string `json:"01. symbol"`
		Price  string `json:"05. price"`
	} `json:"Global Quote"`
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

// AlphaVantageConfig Alpha Vantage 配置
type AlphaVantageConfig struct {
	APIKey            string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerMinute int
	Burst             int
}

// AlphaVantage 基于 Alpha Vantage GLOBAL_QUOTE 的价格源
type AlphaVantage struct {
	apiKey  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	metrics *metrics.PrometheusMetrics
}

// NewAlphaVantage 创建 Alpha Vantage 价格源
func NewAlphaVantage(cfg AlphaVantageConfig) (*AlphaVantage, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("alphavantage api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.alphavantage.co/query"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 75
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	return &AlphaVantage{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), cfg.Burst),
		metrics: metrics.GetPrometheusMetrics(),
	}, nil
}

// Name 价格源名称
func (a *AlphaVantage) Name() string {
	return providerAlphaVantage
}

// FetchCurrentPrice 查询最新价格
func (a *AlphaVantage) FetchCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return 0, lookupError(providerAlphaVantage, symbol, errors.New("empty symbol"))
	}

	// 限流等待超出 ctx 截止时间时立即失败
	waitStart := time.Now()
	if err := a.limiter.Wait(ctx); err != nil {
		a.metrics.RecordOracleRequest(providerAlphaVantage, "rate_limited", time.Since(waitStart))
		return 0, lookupError(providerAlphaVantage, symbol, fmt.Errorf("rate limiter: %w", err))
	}
	a.metrics.RecordRateLimitWait(providerAlphaVantage, time.Since(waitStart))

	start := time.Now()
	price, err := a.fetch(ctx, symbol)
	status := "success"
	if err != nil {
		status = "error"
	}
	a.metrics.RecordOracleRequest(providerAlphaVantage, status, time.Since(start))
	if err != nil {
		return 0, lookupError(providerAlphaVantage, symbol, err)
	}
	return price, nil
}

func (a *AlphaVantage) fetch(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)
	params.Set("apikey", a.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}

	var quote globalQuoteResponse
	if err := json.Unmarshal(body, &quote); err != nil {
		return 0, fmt.Errorf("parse response: %w", err)
	}

	// 限流和密钥错误以 200 + 文本说明返回
	switch {
	case quote.ErrorMessage != "":
		return 0, fmt.Errorf("api error: %s", quote.ErrorMessage)
	case quote.Note != "":
		return 0, fmt.Errorf("api notice: %s", quote.Note)
	case quote.Information != "":
		return 0, fmt.Errorf("api notice: %s", quote.Information)
	}

	if quote.GlobalQuote.Price == "" {
		return 0, ErrUnknownSymbol
	}
	return parsePrice(quote.GlobalQuote.Price)
}

func parsePrice(raw string) (float64, error) {
	price, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("could not parse price %q: %w", raw, err)
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return 0, fmt.Errorf("invalid price %v", price)
	}
	return price, nil
}
