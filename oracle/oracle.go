package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// PriceOracle 行情价格源
type PriceOracle interface {
	// Name 价格源名称（用于日志和指标）
	Name() string

	// FetchCurrentPrice 查询最新价格，失败时返回 *PriceLookupError，不做内部重试
	FetchCurrentPrice(ctx context.Context, symbol string) (float64, error)
}

// ErrUnknownSymbol 价格源不认识该代码
var ErrUnknownSymbol = errors.New("unknown symbol")

// PriceLookupError 价格查询失败
type PriceLookupError struct {
	Provider string
	Symbol   string
	Err      error
}

func (e *PriceLookupError) Error() string {
	return fmt.Sprintf("price lookup %s via %s: %v", e.Symbol, e.Provider, e.Err)
}

func (e *PriceLookupError) Unwrap() error {
	return e.Err
}

func lookupError(provider, symbol string, err error) *PriceLookupError {
	return &PriceLookupError{Provider: provider, Symbol: symbol, Err: err}
}

// IsPriceLookupError 判断错误链中是否包含价格查询失败
func IsPriceLookupError(err error) bool {
	var lookupErr *PriceLookupError
	return errors.As(err, &lookupErr)
}

// NormalizeSymbol 统一代码格式（去空格、大写）
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
