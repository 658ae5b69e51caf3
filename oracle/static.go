package oracle

import (
	"context"
	"errors"
	"sync"
)

const providerStatic = "static"

// Static 固定价格源（开发和演示环境使用）
type Static struct {
	mu     sync.RWMutex
	prices map[string]float64
}

// NewStatic 创建固定价格源
func NewStatic(prices map[string]float64) *Static {
	s := &Static{prices: make(map[string]float64, len(prices))}
	for symbol, price := range prices {
		s.prices[NormalizeSymbol(symbol)] = price
	}
	return s
}

// Name 价格源名称
func (s *Static) Name() string {
	return providerStatic
}

// Set 设置某个代码的价格
func (s *Static) Set(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[NormalizeSymbol(symbol)] = price
}

// FetchCurrentPrice 返回配置的固定价格
func (s *Static) FetchCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	symbol = NormalizeSymbol(symbol)
	if err := ctx.Err(); err != nil {
		return 0, lookupError(providerStatic, symbol, err)
	}
	if symbol == "" {
		return 0, lookupError(providerStatic, symbol, errors.New("empty symbol"))
	}

	s.mu.RLock()
	price, ok := s.prices[symbol]
	s.mu.RUnlock()
	if !ok || price <= 0 {
		return 0, lookupError(providerStatic, symbol, ErrUnknownSymbol)
	}
	return price, nil
}
