package oracle

import (
	"context"
	"errors"

	"pharmasignals/logger"
)

// Failover 依次尝试主价格源和备用价格源，每个源只查询一次
type Failover struct {
	primary   PriceOracle
	fallbacks []PriceOracle
}

// NewFailover 创建带备用源的价格源
func NewFailover(primary PriceOracle, fallbacks ...PriceOracle) *Failover {
	return &Failover{primary: primary, fallbacks: fallbacks}
}

// Name 价格源名称
func (f *Failover) Name() string {
	return f.primary.Name()
}

// FetchCurrentPrice 主源失败时切换到备用源
func (f *Failover) FetchCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	price, err := f.primary.FetchCurrentPrice(ctx, symbol)
	if err == nil {
		return price, nil
	}
	errs := []error{err}

	for _, source := range f.fallbacks {
		if ctx.Err() != nil {
			break
		}
		price, fbErr := source.FetchCurrentPrice(ctx, symbol)
		if fbErr == nil {
			logger.Warn("⚠️ %s 主价格源失败，使用备用源 %s: %v", symbol, source.Name(), err)
			return price, nil
		}
		errs = append(errs, fbErr)
	}

	return 0, lookupError(f.Name(), NormalizeSymbol(symbol), errors.Join(errs...))
}
