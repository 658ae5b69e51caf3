package oracle

import (
	"fmt"
	"time"
)

// Config 价格源配置
type Config struct {
	Provider          string
	Fallback          string
	APIKey            string
	BaseURL           string
	Timeout           time.Duration
	RequestsPerMinute int
	Burst             int
	StaticPrices      map[string]float64
}

// New 根据配置创建价格源，配置了备用源时返回 Failover
func New(config *Config) (PriceOracle, error) {
	primary, err := newProvider(config.Provider, config)
	if err != nil {
		return nil, err
	}
	if config.Fallback == "" || config.Fallback == config.Provider {
		return primary, nil
	}

	fallback, err := newProvider(config.Fallback, config)
	if err != nil {
		return nil, fmt.Errorf("fallback: %w", err)
	}
	return NewFailover(primary, fallback), nil
}

func newProvider(name string, config *Config) (PriceOracle, error) {
	switch name {
	case providerAlphaVantage:
		return NewAlphaVantage(AlphaVantageConfig{
			APIKey:            config.APIKey,
			BaseURL:           config.BaseURL,
			Timeout:           config.Timeout,
			RequestsPerMinute: config.RequestsPerMinute,
			Burst:             config.Burst,
		})
	case providerStatic:
		return NewStatic(config.StaticPrices), nil
	default:
		return nil, fmt.Errorf("unsupported price provider: %s", name)
	}
}
