package oracle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAlphaVantage(t *testing.T, handler http.HandlerFunc) *AlphaVantage {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	av, err := NewAlphaVantage(AlphaVantageConfig{
		APIKey:            "demo",
		BaseURL:           srv.URL,
		Timeout:           time.Second,
		RequestsPerMinute: 6000,
		Burst:             10,
	})
	require.NoError(t, err)
	return av
}

func TestAlphaVantageFetchCurrentPrice(t *testing.T) {
	av := newTestAlphaVantage(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GLOBAL_QUOTE", r.URL.Query().Get("function"))
		assert.Equal(t, "PFE", r.URL.Query().Get("symbol"))
		assert.Equal(t, "demo", r.URL.Query().Get("apikey"))
		w.Write([]byte(`{"Global Quote": {"01. symbol": "PFE", "05. price": "28.4500"}}`))
	})

	price, err := av.FetchCurrentPrice(context.Background(), " pfe ")
	require.NoError(t, err)
	assert.Equal(t, 28.45, price)
}

func TestAlphaVantageFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "rate limit note", status: 200, body: `{"Note": "Thank you for using Alpha Vantage! Our standard API call frequency is 5 calls per minute."}`},
		{name: "information", status: 200, body: `{"Information": "rate limit reached"}`},
		{name: "error message", status: 200, body: `{"Error Message": "Invalid API call."}`},
		{name: "unknown symbol", status: 200, body: `{"Global Quote": {}}`, wantErr: ErrUnknownSymbol},
		{name: "malformed json", status: 200, body: `{"Global Quote": `},
		{name: "non numeric price", status: 200, body: `{"Global Quote": {"05. price": "n/a"}}`},
		{name: "zero price", status: 200, body: `{"Global Quote": {"05. price": "0.0000"}}`},
		{name: "server error", status: 500, body: `oops`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			av := newTestAlphaVantage(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := av.FetchCurrentPrice(context.Background(), "MRK")
			require.Error(t, err)

			var lookupErr *PriceLookupError
			require.True(t, errors.As(err, &lookupErr), "error must be a PriceLookupError: %v", err)
			assert.Equal(t, "MRK", lookupErr.Symbol)
			assert.Equal(t, "alphavantage", lookupErr.Provider)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestAlphaVantageTimeoutIsLookupError(t *testing.T) {
	av := newTestAlphaVantage(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := av.FetchCurrentPrice(ctx, "LLY")
	require.Error(t, err)
	assert.True(t, IsPriceLookupError(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestAlphaVantageNoRetry(t *testing.T) {
	var calls atomic.Int32
	av := newTestAlphaVantage(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := av.FetchCurrentPrice(context.Background(), "AZN")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestStatic(t *testing.T) {
	s := NewStatic(map[string]float64{"pfe": 28})

	price, err := s.FetchCurrentPrice(context.Background(), "PFE")
	require.NoError(t, err)
	assert.Equal(t, 28.0, price)

	_, err = s.FetchCurrentPrice(context.Background(), "XYZ")
	assert.ErrorIs(t, err, ErrUnknownSymbol)
	assert.True(t, IsPriceLookupError(err))

	s.Set("XYZ", 5)
	price, err = s.FetchCurrentPrice(context.Background(), "xyz")
	require.NoError(t, err)
	assert.Equal(t, 5.0, price)
}

func TestFailover(t *testing.T) {
	primary := NewStatic(map[string]float64{"PFE": 28})
	fallback := NewStatic(map[string]float64{"PFE": 30, "MRK": 120})
	f := NewFailover(primary, fallback)

	price, err := f.FetchCurrentPrice(context.Background(), "PFE")
	require.NoError(t, err)
	assert.Equal(t, 28.0, price, "primary wins when available")

	price, err = f.FetchCurrentPrice(context.Background(), "MRK")
	require.NoError(t, err)
	assert.Equal(t, 120.0, price)

	_, err = f.FetchCurrentPrice(context.Background(), "NVS")
	require.Error(t, err)
	assert.True(t, IsPriceLookupError(err))
	assert.ErrorIs(t, err, ErrUnknownSymbol)
}

func TestNewFromConfig(t *testing.T) {
	o, err := New(&Config{Provider: "static", StaticPrices: map[string]float64{"PFE": 1}})
	require.NoError(t, err)
	assert.Equal(t, "static", o.Name())

	o, err = New(&Config{Provider: "alphavantage", Fallback: "static", APIKey: "k"})
	require.NoError(t, err)
	_, ok := o.(*Failover)
	assert.True(t, ok)

	_, err = New(&Config{Provider: "yahoo"})
	assert.Error(t, err)

	_, err = New(&Config{Provider: "alphavantage"})
	assert.Error(t, err, "missing api key")
}
