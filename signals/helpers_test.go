package signals

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pharmasignals/database"
	"pharmasignals/oracle"
)

// fakeOracle 可控的价格源，记录每个代码的查询次数
type fakeOracle struct {
	mu       sync.Mutex
	prices   map[string]float64
	failures map[string]error
	calls    map[string]int
	delay    time.Duration
}

func newFakeOracle(prices map[string]float64) *fakeOracle {
	return &fakeOracle{
		prices:   prices,
		failures: make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (f *fakeOracle) Name() string { return "fake" }

func (f *fakeOracle) FetchCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	f.calls[symbol]++
	price, ok := f.prices[symbol]
	failure := f.failures[symbol]
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return 0, &oracle.PriceLookupError{Provider: "fake", Symbol: symbol, Err: ctx.Err()}
		}
	}
	if failure != nil {
		return 0, &oracle.PriceLookupError{Provider: "fake", Symbol: symbol, Err: failure}
	}
	if !ok {
		return 0, &oracle.PriceLookupError{Provider: "fake", Symbol: symbol, Err: oracle.ErrUnknownSymbol}
	}
	return price, nil
}

func (f *fakeOracle) setPrice(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = price
}

func (f *fakeOracle) fail(symbol string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[symbol] = err
}

func (f *fakeOracle) callCount(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

func (f *fakeOracle) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// fakeClock 手动推进的时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingStore 在指定操作上返回错误
type failingStore struct {
	database.Database
	updatePriceErr error
	archiveErr     error
}

func (s *failingStore) UpdateSignalPrice(ctx context.Context, id int64, price float64) error {
	if s.updatePriceErr != nil {
		return s.updatePriceErr
	}
	return s.Database.UpdateSignalPrice(ctx, id, price)
}

func (s *failingStore) ArchiveSignal(ctx context.Context, record *database.HistoryRecord) error {
	if s.archiveErr != nil {
		return s.archiveErr
	}
	return s.Database.ArchiveSignal(ctx, record)
}

// fakeLock 固定返回结果的分布式锁
type fakeLock struct {
	acquire bool
	err     error

	mu       sync.Mutex
	unlocked int
}

func (l *fakeLock) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.acquire, l.err
}

func (l *fakeLock) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unlocked++
	return nil
}

func (l *fakeLock) Close() error { return nil }

func newTestStore(t *testing.T) database.Database {
	t.Helper()
	db, err := database.NewDatabase(&database.Config{
		Type: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "signals.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedSignal(t *testing.T, store database.Database, symbol string, enter, target float64) *database.Signal {
	t.Helper()
	sig := &database.Signal{
		Symbol:       symbol,
		Type:         database.SignalTypeBuy,
		EnterPrice:   enter,
		PriceNow:     enter,
		FirstTarget:  target,
		SecondTarget: target + 1,
		DateOpened:   time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC),
		ReasonEn:     "Strong quarterly results",
		ReasonAr:     "نتائج ربع سنوية قوية",
	}
	require.NoError(t, store.CreateSignal(context.Background(), sig))
	return sig
}

func listOpen(t *testing.T, store database.Database) []*database.Signal {
	t.Helper()
	signals, err := store.ListOpenSignals(context.Background())
	require.NoError(t, err)
	return signals
}

func listHistory(t *testing.T, store database.Database) []*database.HistoryRecord {
	t.Helper()
	records, err := store.ListHistory(context.Background(), nil)
	require.NoError(t, err)
	return records
}

func symbols(signals []*database.Signal) []string {
	out := make([]string, 0, len(signals))
	for _, s := range signals {
		out = append(out, s.Symbol)
	}
	return out
}
