package signals

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmasignals/database"
)

// blockingHistoryStore 让 ListHistory 阻塞到 release 关闭
type blockingHistoryStore struct {
	database.Database
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (s *blockingHistoryStore) ListHistory(ctx context.Context, filter *database.HistoryFilter) ([]*database.HistoryRecord, error) {
	if s.calls.Add(1) == 1 {
		close(s.started)
	}
	<-s.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Database.ListHistory(ctx, filter)
}

func TestHistoryCacheFillSurvivesCallerCancel(t *testing.T) {
	base := newTestStore(t)
	sig := seedSignal(t, base, "PFE", 10, 15)
	require.NoError(t, base.ArchiveSignal(context.Background(), &database.HistoryRecord{
		SignalID: sig.ID,
		Symbol:   sig.Symbol,
		InPrice:  10,
		OutPrice: 16,
		Success:  true,
	}))

	store := &blockingHistoryStore{
		Database: base,
		started:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	cache := NewHistoryCache(store, newFakeClock(), time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		records []*database.HistoryRecord
		err     error
	}
	done := make(chan result, 1)
	go func() {
		records, err := cache.Get(ctx)
		done <- result{records, err}
	}()

	<-store.started
	cancel()
	close(store.release)

	res := <-done
	require.NoError(t, res.err)
	assert.Len(t, res.records, 1)

	// 结果已写入缓存
	records, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, int32(1), store.calls.Load())
}
