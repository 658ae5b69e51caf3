package signals

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmasignals/database"
	"pharmasignals/event"
	"pharmasignals/lock"
)

type schedulerFixture struct {
	store     database.Database
	oracle    *fakeOracle
	clock     *fakeClock
	scheduler *Scheduler
}

func newSchedulerFixture(t *testing.T, store database.Database, fo *fakeOracle, distLock lock.DistributedLock, events *event.EventBus) *schedulerFixture {
	t.Helper()
	clock := newFakeClock()
	r := NewReconciler(store, fo, clock, events, ReconcilerConfig{LookupTimeout: time.Second, MaxConcurrency: 4})
	s := NewScheduler(store, r, clock, distLock, events, SchedulerConfig{
		Interval:    120 * time.Second,
		PassTimeout: 5 * time.Second,
	})
	return &schedulerFixture{store: store, oracle: fo, clock: clock, scheduler: s}
}

func (f *schedulerFixture) setLastUpdate(t *testing.T, at time.Time) {
	t.Helper()
	require.NoError(t, f.store.SetSetting(context.Background(), LastPriceUpdateKey, at.UTC().Format(time.RFC3339Nano)))
}

func TestSchedulerColdStartRefreshes(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedSignal(t, store, "PFE", 10, 15)
	seedSignal(t, store, "MRK", 20, 30)

	f := newSchedulerFixture(t, store, newFakeOracle(map[string]float64{"PFE": 11, "MRK": 21}), nil, nil)

	last, err := f.scheduler.LastRefresh(ctx)
	require.NoError(t, err)
	assert.True(t, last.IsZero())

	open, err := f.scheduler.OpenSignals(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, 1, f.oracle.callCount("PFE"))
	assert.Equal(t, 1, f.oracle.callCount("MRK"))

	last, err = f.scheduler.LastRefresh(ctx)
	require.NoError(t, err)
	assert.True(t, last.Equal(f.clock.Now()))
}

func TestSchedulerRespectsInterval(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedSignal(t, store, "PFE", 10, 15)
	seedSignal(t, store, "MRK", 20, 30)

	f := newSchedulerFixture(t, store, newFakeOracle(map[string]float64{"PFE": 11, "MRK": 21}), nil, nil)

	f.setLastUpdate(t, f.clock.Now().Add(-30*time.Second))
	open, err := f.scheduler.OpenSignals(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 2)
	assert.Equal(t, 0, f.oracle.totalCalls())

	f.setLastUpdate(t, f.clock.Now().Add(-130*time.Second))
	_, err = f.scheduler.OpenSignals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.oracle.callCount("PFE"))
	assert.Equal(t, 1, f.oracle.callCount("MRK"))

	// 刚刷新过，不再查询
	_, err = f.scheduler.OpenSignals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.oracle.totalCalls())

	f.clock.Advance(119 * time.Second)
	_, err = f.scheduler.OpenSignals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, f.oracle.totalCalls())

	f.clock.Advance(time.Second)
	_, err = f.scheduler.OpenSignals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, f.oracle.totalCalls())
}

func TestSchedulerFutureTimestampIsStale(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedSignal(t, store, "PFE", 10, 15)

	f := newSchedulerFixture(t, store, newFakeOracle(map[string]float64{"PFE": 11}), nil, nil)
	f.setLastUpdate(t, f.clock.Now().Add(time.Hour))

	_, err := f.scheduler.OpenSignals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.oracle.callCount("PFE"))
}

func TestSchedulerUnparsableTimestampIsStale(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedSignal(t, store, "PFE", 10, 15)
	require.NoError(t, store.SetSetting(ctx, LastPriceUpdateKey, "not-a-time"))

	f := newSchedulerFixture(t, store, newFakeOracle(map[string]float64{"PFE": 11}), nil, nil)

	_, err := f.scheduler.OpenSignals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, f.oracle.callCount("PFE"))
}

func TestSchedulerConcurrentReadersArchiveOnce(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedSignal(t, store, "PFE", 10, 15)
	seedSignal(t, store, "MRK", 20, 30)

	fo := newFakeOracle(map[string]float64{"PFE": 16, "MRK": 22})
	fo.delay = 30 * time.Millisecond
	f := newSchedulerFixture(t, store, fo, nil, nil)

	const readers = 10
	var wg sync.WaitGroup
	results := make([][]*database.Signal, readers)
	errs := make([]error, readers)
	for i := 0; i < readers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.scheduler.OpenSignals(ctx)
		}()
	}
	wg.Wait()

	for i := 0; i < readers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, []string{"MRK"}, symbols(results[i]))
	}
	assert.Equal(t, 1, fo.callCount("PFE"))
	assert.Equal(t, 1, fo.callCount("MRK"))

	history := listHistory(t, store)
	require.Len(t, history, 1)
	assert.Equal(t, "PFE", history[0].Symbol)
}

func TestSchedulerLockConflictReturnsStoredRows(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedSignal(t, store, "PFE", 10, 15)

	distLock := &fakeLock{acquire: false}
	f := newSchedulerFixture(t, store, newFakeOracle(map[string]float64{"PFE": 16}), distLock, nil)

	open, err := f.scheduler.OpenSignals(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, 10.0, open[0].PriceNow)
	assert.Equal(t, 0, f.oracle.totalCalls())
	assert.Empty(t, listHistory(t, store))
}

func TestSchedulerLockErrorFallsBackToLocalRefresh(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedSignal(t, store, "PFE", 10, 15)

	distLock := &fakeLock{err: errors.New("redis unreachable")}
	f := newSchedulerFixture(t, store, newFakeOracle(map[string]float64{"PFE": 12}), distLock, nil)

	open, err := f.scheduler.OpenSignals(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, 12.0, open[0].PriceNow)
	assert.Equal(t, 1, f.oracle.callCount("PFE"))
	assert.Equal(t, 0, distLock.unlocked)
}

func TestSchedulerReleasesLock(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedSignal(t, store, "PFE", 10, 15)

	distLock := &fakeLock{acquire: true}
	f := newSchedulerFixture(t, store, newFakeOracle(map[string]float64{"PFE": 12}), distLock, nil)

	_, err := f.scheduler.OpenSignals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, distLock.unlocked)
}

func TestSchedulerPersistenceErrorKeepsTimestamp(t *testing.T) {
	ctx := context.Background()
	base := newTestStore(t)
	seedSignal(t, base, "PFE", 10, 15)

	store := &failingStore{Database: base, updatePriceErr: errors.New("database is locked")}
	f := newSchedulerFixture(t, store, newFakeOracle(map[string]float64{"PFE": 12}), nil, nil)

	_, err := f.scheduler.OpenSignals(ctx)
	require.Error(t, err)
	var pe *PersistenceError
	assert.True(t, errors.As(err, &pe))

	last, err := f.scheduler.LastRefresh(ctx)
	require.NoError(t, err)
	assert.True(t, last.IsZero())
}

func TestSchedulerOracleFailureIsolation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedSignal(t, store, "A", 10, 100)
	seedSignal(t, store, "B", 20, 100)
	seedSignal(t, store, "C", 30, 100)

	fo := newFakeOracle(map[string]float64{"A": 12, "C": 33})
	fo.fail("B", errors.New("HTTP 503"))
	f := newSchedulerFixture(t, store, fo, nil, nil)

	open, err := f.scheduler.OpenSignals(ctx)
	require.NoError(t, err)
	require.Len(t, open, 3)
	assert.Equal(t, []float64{12, 20, 33}, []float64{open[0].PriceNow, open[1].PriceNow, open[2].PriceNow})

	last, err := f.scheduler.LastRefresh(ctx)
	require.NoError(t, err)
	assert.False(t, last.IsZero())
}

func TestSchedulerPassSurvivesCallerCancel(t *testing.T) {
	store := newTestStore(t)
	seedSignal(t, store, "PFE", 10, 15)

	fo := newFakeOracle(map[string]float64{"PFE": 12})
	fo.delay = 100 * time.Millisecond
	f := newSchedulerFixture(t, store, fo, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.scheduler.OpenSignals(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.Eventually(t, func() bool {
		last, err := f.scheduler.LastRefresh(context.Background())
		return err == nil && !last.IsZero()
	}, 2*time.Second, 10*time.Millisecond)

	stored := listOpen(t, store)
	require.Len(t, stored, 1)
	assert.Equal(t, 12.0, stored[0].PriceNow)
}

func TestSchedulerSetInterval(t *testing.T) {
	f := newSchedulerFixture(t, newTestStore(t), newFakeOracle(nil), nil, nil)
	assert.Equal(t, 120*time.Second, f.scheduler.Interval())

	f.scheduler.SetInterval(30 * time.Second)
	assert.Equal(t, 30*time.Second, f.scheduler.Interval())

	f.scheduler.SetInterval(0)
	assert.Equal(t, 30*time.Second, f.scheduler.Interval())
}

func TestSchedulerPublishesRefreshEvent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	seedSignal(t, store, "PFE", 10, 15)
	seedSignal(t, store, "MRK", 20, 30)

	events := event.NewEventBus(10)
	defer events.Close()
	f := newSchedulerFixture(t, store, newFakeOracle(map[string]float64{"PFE": 15, "MRK": 21}), nil, events)

	_, err := f.scheduler.OpenSignals(ctx)
	require.NoError(t, err)

	var refreshed *event.Event
	for refreshed == nil {
		select {
		case ev := <-events.Subscribe():
			if ev.Type == event.EventTypeSignalsRefreshed {
				refreshed = ev
			}
		case <-time.After(time.Second):
			t.Fatal("no refresh event")
		}
	}
	assert.Equal(t, 1, refreshed.Data["open"])
	assert.Equal(t, 1, refreshed.Data["closed"])
}
