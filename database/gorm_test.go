package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) Database {
	t.Helper()
	db, err := NewDatabase(&Config{
		Type: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "signals.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestSignal(symbol string, enter, target float64) *Signal {
	return &Signal{
		Symbol:       symbol,
		Type:         SignalTypeBuy,
		EnterPrice:   enter,
		PriceNow:     enter,
		FirstTarget:  target,
		SecondTarget: target * 1.1,
		DateOpened:   time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		ReasonEn:     "Pipeline approval",
		ReasonAr:     "موافقة على دواء جديد",
	}
}

func archiveRecord(s *Signal, outPrice float64) *HistoryRecord {
	return &HistoryRecord{
		SignalID:     s.ID,
		Symbol:       s.Symbol,
		EntranceDate: s.DateOpened,
		ClosingDate:  time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		InPrice:      s.EnterPrice,
		OutPrice:     outPrice,
		Success:      s.EnterPrice < outPrice,
		CloseReason:  CloseReasonTarget,
		ReasonEn:     s.ReasonEn,
		ReasonAr:     s.ReasonAr,
	}
}

func TestSignalCRUD(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	a := newTestSignal("PFE", 25, 30)
	b := newTestSignal("MRK", 100, 120)
	require.NoError(t, db.CreateSignal(ctx, a))
	require.NoError(t, db.CreateSignal(ctx, b))
	assert.NotZero(t, a.ID)

	signals, err := db.ListOpenSignals(ctx)
	require.NoError(t, err)
	require.Len(t, signals, 2)
	assert.Equal(t, "PFE", signals[0].Symbol, "open signals are ordered by id")
	assert.Equal(t, "موافقة على دواء جديد", signals[0].ReasonAr)

	require.NoError(t, db.UpdateSignalPrice(ctx, a.ID, 27.5))
	got, err := db.GetSignal(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 27.5, got.PriceNow)

	// 价格未变化不应报不存在
	require.NoError(t, db.UpdateSignalPrice(ctx, a.ID, 27.5))

	// 只写入代码和方向
	got.Type = SignalTypeSell
	got.FirstTarget = 1
	got.EnterPrice = 1
	got.ReasonEn = "Revised"
	require.NoError(t, db.UpdateSignal(ctx, got))
	got, err = db.GetSignal(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, SignalTypeSell, got.Type)
	assert.Equal(t, a.FirstTarget, got.FirstTarget)
	assert.Equal(t, a.EnterPrice, got.EnterPrice)
	assert.Equal(t, a.ReasonEn, got.ReasonEn)

	require.NoError(t, db.DeleteSignal(ctx, b.ID))
	_, err = db.GetSignal(ctx, b.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.ErrorIs(t, db.DeleteSignal(ctx, b.ID), ErrNotFound)
	assert.ErrorIs(t, db.UpdateSignalPrice(ctx, b.ID, 1), ErrNotFound)
}

func TestArchiveSignal(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	s := newTestSignal("NVS", 10, 15)
	require.NoError(t, db.CreateSignal(ctx, s))

	require.NoError(t, db.ArchiveSignal(ctx, archiveRecord(s, 16)))

	_, err := db.GetSignal(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	history, err := db.ListHistory(ctx, nil)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, s.ID, history[0].SignalID)
	assert.Equal(t, 16.0, history[0].OutPrice)
	assert.True(t, history[0].Success)

	// 第二次归档同一信号是空操作
	assert.ErrorIs(t, db.ArchiveSignal(ctx, archiveRecord(s, 17)), ErrNotFound)
	history, err = db.ListHistory(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestArchiveSignalConcurrent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	s := newTestSignal("AZN", 50, 55)
	require.NoError(t, db.CreateSignal(ctx, s))

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		notFound  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.ArchiveSignal(ctx, archiveRecord(s, 56))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrNotFound):
				notFound++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, notFound)

	history, err := db.ListHistory(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestListHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	for i, sym := range []string{"PFE", "MRK", "LLY"} {
		s := newTestSignal(sym, 10, 12)
		require.NoError(t, db.CreateSignal(ctx, s))
		rec := archiveRecord(s, 13)
		rec.CreatedAt = time.Date(2024, 3, 1+i, 12, 0, 0, 0, time.UTC)
		require.NoError(t, db.ArchiveSignal(ctx, rec))
	}

	history, err := db.ListHistory(ctx, nil)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []string{"LLY", "MRK", "PFE"}, []string{history[0].Symbol, history[1].Symbol, history[2].Symbol})

	filtered, err := db.ListHistory(ctx, &HistoryFilter{Symbol: "MRK"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "MRK", filtered[0].Symbol)

	limited, err := db.ListHistory(ctx, &HistoryFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestHistoryReasonsAndStats(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	win := newTestSignal("PFE", 10, 15)
	loss := newTestSignal("MRK", 20, 15)
	require.NoError(t, db.CreateSignal(ctx, win))
	require.NoError(t, db.CreateSignal(ctx, loss))
	require.NoError(t, db.ArchiveSignal(ctx, archiveRecord(win, 16)))
	require.NoError(t, db.ArchiveSignal(ctx, archiveRecord(loss, 16)))

	stats, err := db.GetHistoryStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Successes)
	assert.InDelta(t, 0.5, stats.SuccessRate, 1e-9)

	history, err := db.ListHistory(ctx, &HistoryFilter{Symbol: "PFE"})
	require.NoError(t, err)
	require.Len(t, history, 1)

	id := history[0].ID
	require.NoError(t, db.UpdateHistoryReasons(ctx, id, "Target hit", "تحقق الهدف"))
	rec, err := db.GetHistoryRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Target hit", rec.ReasonEn)
	assert.Equal(t, "تحقق الهدف", rec.ReasonAr)

	assert.ErrorIs(t, db.UpdateHistoryReasons(ctx, 9999, "x", "y"), ErrNotFound)

	require.NoError(t, db.DeleteHistoryRecord(ctx, id))
	assert.ErrorIs(t, db.DeleteHistoryRecord(ctx, id), ErrNotFound)
}

func TestSettingsUpsert(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.GetSetting(ctx, "last_price_update")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.SetSetting(ctx, "last_price_update", "a"))
	require.NoError(t, db.SetSetting(ctx, "last_price_update", "b"))

	v, err := db.GetSetting(ctx, "last_price_update")
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestAdminUserUpsert(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.GetAdminUser(ctx, "admin")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.SaveAdminUser(ctx, &AdminUser{Username: "admin", PasswordHash: "h1"}))
	require.NoError(t, db.SaveAdminUser(ctx, &AdminUser{Username: "admin", PasswordHash: "h2"}))

	user, err := db.GetAdminUser(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "h2", user.PasswordHash)
}

func TestWithSQLiteDefaults(t *testing.T) {
	assert.Equal(t, "a.db?_busy_timeout=5000&_journal_mode=WAL", withSQLiteDefaults("a.db"))
	assert.Equal(t, "a.db?_busy_timeout=100&_journal_mode=WAL", withSQLiteDefaults("a.db?_busy_timeout=100"))
}
