package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSignalClosed(t *testing.T) {
	pm := GetPrometheusMetrics()

	before := testutil.ToFloat64(signalClosedTotal.WithLabelValues("target", "true"))
	pm.RecordSignalClosed("target", true)
	pm.RecordSignalClosed("target", true)
	after := testutil.ToFloat64(signalClosedTotal.WithLabelValues("target", "true"))

	if after-before != 2 {
		t.Errorf("期望增加2, 实际增加 %v", after-before)
	}
}

func TestRecordCacheRead(t *testing.T) {
	pm := GetPrometheusMetrics()

	hits := testutil.ToFloat64(cacheReadTotal.WithLabelValues("history", "hit"))
	misses := testutil.ToFloat64(cacheReadTotal.WithLabelValues("history", "miss"))

	pm.RecordCacheRead("history", true)
	pm.RecordCacheRead("history", false)
	pm.RecordCacheRead("history", false)

	if d := testutil.ToFloat64(cacheReadTotal.WithLabelValues("history", "hit")) - hits; d != 1 {
		t.Errorf("hit 增量 = %v, want 1", d)
	}
	if d := testutil.ToFloat64(cacheReadTotal.WithLabelValues("history", "miss")) - misses; d != 2 {
		t.Errorf("miss 增量 = %v, want 2", d)
	}
}

func TestGauges(t *testing.T) {
	pm := GetPrometheusMetrics()

	pm.SetOpenSignals(7)
	if v := testutil.ToFloat64(openSignals); v != 7 {
		t.Errorf("open signals = %v, want 7", v)
	}

	ts := time.Unix(1700000000, 0)
	pm.SetLastRefresh(ts)
	if v := testutil.ToFloat64(lastRefreshTimestamp); v != 1700000000 {
		t.Errorf("last refresh = %v", v)
	}
}

func TestSystemCollectorCollect(t *testing.T) {
	c := NewSystemMetricsCollector(time.Minute)
	defer c.Stop()

	c.collect()
	if v := testutil.ToFloat64(goroutineCount); v <= 0 {
		t.Errorf("goroutines = %v, want > 0", v)
	}
}
