package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/flywheel/internal/errs"
	"github.com/roach88/flywheel/internal/hybridlock"
	"github.com/roach88/flywheel/internal/store"
)

// gather returns the metric families from reg keyed by name.
func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

// labelsOf flattens a metric's label pairs.
func labelsOf(m *dto.Metric) map[string]string {
	out := make(map[string]string, len(m.GetLabel()))
	for _, l := range m.GetLabel() {
		out[l.GetName()] = l.GetValue()
	}
	return out
}

func TestStoreMetrics_ObserveStoreEvent(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewStoreMetrics(reg)
	ctx := context.Background()

	m.ObserveStoreEvent(ctx, store.Event{Op: store.OpSave, Path: "/tmp/a.json", Count: 3, Duration: 2 * time.Millisecond})
	m.ObserveStoreEvent(ctx, store.Event{Op: store.OpLoad, Path: "/tmp/a.json", Count: 3, Duration: time.Microsecond, Cached: true})
	m.ObserveStoreEvent(ctx, store.Event{
		Op:       store.OpSave,
		Path:     "/tmp/a.json",
		Count:    99,
		Duration: 10 * time.Second,
		Err:      errs.Timeout(store.OpSave, "/tmp/a.json", time.Second, errors.New("busy")),
	})

	families := gather(t, reg)

	ops := families["flywheel_store_operations_total"]
	require.NotNil(t, ops)
	counts := map[string]float64{}
	for _, metric := range ops.GetMetric() {
		l := labelsOf(metric)
		counts[l["op"]+"/"+l["code"]] = metric.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{"save/OK": 1, "load/OK": 1, "save/TIMEOUT": 1}, counts)

	dur := families["flywheel_store_operation_duration_seconds"]
	require.NotNil(t, dur)
	var saveSamples uint64
	for _, metric := range dur.GetMetric() {
		if labelsOf(metric)["op"] == store.OpSave {
			saveSamples = metric.GetHistogram().GetSampleCount()
		}
	}
	assert.Equal(t, uint64(2), saveSamples)

	hits := families["flywheel_store_cache_hits_total"]
	require.NotNil(t, hits)
	assert.Equal(t, 1.0, hits.GetMetric()[0].GetCounter().GetValue())

	// The failed save must not overwrite the entry gauge.
	entries := families["flywheel_store_entries"]
	require.NotNil(t, entries)
	assert.Equal(t, 3.0, entries.GetMetric()[0].GetGauge().GetValue())
}

func TestNewStoreMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewStoreMetrics(reg)
	assert.Panics(t, func() { NewStoreMetrics(reg) })
}

func TestLockCollector(t *testing.T) {
	stats := hybridlock.Stats{
		Acquisitions:        7,
		SuspendAcquisitions: 2,
		Contended:           3,
		Timeouts:            1,
		TotalWait:           1500 * time.Millisecond,
		MaxWait:             time.Second,
	}
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewLockCollector("todo", func() hybridlock.Stats { return stats })))

	families := gather(t, reg)
	want := map[string]float64{
		"flywheel_lock_acquisitions_total":         7,
		"flywheel_lock_suspend_acquisitions_total": 2,
		"flywheel_lock_contended_total":            3,
		"flywheel_lock_timeouts_total":             1,
		"flywheel_lock_wait_seconds_total":         1.5,
	}
	for name, v := range want {
		f := families[name]
		require.NotNil(t, f, name)
		assert.Equal(t, v, f.GetMetric()[0].GetCounter().GetValue(), name)
		assert.Equal(t, "todo", labelsOf(f.GetMetric()[0])["lock"], name)
	}
	maxWait := families["flywheel_lock_wait_max_seconds"]
	require.NotNil(t, maxWait)
	assert.Equal(t, 1.0, maxWait.GetMetric()[0].GetGauge().GetValue())
}

func TestLockCollector_ReadsStoreStats(t *testing.T) {
	s, err := store.Open(store.Config{Path: "todo.json", Root: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.Load(context.Background())
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(NewLockCollector("todo", s.LockStats)))

	families := gather(t, reg)
	acq := families["flywheel_lock_acquisitions_total"]
	require.NotNil(t, acq)
	assert.Equal(t, 1.0, acq.GetMetric()[0].GetCounter().GetValue())
}

func TestStoreMetrics_AsStoreObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewStoreMetrics(reg)

	s, err := store.Open(store.Config{Path: "todo.json", Root: t.TempDir(), Observers: []store.Observer{m}})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	_, err = s.Load(ctx)
	require.NoError(t, err)

	families := gather(t, reg)
	ops := families["flywheel_store_operations_total"]
	require.NotNil(t, ops)
	require.Len(t, ops.GetMetric(), 1)
	l := labelsOf(ops.GetMetric()[0])
	assert.Equal(t, store.OpLoad, l["op"])
	assert.Equal(t, "OK", l["code"])
}
