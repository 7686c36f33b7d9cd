// Package metrics holds the Prometheus collectors for habit operations.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "habitcoach"

type Metrics struct {
	// operations counts repository calls by operation and result
	operations *prometheus.CounterVec
	// duration tracks repository call latency
	duration *prometheus.HistogramVec
	// rollbacks counts optimistic mutations reverted after a backend failure
	rollbacks *prometheus.CounterVec
	// staleStreaks counts recomputes whose run reached the query window
	staleStreaks prometheus.Counter
	// snapshots counts subscription snapshots merged into the store
	snapshots prometheus.Counter
	// habits is the number of rows in the store
	habits prometheus.Gauge
	// coach counts chat requests by backend and result
	coach *prometheus.CounterVec
}

// New registers the collectors with reg. Pass prometheus.NewRegistry() in
// tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repository_operations_total",
			Help:      "Repository operations by operation and result",
		}, []string{"operation", "result"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "repository_operation_duration_seconds",
			Help:      "Repository operation duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}, []string{"operation"}),
		rollbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_rollbacks_total",
			Help:      "Optimistic mutations reverted by mutation kind",
		}, []string{"mutation"}),
		staleStreaks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_streak_warnings_total",
			Help:      "Streak recomputes that reached the bounded query window",
		}),
		snapshots: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_snapshots_total",
			Help:      "Subscription snapshots merged into the habit store",
		}),
		habits: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_habits",
			Help:      "Habits currently held by the store",
		}),
		coach: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coach_requests_total",
			Help:      "Coach chat requests by backend and result",
		}, []string{"backend", "result"}),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveOperation records one repository call that started at start.
func (m *Metrics) ObserveOperation(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, result(err)).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) Rollback(mutation string) {
	if m == nil {
		return
	}
	m.rollbacks.WithLabelValues(mutation).Inc()
}

func (m *Metrics) StaleStreak() {
	if m == nil {
		return
	}
	m.staleStreaks.Inc()
}

func (m *Metrics) Snapshot() {
	if m == nil {
		return
	}
	m.snapshots.Inc()
}

func (m *Metrics) SetHabits(n int) {
	if m == nil {
		return
	}
	m.habits.Set(float64(n))
}

func (m *Metrics) Coach(backend string, err error) {
	if m == nil {
		return
	}
	m.coach.WithLabelValues(backend, result(err)).Inc()
}
