package library

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SweepMetrics collects Prometheus counters for the batch sweeps.
type SweepMetrics struct {
	runs          *prometheus.CounterVec
	markedOverdue prometheus.Counter
	finesAssessed prometheus.Counter
}

// Sweep job labels.
const (
	JobFineSweep    = "fine_sweep"
	JobMemberReview = "member_review"
	JobOverdueSync  = "overdue_sync"
)

// NewSweepMetrics creates the sweep counters and registers them with reg.
func NewSweepMetrics(reg prometheus.Registerer) *SweepMetrics {
	m := &SweepMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "library_sweep_runs_total",
			Help: "Batch sweep runs by job and outcome.",
		}, []string{"job", "outcome"}),
		markedOverdue: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "library_records_marked_overdue_total",
			Help: "Borrowing records transitioned from borrowed to overdue.",
		}),
		finesAssessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "library_fines_assessed_total",
			Help: "Total fine amount (RM) assessed by the fine sweep.",
		}),
	}

	reg.MustRegister(m.runs, m.markedOverdue, m.finesAssessed)
	return m
}

// RecordRun counts one sweep run by outcome.
func (m *SweepMetrics) RecordRun(job string, ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.runs.WithLabelValues(job, outcome).Inc()
}

// RecordOverdue counts records flipped to overdue.
func (m *SweepMetrics) RecordOverdue(n int) {
	m.markedOverdue.Add(float64(n))
}

// RecordFines accumulates assessed fine amounts.
func (m *SweepMetrics) RecordFines(amount float64) {
	if amount > 0 {
		m.finesAssessed.Add(amount)
	}
}
