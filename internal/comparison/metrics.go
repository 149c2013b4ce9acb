package comparison

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// evaluationsTotal counts classifier evaluations by mode and result
	evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cacp_evaluations_total",
		Help: "Classifier evaluations by mode (batch, incremental) and result (ok, failed)",
	}, []string{"mode", "result"})

	// phaseDuration tracks fit, predict and learn latency
	phaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cacp_phase_duration_seconds",
		Help:    "Time spent in classifier phases",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 12),
	}, []string{"mode", "phase"})

	// checkpointsWritten counts comparison files durably written
	checkpointsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cacp_checkpoints_written_total",
		Help: "Comparison checkpoints written",
	})

	// foldsCompleted counts folds whose classifiers have all finished
	foldsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cacp_folds_completed_total",
		Help: "Folds evaluated by every classifier",
	})
)

const (
	modeBatch       = "batch"
	modeIncremental = "incremental"
)

// ProgressFunc receives (completed, total) work units. Batch runs count
// folds, incremental runs count (dataset, classifier) pairs.
type ProgressFunc func(completed, total int)

type progress struct {
	mu        sync.Mutex
	completed int
	total     int
	fn        ProgressFunc
}

func newProgress(total int, fn ProgressFunc) *progress {
	p := &progress{total: total, fn: fn}
	p.report()
	return p
}

// add advances the counter; callbacks are serialized so observers never see
// the count go backwards.
func (p *progress) add(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed += n
	if p.completed > p.total {
		p.completed = p.total
	}
	if p.fn != nil {
		p.fn(p.completed, p.total)
	}
}

func (p *progress) report() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fn != nil {
		p.fn(p.completed, p.total)
	}
}
