package orchestrator

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"wordloom/internal/types"
)

// WorkerMetrics is the per-worker slice of the global metrics.
type WorkerMetrics struct {
	TotalTasks      int64         `json:"total_tasks"`
	SuccessfulTasks int64         `json:"successful_tasks"`
	AvgProcessing   time.Duration `json:"avg_processing_ns"`
	SuccessRate     float64       `json:"success_rate"`
}

// GlobalMetrics is the snapshot returned by Orchestrator.Metrics.
type GlobalMetrics struct {
	TotalWorkflows     int64                            `json:"total_workflows"`
	Successful         int64                            `json:"successful"`
	Failed             int64                            `json:"failed"`
	Cancelled          int64                            `json:"cancelled"`
	AvgWorkflowTime    time.Duration                    `json:"avg_workflow_time_ns"`
	PerWorker          map[types.WorkerID]WorkerMetrics `json:"per_worker"`
}

// Collector owns the orchestrator's process-wide counters. Only the
// orchestrator writes; readers take snapshot copies. The same numbers are
// exported as Prometheus series when a registerer is supplied.
type Collector struct {
	mu sync.RWMutex

	totalWorkflows int64
	successful     int64
	failed         int64
	cancelled      int64
	avgWorkflow    time.Duration

	perWorker map[types.WorkerID]*WorkerMetrics

	promWorkflows *prometheus.CounterVec
	promTasks     *prometheus.CounterVec
	promDuration  prometheus.Histogram
}

// NewCollector creates a collector. reg may be nil to skip Prometheus
// registration (tests create many collectors).
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{perWorker: make(map[types.WorkerID]*WorkerMetrics)}
	if reg == nil {
		return c
	}
	c.promWorkflows = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wordloom",
		Name:      "workflows_total",
		Help:      "Workflows by terminal status.",
	}, []string{"status"})
	c.promTasks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wordloom",
		Name:      "tasks_total",
		Help:      "Tasks by worker and outcome.",
	}, []string{"worker", "outcome"})
	c.promDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "wordloom",
		Name:      "workflow_duration_seconds",
		Help:      "End-to-end workflow processing time.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
	})
	reg.MustRegister(c.promWorkflows, c.promTasks, c.promDuration)
	return c
}

// RecordCreated counts one admitted workflow. Called only after validation
// passes, so rejected requests never inflate the total.
func (c *Collector) RecordCreated() {
	c.mu.Lock()
	c.totalWorkflows++
	c.mu.Unlock()
}

// RecordWorkflow records one terminal workflow.
func (c *Collector) RecordWorkflow(status types.TaskStatus, elapsed time.Duration) {
	c.mu.Lock()
	switch status {
	case types.StatusCompleted:
		c.successful++
	case types.StatusFailed:
		c.failed++
	case types.StatusCancelled:
		c.cancelled++
	}
	finished := c.successful + c.failed + c.cancelled
	c.avgWorkflow += time.Duration((float64(elapsed) - float64(c.avgWorkflow)) / float64(finished))
	c.mu.Unlock()

	if c.promWorkflows != nil {
		c.promWorkflows.WithLabelValues(string(status)).Inc()
		c.promDuration.Observe(elapsed.Seconds())
	}
}

// RecordTask records one terminal task execution for its worker.
func (c *Collector) RecordTask(worker types.WorkerID, success bool, elapsed time.Duration) {
	c.mu.Lock()
	wm := c.perWorker[worker]
	if wm == nil {
		wm = &WorkerMetrics{}
		c.perWorker[worker] = wm
	}
	wm.TotalTasks++
	if success {
		wm.SuccessfulTasks++
	}
	wm.AvgProcessing += time.Duration((float64(elapsed) - float64(wm.AvgProcessing)) / float64(wm.TotalTasks))
	wm.SuccessRate = float64(wm.SuccessfulTasks) / float64(wm.TotalTasks)
	c.mu.Unlock()

	if c.promTasks != nil {
		outcome := "failed"
		if success {
			outcome = "completed"
		}
		c.promTasks.WithLabelValues(string(worker), outcome).Inc()
	}
}

// Snapshot returns a copy of the current metrics.
func (c *Collector) Snapshot() GlobalMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := GlobalMetrics{
		TotalWorkflows:  c.totalWorkflows,
		Successful:      c.successful,
		Failed:          c.failed,
		Cancelled:       c.cancelled,
		AvgWorkflowTime: c.avgWorkflow,
		PerWorker:       make(map[types.WorkerID]WorkerMetrics, len(c.perWorker)),
	}
	for id, wm := range c.perWorker {
		out.PerWorker[id] = *wm
	}
	return out
}
