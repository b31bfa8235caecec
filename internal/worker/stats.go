package worker

import (
	"sync"
	"time"

	"wordloom/internal/types"
)

// recentBufferSize bounds the ring buffer of recent task summaries.
const recentBufferSize = 100

// TaskSummary is one entry of the recent-task ring buffer.
type TaskSummary struct {
	TaskID         string        `json:"task_id"`
	Success        bool          `json:"success"`
	Confidence     float64       `json:"confidence"`
	ProcessingTime time.Duration `json:"processing_time_ns"`
	Timestamp      time.Time     `json:"timestamp"`
	ErrorKind      types.ErrorKind `json:"error_kind,omitempty"`
}

// PerfStats holds a worker's in-memory performance counters. Only the owning
// worker mutates them; readers get a snapshot copy.
type PerfStats struct {
	mu sync.RWMutex

	total     int64
	succeeded int64
	failed    int64

	avgProcessing time.Duration
	avgConfidence float64

	recent []TaskSummary // ring buffer, newest last
}

// NewPerfStats returns empty counters.
func NewPerfStats() *PerfStats {
	return &PerfStats{recent: make([]TaskSummary, 0, recentBufferSize)}
}

// Record updates the counters with one completed execution.
func (s *PerfStats) Record(sum TaskSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	if sum.Success {
		s.succeeded++
		// Rolling averages track successful executions only; confidence is
		// undefined for failures.
		n := float64(s.succeeded)
		s.avgConfidence += (sum.Confidence - s.avgConfidence) / n
	} else {
		s.failed++
	}
	nt := float64(s.total)
	s.avgProcessing += time.Duration((float64(sum.ProcessingTime) - float64(s.avgProcessing)) / nt)

	if len(s.recent) == recentBufferSize {
		copy(s.recent, s.recent[1:])
		s.recent[len(s.recent)-1] = sum
	} else {
		s.recent = append(s.recent, sum)
	}
}

// StatsSnapshot is a copy of the counters for readers.
type StatsSnapshot struct {
	Total          int64         `json:"total"`
	Succeeded      int64         `json:"succeeded"`
	Failed         int64         `json:"failed"`
	AvgProcessing  time.Duration `json:"avg_processing_ns"`
	AvgConfidence  float64       `json:"avg_confidence"`
	RecentSuccess  float64       `json:"recent_success_rate"`
	RecentRecorded int           `json:"recent_recorded"`
}

// Snapshot returns a copy of the current counters.
func (s *PerfStats) Snapshot() StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recentOK := 0
	for _, r := range s.recent {
		if r.Success {
			recentOK++
		}
	}
	rate := 1.0
	if len(s.recent) > 0 {
		rate = float64(recentOK) / float64(len(s.recent))
	}
	return StatsSnapshot{
		Total:          s.total,
		Succeeded:      s.succeeded,
		Failed:         s.failed,
		AvgProcessing:  s.avgProcessing,
		AvgConfidence:  s.avgConfidence,
		RecentSuccess:  rate,
		RecentRecorded: len(s.recent),
	}
}
