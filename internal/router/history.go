package router

import (
	"strings"
	"sync"
	"time"

	"wordloom/internal/types"
)

// Record is one routed request kept in the bounded history.
type Record struct {
	Timestamp  time.Time             `json:"timestamp"`
	Kind       types.TaskKind        `json:"task_kind"`
	Summary    string                `json:"summary"` // first 120 chars of the request
	Primary    types.WorkerID        `json:"primary"`
	Supporting []types.WorkerID      `json:"supporting,omitempty"`
	Complexity types.Complexity      `json:"complexity"`
	Risk       types.Risk            `json:"risk"`
	Permission types.PermissionLevel `json:"permission"`
	Fallback   bool                  `json:"fallback"` // reasoning came from the keyword fallback
}

// Stats summarizes routing activity since startup.
type Stats struct {
	TotalRouted    int                      `json:"total_routed"`
	FallbackCount  int                      `json:"fallback_count"`
	ByPrimary      map[types.WorkerID]int   `json:"by_primary"`
	ByRisk         map[types.Risk]int       `json:"by_risk"`
	ByComplexity   map[types.Complexity]int `json:"by_complexity"`
	AvgEstDuration time.Duration            `json:"avg_estimated_duration_ns"`
}

// history is the router's process-wide mutable state. Only the router
// mutates it; readers use snapshot copies.
type history struct {
	mu      sync.RWMutex
	size    int
	records []Record

	total       int
	fallbacks   int
	byPrimary   map[types.WorkerID]int
	byRisk      map[types.Risk]int
	byComplex   map[types.Complexity]int
	avgDuration time.Duration
}

func newHistory(size int) *history {
	if size <= 0 {
		size = 200
	}
	return &history{
		size:      size,
		byPrimary: make(map[types.WorkerID]int),
		byRisk:    make(map[types.Risk]int),
		byComplex: make(map[types.Complexity]int),
	}
}

func (h *history) record(req types.Request, d *types.RoutingDecision) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec := Record{
		Timestamp:  time.Now(),
		Kind:       req.Kind,
		Summary:    truncate(req.Content, 120),
		Primary:    d.PrimaryWorker,
		Supporting: append([]types.WorkerID(nil), d.SupportingWorkers...),
		Complexity: d.Complexity,
		Risk:       d.Risk,
		Permission: d.RequiredPermissions,
		Fallback:   strings.HasPrefix(d.Reasoning, "fallback due to analysis failure"),
	}
	if len(h.records) == h.size {
		copy(h.records, h.records[1:])
		h.records[len(h.records)-1] = rec
	} else {
		h.records = append(h.records, rec)
	}

	h.total++
	if rec.Fallback {
		h.fallbacks++
	}
	h.byPrimary[d.PrimaryWorker]++
	h.byRisk[d.Risk]++
	h.byComplex[d.Complexity]++
	h.avgDuration += time.Duration((float64(d.EstimatedDuration) - float64(h.avgDuration)) / float64(h.total))
}

func (h *history) stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := Stats{
		TotalRouted:    h.total,
		FallbackCount:  h.fallbacks,
		ByPrimary:      make(map[types.WorkerID]int, len(h.byPrimary)),
		ByRisk:         make(map[types.Risk]int, len(h.byRisk)),
		ByComplexity:   make(map[types.Complexity]int, len(h.byComplex)),
		AvgEstDuration: h.avgDuration,
	}
	for k, v := range h.byPrimary {
		s.ByPrimary[k] = v
	}
	for k, v := range h.byRisk {
		s.ByRisk[k] = v
	}
	for k, v := range h.byComplex {
		s.ByComplexity[k] = v
	}
	return s
}

func (h *history) list() []Record {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Record(nil), h.records...)
}
