package deviation

import (
	"fmt"
	"sync"

	"wordloom/internal/types"
)

// ObjectiveCategory classifies what a project objective governs.
type ObjectiveCategory string

const (
	CategoryContent      ObjectiveCategory = "content"
	CategoryStyle        ObjectiveCategory = "style"
	CategoryStructure    ObjectiveCategory = "structure"
	CategoryTone         ObjectiveCategory = "tone"
	CategoryAccuracy     ObjectiveCategory = "accuracy"
	CategoryClarity      ObjectiveCategory = "clarity"
	CategoryEngagement   ObjectiveCategory = "engagement"
	CategoryCompleteness ObjectiveCategory = "completeness"
	CategoryOther        ObjectiveCategory = "other"
)

// ObjectivePriority ranks how strongly an objective binds.
type ObjectivePriority string

const (
	PriorityLow      ObjectivePriority = "low"
	PriorityMedium   ObjectivePriority = "medium"
	PriorityHigh     ObjectivePriority = "high"
	PriorityCritical ObjectivePriority = "critical"
)

// Objective is one registered project objective.
type Objective struct {
	ID                 string            `json:"id"`
	Description        string            `json:"description"`
	Category           ObjectiveCategory `json:"category"`
	Priority           ObjectivePriority `json:"priority"`
	MeasurableCriteria []string          `json:"measurable_criteria,omitempty"`
	Constraints        []string          `json:"constraints,omitempty"`
}

// ObjectiveSet is the registered objectives for one project.
type ObjectiveSet struct {
	ProjectID  string      `json:"project_id"`
	Objectives []Objective `json:"objectives"`
}

// Registry maps project ids to their objective sets. Objective replacement
// is atomic and rejected while a workflow for that project is in flight.
type Registry struct {
	mu       sync.RWMutex
	sets     map[string]ObjectiveSet
	inFlight map[string]int
}

// NewRegistry creates an empty objectives registry.
func NewRegistry() *Registry {
	return &Registry{
		sets:     make(map[string]ObjectiveSet),
		inFlight: make(map[string]int),
	}
}

// Register replaces the project's objective set. An in-flight workflow for
// the project rejects the update.
func (r *Registry) Register(set ObjectiveSet) error {
	if set.ProjectID == "" {
		return fmt.Errorf("%w: objective set without project id", types.ErrInvalidRequest)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight[set.ProjectID] > 0 {
		return fmt.Errorf("%w: project %s has a workflow in flight",
			types.ErrInvalidRequest, set.ProjectID)
	}
	r.sets[set.ProjectID] = set
	return nil
}

// Get returns the project's objective set, if registered.
func (r *Registry) Get(projectID string) (ObjectiveSet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.sets[projectID]
	return set, ok
}

// BeginWorkflow marks the project as having a running workflow. The returned
// func releases the mark and must be called exactly once.
func (r *Registry) BeginWorkflow(projectID string) func() {
	if projectID == "" {
		return func() {}
	}
	r.mu.Lock()
	r.inFlight[projectID]++
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			if r.inFlight[projectID] > 0 {
				r.inFlight[projectID]--
			}
			r.mu.Unlock()
		})
	}
}
