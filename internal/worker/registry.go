package worker

import (
	"sort"
	"sync"

	"wordloom/internal/logging"
	"wordloom/internal/types"
)

// Registry holds the registered workers, keyed by typed WorkerID. It is
// populated at startup and read-mostly afterwards.
type Registry struct {
	mu      sync.RWMutex
	workers map[types.WorkerID]types.Worker
}

// Compile-time assertion that Registry satisfies the shared interface.
var _ types.WorkerRegistry = (*Registry)(nil)

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{workers: make(map[types.WorkerID]types.Worker)}
}

// Register adds or replaces a worker.
func (r *Registry) Register(w types.Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[w.Metadata().ID] = w
	logging.Boot("registered worker %s (%s)", w.Metadata().ID, w.Metadata().Name)
}

// Get resolves a worker id.
func (r *Registry) Get(id types.WorkerID) (types.Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[id]
	return w, ok
}

// List returns all workers ordered by id for deterministic iteration.
func (r *Registry) List() []types.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Worker, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Metadata().ID < out[j].Metadata().ID
	})
	return out
}

// NewDefaultRegistry builds the registry with all builtin workers wired to
// the given backend.
func NewDefaultRegistry(gen types.GenerationBackend) *Registry {
	r := NewRegistry()
	for _, w := range BuiltinWorkers(gen) {
		r.Register(w)
	}
	return r
}
