package orchestrator

import (
	"fmt"

	"wordloom/internal/types"
)

// validateWorkflow checks a workflow before it is admitted: every referenced
// dependency must exist, the dependency graph must be acyclic, priorities
// must be in range, and the required permission level must not exceed the
// granted one.
func validateWorkflow(wf *types.Workflow, required, granted types.PermissionLevel) error {
	byID := make(map[string]*types.Task, len(wf.Tasks))
	for _, t := range wf.Tasks {
		if t.ID == "" {
			return fmt.Errorf("%w: task with empty id", types.ErrInvalidRequest)
		}
		if _, dup := byID[t.ID]; dup {
			return fmt.Errorf("%w: duplicate task id %q", types.ErrInvalidRequest, t.ID)
		}
		if t.Priority < 1 || t.Priority > 4 {
			return fmt.Errorf("%w: task %q priority %d out of range 1-4", types.ErrInvalidRequest, t.ID, t.Priority)
		}
		byID[t.ID] = t
	}

	for _, t := range wf.Tasks {
		for _, dep := range t.DependsOn {
			if _, ok := byID[dep]; !ok {
				return fmt.Errorf("%w: task %q references unknown dependency %q",
					types.ErrInvalidRequest, t.ID, dep)
			}
		}
	}

	if cycle := findCycle(wf.Tasks); cycle != "" {
		return fmt.Errorf("%w: %s", types.ErrCyclicDependency, cycle)
	}

	if required.Rank() > granted.Rank() {
		return fmt.Errorf("%w: decision requires %s but request grants %s",
			types.ErrPermissionOverreach, required, granted)
	}
	return nil
}

// findCycle runs a DFS with temporary/permanent marks and returns a
// description of the first back edge found, or "" for an acyclic graph.
func findCycle(tasks []*types.Task) string {
	const (
		unmarked = 0
		temp     = 1
		perm     = 2
	)
	marks := make(map[string]int, len(tasks))
	deps := make(map[string][]string, len(tasks))
	for _, t := range tasks {
		deps[t.ID] = t.DependsOn
	}

	var visit func(id string) string
	visit = func(id string) string {
		switch marks[id] {
		case perm:
			return ""
		case temp:
			return fmt.Sprintf("cycle through task %q", id)
		}
		marks[id] = temp
		for _, dep := range deps[id] {
			if msg := visit(dep); msg != "" {
				return msg
			}
		}
		marks[id] = perm
		return ""
	}

	for _, t := range tasks {
		if msg := visit(t.ID); msg != "" {
			return msg
		}
	}
	return ""
}

// transitiveDependents returns the ids of every task that depends, directly
// or transitively, on root.
func transitiveDependents(tasks []*types.Task, root string) map[string]bool {
	dependents := make(map[string][]string)
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			dependents[dep] = append(dependents[dep], t.ID)
		}
	}

	out := make(map[string]bool)
	queue := []string{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range dependents[cur] {
			if !out[next] {
				out[next] = true
				queue = append(queue, next)
			}
		}
	}
	return out
}
