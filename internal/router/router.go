// Package router analyzes incoming writing requests and produces routing
// decisions: primary worker, supporting workers, a dependency-aware task
// breakdown, required permission level, and a risk assessment.
//
// Route is deterministic given an identical worker registry and backend
// response: the keyword analysis path is pure, the single optional backend
// call contributes reasoning text only, and its failure is recovered locally.
package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wordloom/internal/config"
	"wordloom/internal/logging"
	"wordloom/internal/types"
)

// Router classifies requests and emits routing decisions. It maintains
// routing history and statistics behind its own mutex; readers receive
// snapshot copies.
type Router struct {
	cfg      config.RouterConfig
	registry types.WorkerRegistry
	gen      types.GenerationBackend // optional, for the analysis call
	history  *history
}

// New creates a router. gen may be nil to disable the analysis call.
func New(cfg config.RouterConfig, registry types.WorkerRegistry, gen types.GenerationBackend) *Router {
	return &Router{
		cfg:      cfg,
		registry: registry,
		gen:      gen,
		history:  newHistory(cfg.HistorySize),
	}
}

// Route produces the routing decision for a request.
func (r *Router) Route(ctx context.Context, req types.Request) (*types.RoutingDecision, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	a := analyzeRequest(req)
	primary := r.matchPrimary(req)
	supporting := r.selectSupporting(primary, a)
	breakdown := buildBreakdown(req, primary, supporting, a)

	decision := &types.RoutingDecision{
		PrimaryWorker:       primary,
		SupportingWorkers:   supporting,
		TaskBreakdown:       breakdown,
		Complexity:          a.Complexity,
		Risk:                a.Risk,
		RequiredPermissions: r.derivePermission(req, a),
		EstimatedDuration:   estimateDuration(a.Complexity, len(supporting)),
		Features:            a.Features,
	}
	decision.Reasoning = r.reasoning(ctx, req, decision)

	r.history.record(req, decision)
	logging.Router("routed request kind=%s primary=%s supporting=%v complexity=%s risk=%s perm=%s",
		req.Kind, decision.PrimaryWorker, decision.SupportingWorkers,
		decision.Complexity, decision.Risk, decision.RequiredPermissions)
	return decision, nil
}

// matchPrimary scores every registered worker by keyword overlap plus kind
// affinity and picks the argmax. Ties break on worker id order for
// determinism. When nothing scores above zero the generalist takes the task.
func (r *Router) matchPrimary(req types.Request) types.WorkerID {
	tokens := tokenSet(strings.ToLower(req.Content + " " + req.Context))

	best := types.WorkerGeneralist
	bestScore := 0
	for _, w := range r.registry.List() {
		meta := w.Metadata()
		if score := scoreWorker(tokens, req.Kind, meta); score > bestScore {
			best = meta.ID
			bestScore = score
		}
	}
	if _, ok := r.registry.Get(best); !ok {
		logging.Router("primary worker %s missing from registry, substituting generalist", best)
		best = types.WorkerGeneralist
	}
	return best
}

// selectSupporting adds up to the configured cap of supporting workers
// driven by the analysis flags, deduplicated against the primary and
// validated against the registry.
func (r *Router) selectSupporting(primary types.WorkerID, a analysis) []types.WorkerID {
	var candidates []types.WorkerID
	if a.Features.RequiresResearch {
		candidates = append(candidates, types.WorkerResearch)
	}
	if a.Features.RequiresCreativity {
		candidates = append(candidates, types.WorkerCreativeEnhancer)
	}
	if a.Complexity == types.ComplexityHigh {
		candidates = append(candidates, types.WorkerStructureArchitect, types.WorkerStyleEditor)
	}

	cap := r.cfg.MaxSupportingWorkers
	if cap <= 0 || cap > 3 {
		cap = 3
	}

	seen := map[types.WorkerID]bool{primary: true}
	var out []types.WorkerID
	for _, id := range candidates {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := r.registry.Get(id); !ok {
			logging.Router("dropping supporting worker %s: not registered", id)
			continue
		}
		out = append(out, id)
		if len(out) == cap {
			break
		}
	}
	return out
}

// derivePermission maps risk to the required permission level and applies
// the downward-only user override.
func (r *Router) derivePermission(req types.Request, a analysis) types.PermissionLevel {
	var required types.PermissionLevel
	switch a.Risk {
	case types.RiskHigh:
		required = types.PermissionAssistant
	case types.RiskMedium:
		required = types.PermissionCollaborative
	default:
		required = types.PermissionSemiAutonomous
	}
	if r.cfg.DestructiveForcesAssistant && a.Features.Destructive {
		required = types.PermissionAssistant
	}
	// The grant may only restrict, never elevate. The default grant is
	// collaborative, so low-risk work still lands within it.
	return required.Min(req.GrantedPermission())
}

// estimateDuration sums a 60s base scaled by complexity plus 30s per
// supporting worker.
func estimateDuration(c types.Complexity, supporting int) time.Duration {
	mult := 2
	switch c {
	case types.ComplexityLow:
		mult = 1
	case types.ComplexityHigh:
		mult = 4
	}
	return time.Duration(60*mult+30*supporting) * time.Second
}

// reasoning attempts one backend analysis call for a human-readable
// explanation. On any failure the deterministic summary is used with the
// mandated fallback marker; the decision itself never depends on the call.
func (r *Router) reasoning(ctx context.Context, req types.Request, d *types.RoutingDecision) string {
	summary := fmt.Sprintf(
		"keyword analysis: complexity=%s risk=%s primary=%s supporting=%d research=%t creativity=%t",
		d.Complexity, d.Risk, d.PrimaryWorker, len(d.SupportingWorkers),
		d.Features.RequiresResearch, d.Features.RequiresCreativity)

	if r.gen == nil || !r.cfg.UseBackendAnalysis {
		return summary
	}

	prompt := fmt.Sprintf(
		"Explain in two sentences why worker %q with supporting workers %v suits this writing request:\n%s",
		d.PrimaryWorker, d.SupportingWorkers, truncate(req.Content, 500))
	resp, err := r.gen.Generate(ctx, types.GenerateRequest{
		Prompt:      prompt,
		MaxTokens:   200,
		Temperature: 0.2,
		Timeout:     15 * time.Second,
	})
	if err != nil {
		logging.RouterDebug("analysis call failed, using keyword fallback: %v", err)
		return fmt.Sprintf("fallback due to analysis failure: %v; %s", err, summary)
	}
	return strings.TrimSpace(resp.Content)
}

// Stats returns a snapshot of routing statistics.
func (r *Router) Stats() Stats { return r.history.stats() }

// History returns a copy of the recent routing records, newest last.
func (r *Router) History() []Record { return r.history.list() }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
