// Package platform is the submission surface: it routes requests, executes
// workflows, runs the guardrail pipeline over delivered content, and archives
// the outcome. Callers interact with JSON-shaped requests and snapshots.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"wordloom/internal/config"
	"wordloom/internal/guardrails"
	"wordloom/internal/guardrails/deviation"
	"wordloom/internal/logging"
	"wordloom/internal/orchestrator"
	"wordloom/internal/router"
	"wordloom/internal/store"
	"wordloom/internal/types"
)

// Outcome is the terminal state of one submission: the workflow result plus
// the guardrail reports, with acceptance applied.
type Outcome struct {
	Workflow   *orchestrator.WorkflowResult `json:"workflow"`
	Guardrails *guardrails.Result           `json:"guardrails,omitempty"`
	Blocked    bool                         `json:"blocked"`
}

// StatusView is the caller-facing answer to a status query.
type StatusView struct {
	Snapshot   types.WorkflowSnapshot `json:"snapshot"`
	Guardrails *guardrails.Result     `json:"guardrails,omitempty"`
	Final      *Outcome               `json:"final,omitempty"`
}

// WorkerHealthView aggregates per-worker health for operators.
type WorkerHealthView struct {
	ID     types.WorkerID     `json:"id"`
	Name   string             `json:"name"`
	Health types.HealthStatus `json:"health"`
}

// Service composes the full platform. One instance per process.
type Service struct {
	cfg      *config.Config
	router   *router.Router
	orch     *orchestrator.Orchestrator
	pipeline *guardrails.Pipeline
	registry types.WorkerRegistry
	archive  *store.Archive // optional

	mu       sync.RWMutex
	outcomes map[string]*Outcome

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New assembles the platform. archive may be nil to disable persistence.
func New(cfg *config.Config, rt *router.Router, orch *orchestrator.Orchestrator,
	pipeline *guardrails.Pipeline, registry types.WorkerRegistry, archive *store.Archive) *Service {
	return &Service{
		cfg:      cfg,
		router:   rt,
		orch:     orch,
		pipeline: pipeline,
		registry: registry,
		archive:  archive,
		outcomes: make(map[string]*Outcome),
		stopCh:   make(chan struct{}),
	}
}

// SubmitJSON decodes a JSON request body and submits it.
func (s *Service) SubmitJSON(ctx context.Context, body []byte) (string, error) {
	var req types.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrInvalidRequest, err)
	}
	return s.Submit(ctx, req)
}

// Submit routes the request, creates the workflow, and starts execution in
// the background. The returned workflow id is immediately queryable.
func (s *Service) Submit(ctx context.Context, req types.Request) (string, error) {
	decision, err := s.router.Route(ctx, req)
	if err != nil {
		return "", err
	}
	s.archiveRouting(req, decision)

	wf, err := s.orch.CreateWorkflow(decision, req)
	if err != nil {
		return "", err
	}

	release := s.pipeline.Objectives().BeginWorkflow(req.ProjectID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer release()
		s.execute(wf.ID, req)
	}()

	logging.Platform("submitted request kind=%s workflow=%s", req.Kind, wf.ID)
	return wf.ID, nil
}

// execute drives one workflow to completion and through the guardrails.
func (s *Service) execute(workflowID string, req types.Request) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	result, err := s.orch.ExecuteWorkflow(ctx, workflowID)
	if err != nil {
		logging.Platform("workflow %s execution error: %v", workflowID, err)
		return
	}

	outcome := &Outcome{Workflow: result}
	if result.Status == types.StatusCompleted && result.FinalContent != "" {
		gr := s.pipeline.Run(ctx, guardrails.Input{
			Content:     result.FinalContent,
			ContentType: req.DocType(),
			Level:       req.Verification(),
			WorkerID:    s.finalWorker(workflowID, result.FinalTaskID),
			ProjectID:   req.ProjectID,
		})
		outcome.Guardrails = gr

		// Acceptance blocks delivery only at the assistant level; other
		// levels surface the flag and leave the decision to the caller.
		if !gr.Accepted && req.GrantedPermission() == types.PermissionAssistant {
			outcome.Blocked = true
			result.Status = types.StatusFailed
			result.Error = types.NewTaskError(types.ErrKindGuardrailBlocked,
				"content failed guardrail acceptance at assistant permission level")
			logging.Platform("workflow %s blocked by guardrails", workflowID)
		}
	}

	s.mu.Lock()
	s.outcomes[workflowID] = outcome
	s.mu.Unlock()

	s.archiveOutcome(workflowID, req, outcome)
}

func (s *Service) finalWorker(workflowID, taskID string) types.WorkerID {
	wf, err := s.orch.Workflow(workflowID)
	if err != nil || taskID == "" {
		return ""
	}
	if t := wf.TaskByID(taskID); t != nil {
		return t.WorkerID
	}
	return ""
}

// Status returns the current snapshot plus guardrail reports once available.
func (s *Service) Status(workflowID string) (StatusView, error) {
	snap, err := s.orch.Status(workflowID)
	if err != nil {
		return StatusView{}, err
	}
	view := StatusView{Snapshot: snap}

	s.mu.RLock()
	if outcome, ok := s.outcomes[workflowID]; ok {
		view.Final = outcome
		view.Guardrails = outcome.Guardrails
		if outcome.Blocked {
			view.Snapshot.Status = types.StatusFailed
		}
	}
	s.mu.RUnlock()
	return view, nil
}

// Result blocks-free returns the terminal outcome, if the workflow finished.
func (s *Service) Result(workflowID string) (*Outcome, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	outcome, ok := s.outcomes[workflowID]
	return outcome, ok
}

// Cancel forwards cancellation. The bool mirrors the orchestrator contract.
func (s *Service) Cancel(workflowID string) (bool, error) {
	return s.orch.Cancel(workflowID)
}

// ApplyConfig forwards reloaded tunables to the orchestrator and guardrail
// pipeline. Wiring-level settings (backend, store path) need a restart.
func (s *Service) ApplyConfig(cfg *config.Config) {
	s.orch.ApplyConfig(cfg.Orchestrator)
	s.pipeline.ApplyConfig(cfg.Guardrails)

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	logging.Platform("applied reloaded configuration")
}

// RegisterObjectives registers a project's objective set for the deviation
// monitor. Rejected while the project has a workflow in flight.
func (s *Service) RegisterObjectives(set deviation.ObjectiveSet) error {
	return s.pipeline.Objectives().Register(set)
}

// WorkerHealth aggregates health across the registry, sorted by worker id.
func (s *Service) WorkerHealth() []WorkerHealthView {
	var out []WorkerHealthView
	for _, w := range s.registry.List() {
		meta := w.Metadata()
		out = append(out, WorkerHealthView{ID: meta.ID, Name: meta.Name, Health: w.Health()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Metrics returns the orchestrator's global metrics snapshot.
func (s *Service) Metrics() orchestrator.GlobalMetrics { return s.orch.Metrics() }

// RouterStats returns routing statistics.
func (s *Service) RouterStats() router.Stats { return s.router.Stats() }

// StartMaintenance begins the periodic retention sweep. Stop via Close.
func (s *Service) StartMaintenance(interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *Service) sweep() {
	pruned := s.orch.PruneExpired()
	s.mu.Lock()
	for _, id := range pruned {
		delete(s.outcomes, id)
	}
	retention := s.cfg.Orchestrator.Retention
	s.mu.Unlock()

	if s.archive != nil {
		if _, err := s.archive.Sweep(retention); err != nil {
			logging.Platform("archive sweep failed: %v", err)
		}
	}
}

// Close stops background work and waits for in-flight submissions.
func (s *Service) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Service) archiveRouting(req types.Request, d *types.RoutingDecision) {
	if s.archive == nil {
		return
	}
	summary := req.Content
	if len(summary) > 120 {
		summary = summary[:120]
	}
	err := s.archive.SaveRouting(store.RoutingEntry{
		Kind:       req.Kind,
		Summary:    summary,
		Primary:    d.PrimaryWorker,
		Supporting: d.SupportingWorkers,
		Complexity: d.Complexity,
		Risk:       d.Risk,
		Permission: d.RequiredPermissions,
		Fallback:   strings.HasPrefix(d.Reasoning, "fallback due to analysis failure"),
	})
	if err != nil {
		logging.Platform("failed to archive routing decision: %v", err)
	}
}

func (s *Service) archiveOutcome(workflowID string, req types.Request, outcome *Outcome) {
	if s.archive == nil {
		return
	}
	wf, err := s.orch.Workflow(workflowID)
	if err != nil {
		return
	}

	summary := store.WorkflowSummary{
		ID:             wf.ID,
		Name:           wf.Name,
		Status:         outcome.Workflow.Status,
		TaskCount:      len(wf.Tasks),
		Permission:     wf.PermissionLevel,
		UserID:         wf.UserID,
		ProjectID:      wf.ProjectID,
		FinalTaskID:    outcome.Workflow.FinalTaskID,
		ProcessingTime: wf.TotalProcessingTime,
		CreatedAt:      wf.CreatedAt,
		CompletedAt:    wf.CompletedAt,
	}
	if outcome.Workflow.Error != nil {
		summary.ErrorKind = string(outcome.Workflow.Error.Kind)
	}
	if err := s.archive.SaveWorkflow(summary); err != nil {
		logging.Platform("failed to archive workflow %s: %v", workflowID, err)
	}

	if gr := outcome.Guardrails; gr != nil {
		reportJSON, _ := json.Marshal(gr)
		err := s.archive.SaveGuardrail(store.GuardrailSummary{
			WorkflowID:    workflowID,
			Accepted:      gr.Accepted,
			RiskScore:     gr.Hallucination.RiskScore,
			QualityScore:  gr.Quality.OverallScore,
			DeviationRisk: string(gr.Deviation.OverallRiskLevel),
			ReportJSON:    string(reportJSON),
		})
		if err != nil {
			logging.Platform("failed to archive guardrail result: %v", err)
		}
	}
}
