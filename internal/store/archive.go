// Package store persists the platform's history in SQLite: routed requests,
// finished workflow summaries, and guardrail outcomes. The archive is an
// audit surface; execution never depends on it.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"wordloom/internal/logging"
	"wordloom/internal/types"
)

// Archive is the SQLite-backed history store.
type Archive struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// Open initializes the SQLite database at the given path.
func Open(path string) (*Archive, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	a := &Archive{db: db, dbPath: path}
	if err := a.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// initialize creates the required tables.
func (a *Archive) initialize() error {
	routingTable := `
	CREATE TABLE IF NOT EXISTS routing_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_kind TEXT NOT NULL,
		summary TEXT,
		primary_worker TEXT NOT NULL,
		supporting_json TEXT,
		complexity TEXT,
		risk TEXT,
		permission TEXT,
		fallback INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_routing_worker ON routing_history(primary_worker);
	`

	workflowTable := `
	CREATE TABLE IF NOT EXISTS workflows (
		id TEXT PRIMARY KEY,
		name TEXT,
		status TEXT NOT NULL,
		task_count INTEGER NOT NULL,
		permission TEXT,
		user_id TEXT,
		project_id TEXT,
		final_task_id TEXT,
		error_kind TEXT,
		processing_time_ns INTEGER DEFAULT 0,
		created_at DATETIME NOT NULL,
		completed_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_workflows_status ON workflows(status);
	CREATE INDEX IF NOT EXISTS idx_workflows_project ON workflows(project_id);
	`

	guardrailTable := `
	CREATE TABLE IF NOT EXISTS guardrail_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		workflow_id TEXT NOT NULL,
		accepted INTEGER NOT NULL,
		risk_score REAL,
		quality_score REAL,
		deviation_risk TEXT,
		report_json TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (workflow_id) REFERENCES workflows(id)
	);
	CREATE INDEX IF NOT EXISTS idx_guardrail_workflow ON guardrail_results(workflow_id);
	`

	for _, stmt := range []string{routingTable, workflowTable, guardrailTable} {
		if _, err := a.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// RoutingEntry is one archived routing decision.
type RoutingEntry struct {
	Kind       types.TaskKind        `json:"task_kind"`
	Summary    string                `json:"summary"`
	Primary    types.WorkerID        `json:"primary"`
	Supporting []types.WorkerID      `json:"supporting,omitempty"`
	Complexity types.Complexity      `json:"complexity"`
	Risk       types.Risk            `json:"risk"`
	Permission types.PermissionLevel `json:"permission"`
	Fallback   bool                  `json:"fallback"`
}

// SaveRouting archives one routing decision.
func (a *Archive) SaveRouting(e RoutingEntry) error {
	supporting, err := json.Marshal(e.Supporting)
	if err != nil {
		return fmt.Errorf("failed to marshal supporting workers: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	_, err = a.db.Exec(`
		INSERT INTO routing_history (task_kind, summary, primary_worker, supporting_json, complexity, risk, permission, fallback)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.Kind), e.Summary, string(e.Primary), string(supporting),
		string(e.Complexity), string(e.Risk), string(e.Permission), boolInt(e.Fallback))
	if err != nil {
		return fmt.Errorf("failed to save routing entry: %w", err)
	}
	return nil
}

// WorkflowSummary is the archived shape of a finished workflow.
type WorkflowSummary struct {
	ID             string                `json:"id"`
	Name           string                `json:"name"`
	Status         types.TaskStatus      `json:"status"`
	TaskCount      int                   `json:"task_count"`
	Permission     types.PermissionLevel `json:"permission"`
	UserID         string                `json:"user_id,omitempty"`
	ProjectID      string                `json:"project_id,omitempty"`
	FinalTaskID    string                `json:"final_task_id,omitempty"`
	ErrorKind      string                `json:"error_kind,omitempty"`
	ProcessingTime time.Duration         `json:"processing_time_ns"`
	CreatedAt      time.Time             `json:"created_at"`
	CompletedAt    *time.Time            `json:"completed_at,omitempty"`
}

// SaveWorkflow upserts one workflow summary.
func (a *Archive) SaveWorkflow(w WorkflowSummary) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.db.Exec(`
		INSERT INTO workflows (id, name, status, task_count, permission, user_id, project_id, final_task_id, error_kind, processing_time_ns, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			final_task_id = excluded.final_task_id,
			error_kind = excluded.error_kind,
			processing_time_ns = excluded.processing_time_ns,
			completed_at = excluded.completed_at`,
		w.ID, w.Name, string(w.Status), w.TaskCount, string(w.Permission),
		w.UserID, w.ProjectID, w.FinalTaskID, w.ErrorKind,
		int64(w.ProcessingTime), w.CreatedAt, w.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", w.ID, err)
	}
	return nil
}

// GuardrailSummary is the archived shape of one guardrail run.
type GuardrailSummary struct {
	WorkflowID    string  `json:"workflow_id"`
	Accepted      bool    `json:"accepted"`
	RiskScore     float64 `json:"risk_score"`
	QualityScore  float64 `json:"quality_score"`
	DeviationRisk string  `json:"deviation_risk"`
	ReportJSON    string  `json:"report_json,omitempty"`
}

// SaveGuardrail archives one guardrail outcome.
func (a *Archive) SaveGuardrail(g GuardrailSummary) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.db.Exec(`
		INSERT INTO guardrail_results (workflow_id, accepted, risk_score, quality_score, deviation_risk, report_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		g.WorkflowID, boolInt(g.Accepted), g.RiskScore, g.QualityScore, g.DeviationRisk, g.ReportJSON)
	if err != nil {
		return fmt.Errorf("failed to save guardrail result: %w", err)
	}
	return nil
}

// RecentWorkflows returns the most recent workflow summaries, newest first.
func (a *Archive) RecentWorkflows(limit int) ([]WorkflowSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	rows, err := a.db.Query(`
		SELECT id, name, status, task_count, permission, user_id, project_id,
		       final_task_id, error_kind, processing_time_ns, created_at, completed_at
		FROM workflows ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}
	defer rows.Close()

	var out []WorkflowSummary
	for rows.Next() {
		var w WorkflowSummary
		var status, permission string
		var processing int64
		var completed sql.NullTime
		if err := rows.Scan(&w.ID, &w.Name, &status, &w.TaskCount, &permission,
			&w.UserID, &w.ProjectID, &w.FinalTaskID, &w.ErrorKind,
			&processing, &w.CreatedAt, &completed); err != nil {
			return nil, fmt.Errorf("failed to scan workflow row: %w", err)
		}
		w.Status = types.TaskStatus(status)
		w.Permission = types.PermissionLevel(permission)
		w.ProcessingTime = time.Duration(processing)
		if completed.Valid {
			w.CompletedAt = &completed.Time
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Sweep deletes archived rows older than the retention window. Guardrail
// rows go with their workflows.
func (a *Archive) Sweep(retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-retention)

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.db.Exec(`
		DELETE FROM guardrail_results WHERE workflow_id IN
			(SELECT id FROM workflows WHERE completed_at IS NOT NULL AND completed_at < ?)`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to sweep guardrail results: %w", err)
	}
	res, err := a.db.Exec(`DELETE FROM workflows WHERE completed_at IS NOT NULL AND completed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep workflows: %w", err)
	}
	if _, err := a.db.Exec(`DELETE FROM routing_history WHERE created_at < ?`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to sweep routing history: %w", err)
	}

	n, _ := res.RowsAffected()
	if n > 0 {
		logging.Store("swept %d expired workflows from archive", n)
	}
	return n, nil
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
