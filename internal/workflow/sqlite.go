package workflow

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/praxisworks/patent-agents/internal/registry"
)

// StateStore is what the coordinator and HTTP layer need from workflow
// storage. Both Store and SQLiteStore satisfy it.
type StateStore interface {
	Create(workflowID string, t Type, mode Mode, totalSteps int, agentTypes []registry.AgentType) (State, error)
	Get(workflowID string) (State, bool)
	List(filter ListFilter) ([]State, int)
	SetRunning(workflowID string) error
	AdvanceStep(workflowID string, current int) error
	AppendStep(workflowID string, step Step) error
	Complete(workflowID string) error
	Fail(workflowID, errorMessage string) error
	Cancel(workflowID, reason string) (State, error)
	StatusOf(workflowID string) (Status, bool)
	Summary() StatsSummary
}

var _ StateStore = (*Store)(nil)

// SQLiteStore persists workflow states and steps with write-through
// semantics around an embedded in-memory Store. Reads always come from
// memory; SQLite exists so a restart does not forget history.
type SQLiteStore struct {
	inner *Store
	db    *sqlx.DB
	mu    sync.Mutex
}

var _ StateStore = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS workflows (
	workflow_id          TEXT PRIMARY KEY,
	workflow_type        TEXT NOT NULL,
	mode                 TEXT NOT NULL DEFAULT 'sequential',
	status               TEXT NOT NULL DEFAULT 'pending',
	current_step         INTEGER NOT NULL DEFAULT 0,
	total_steps          INTEGER NOT NULL DEFAULT 0,
	participating_agents TEXT NOT NULL DEFAULT '[]',
	error_message        TEXT NOT NULL DEFAULT '',
	created_at           TEXT NOT NULL,
	updated_at           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS workflow_steps (
	workflow_id   TEXT NOT NULL,
	position      INTEGER NOT NULL,
	step_id       TEXT NOT NULL,
	agent_id      TEXT NOT NULL DEFAULT '',
	action        TEXT NOT NULL,
	result        TEXT,
	status        TEXT NOT NULL,
	start_time    TEXT NOT NULL,
	end_time      TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (workflow_id, position)
);
`

func NewSQLiteStore(dbPath string, cfg StoreConfig) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &SQLiteStore{
		inner: NewStore(cfg),
		db:    db,
	}
	if err := s.load(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load state: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// load restores persisted workflows into the in-memory store. Workflows that
// were pending or running when the process died cannot be resumed, so they
// come back as failed.
func (s *SQLiteStore) load() error {
	rows, err := s.db.Query(`SELECT workflow_id, workflow_type, mode, status, current_step,
		total_steps, participating_agents, error_message, created_at, updated_at FROM workflows`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var interrupted []string
	for rows.Next() {
		var st State
		var agentsJSON, createdAt, updatedAt string
		if err := rows.Scan(&st.WorkflowID, &st.Type, &st.Mode, &st.Status, &st.CurrentStep,
			&st.TotalSteps, &agentsJSON, &st.ErrorMessage, &createdAt, &updatedAt); err != nil {
			return err
		}
		_ = json.Unmarshal([]byte(agentsJSON), &st.ParticipatingAgents)
		st.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		st.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

		if !st.Status.Terminal() {
			st.Status = StatusFailed
			st.ErrorMessage = "interrupted by restart"
			st.CurrentStep = st.TotalSteps
			interrupted = append(interrupted, st.WorkflowID)
		}
		cp := st
		s.inner.states[st.WorkflowID] = &cp
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if err := s.loadSteps(); err != nil {
		return err
	}
	for _, id := range interrupted {
		if err := s.saveState(id); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) loadSteps() error {
	rows, err := s.db.Query(`SELECT workflow_id, step_id, agent_id, action, result, status,
		start_time, end_time, error_message FROM workflow_steps ORDER BY workflow_id, position`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var workflowID, resultJSON, startTime, endTime string
		var step Step
		if err := rows.Scan(&workflowID, &step.StepID, &step.AgentID, &step.Action, &resultJSON,
			&step.Status, &startTime, &endTime, &step.ErrorMessage); err != nil {
			return err
		}
		if resultJSON != "" {
			_ = json.Unmarshal([]byte(resultJSON), &step.Result)
		}
		step.StartTime, _ = time.Parse(time.RFC3339Nano, startTime)
		if endTime != "" {
			step.EndTime, _ = time.Parse(time.RFC3339Nano, endTime)
		}
		if st, ok := s.inner.states[workflowID]; ok {
			st.History = append(st.History, step)
		}
	}
	return rows.Err()
}

func timeToString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// saveState persists the current row for one workflow, steps included.
func (s *SQLiteStore) saveState(workflowID string) error {
	s.inner.mu.Lock()
	st, ok := s.inner.states[workflowID]
	if !ok {
		s.inner.mu.Unlock()
		return nil
	}
	cp := cloneState(st)
	s.inner.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`INSERT OR REPLACE INTO workflows (workflow_id, workflow_type, mode, status,
		current_step, total_steps, participating_agents, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.WorkflowID,
		string(cp.Type),
		string(cp.Mode),
		string(cp.Status),
		cp.CurrentStep,
		cp.TotalSteps,
		marshalJSON(cp.ParticipatingAgents),
		cp.ErrorMessage,
		timeToString(cp.CreatedAt),
		timeToString(cp.UpdatedAt),
	); err != nil {
		return err
	}
	for i, step := range cp.History {
		resultJSON := ""
		if step.Result != nil {
			resultJSON = marshalJSON(step.Result)
		}
		if _, err := s.db.Exec(`INSERT OR REPLACE INTO workflow_steps (workflow_id, position, step_id,
			agent_id, action, result, status, start_time, end_time, error_message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			cp.WorkflowID, i, step.StepID, step.AgentID, step.Action, resultJSON,
			string(step.Status), timeToString(step.StartTime), timeToString(step.EndTime), step.ErrorMessage,
		); err != nil {
			return err
		}
	}
	return nil
}

// --- StateStore implementation ---

func (s *SQLiteStore) Create(workflowID string, t Type, mode Mode, totalSteps int, agentTypes []registry.AgentType) (State, error) {
	st, err := s.inner.Create(workflowID, t, mode, totalSteps, agentTypes)
	if err != nil {
		return State{}, err
	}
	if perr := s.saveState(workflowID); perr != nil {
		return State{}, perr
	}
	return st, nil
}

func (s *SQLiteStore) Get(workflowID string) (State, bool) {
	return s.inner.Get(workflowID)
}

func (s *SQLiteStore) List(filter ListFilter) ([]State, int) {
	return s.inner.List(filter)
}

func (s *SQLiteStore) SetRunning(workflowID string) error {
	if err := s.inner.SetRunning(workflowID); err != nil {
		return err
	}
	return s.saveState(workflowID)
}

func (s *SQLiteStore) AdvanceStep(workflowID string, current int) error {
	if err := s.inner.AdvanceStep(workflowID, current); err != nil {
		return err
	}
	return s.saveState(workflowID)
}

func (s *SQLiteStore) AppendStep(workflowID string, step Step) error {
	if err := s.inner.AppendStep(workflowID, step); err != nil {
		return err
	}
	return s.saveState(workflowID)
}

func (s *SQLiteStore) Complete(workflowID string) error {
	if err := s.inner.Complete(workflowID); err != nil {
		return err
	}
	return s.saveState(workflowID)
}

func (s *SQLiteStore) Fail(workflowID, errorMessage string) error {
	if err := s.inner.Fail(workflowID, errorMessage); err != nil {
		return err
	}
	return s.saveState(workflowID)
}

func (s *SQLiteStore) Cancel(workflowID, reason string) (State, error) {
	st, err := s.inner.Cancel(workflowID, reason)
	if err != nil {
		return st, err
	}
	if perr := s.saveState(workflowID); perr != nil {
		return st, perr
	}
	return st, nil
}

func (s *SQLiteStore) StatusOf(workflowID string) (Status, bool) {
	return s.inner.StatusOf(workflowID)
}

func (s *SQLiteStore) Summary() StatsSummary {
	return s.inner.Summary()
}
