package workflow

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/praxisworks/patent-agents/internal/registry"
)

var (
	ErrNotFound = fmt.Errorf("workflow not found")
	// ErrTerminal is returned by Cancel when the workflow already finished.
	ErrTerminal = fmt.Errorf("workflow already in a terminal state")
)

type StoreConfig struct {
	Clock func() time.Time
}

// Store keeps workflow states in memory. States are never deleted; a restart
// wipes them unless a SQLiteStore wraps this one.
type Store struct {
	mu     sync.Mutex
	cfg    StoreConfig
	states map[string]*State
}

func NewStore(cfg StoreConfig) *Store {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Store{
		cfg:    cfg,
		states: map[string]*State{},
	}
}

func (s *Store) now() time.Time {
	return s.cfg.Clock().UTC()
}

func (s *Store) Create(workflowID string, t Type, mode Mode, totalSteps int, agentTypes []registry.AgentType) (State, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[workflowID]; ok {
		return State{}, fmt.Errorf("workflow %s already exists", workflowID)
	}
	st := &State{
		WorkflowID:          workflowID,
		Type:                t,
		Mode:                mode,
		Status:              StatusPending,
		TotalSteps:          totalSteps,
		ParticipatingAgents: append([]registry.AgentType{}, agentTypes...),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	s.states[workflowID] = st
	return cloneState(st), nil
}

func (s *Store) Get(workflowID string) (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[workflowID]
	if !ok {
		return State{}, false
	}
	return cloneState(st), true
}

type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

// List returns states newest-first. Limit defaults to 50, capped at 200.
func (s *Store) List(filter ListFilter) ([]State, int) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]*State, 0, len(s.states))
	for _, st := range s.states {
		if filter.Status != "" && st.Status != filter.Status {
			continue
		}
		matched = append(matched, st)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].WorkflowID < matched[j].WorkflowID
	})

	total := len(matched)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	out := make([]State, 0, end-offset)
	for _, st := range matched[offset:end] {
		out = append(out, cloneState(st))
	}
	return out, total
}

func (s *Store) SetRunning(workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[workflowID]
	if !ok {
		return ErrNotFound
	}
	if st.Status != StatusPending {
		return fmt.Errorf("workflow %s cannot start from %s", workflowID, st.Status)
	}
	st.Status = StatusRunning
	st.UpdatedAt = s.now()
	return nil
}

// AdvanceStep moves the step counter without recording history, used for
// bookkeeping between recorded steps.
func (s *Store) AdvanceStep(workflowID string, current int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[workflowID]
	if !ok {
		return ErrNotFound
	}
	if current > st.CurrentStep {
		st.CurrentStep = current
	}
	st.UpdatedAt = s.now()
	return nil
}

func (s *Store) AppendStep(workflowID string, step Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[workflowID]
	if !ok {
		return ErrNotFound
	}
	st.History = append(st.History, step)
	st.UpdatedAt = s.now()
	return nil
}

func (s *Store) Complete(workflowID string) error {
	return s.finish(workflowID, StatusCompleted, "")
}

func (s *Store) Fail(workflowID, errorMessage string) error {
	return s.finish(workflowID, StatusFailed, errorMessage)
}

func (s *Store) finish(workflowID string, status Status, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[workflowID]
	if !ok {
		return ErrNotFound
	}
	if st.Status.Terminal() {
		return nil
	}
	st.Status = status
	st.ErrorMessage = errorMessage
	st.CurrentStep = st.TotalSteps
	st.UpdatedAt = s.now()
	return nil
}

// Cancel moves a pending or running workflow to cancelled and appends one
// synthetic history step. Terminal workflows are rejected without touching
// UpdatedAt.
func (s *Store) Cancel(workflowID, reason string) (State, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[workflowID]
	if !ok {
		return State{}, ErrNotFound
	}
	if st.Status.Terminal() {
		return cloneState(st), ErrTerminal
	}
	st.Status = StatusCancelled
	if reason != "" {
		st.ErrorMessage = reason
	}
	st.History = append(st.History, Step{
		StepID:    fmt.Sprintf("%s-cancel", workflowID),
		Action:    "cancelled",
		Status:    StatusCancelled,
		StartTime: now,
		EndTime:   now,
	})
	st.UpdatedAt = now
	return cloneState(st), nil
}

// StatusOf is a cheap status probe for cooperative cancellation checks.
func (s *Store) StatusOf(workflowID string) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[workflowID]
	if !ok {
		return "", false
	}
	return st.Status, true
}

type StatsSummary struct {
	Total    int            `json:"total"`
	ByStatus map[Status]int `json:"by_status"`
	ByType   map[Type]int   `json:"by_type"`
}

func (s *Store) Summary() StatsSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := StatsSummary{
		ByStatus: map[Status]int{},
		ByType:   map[Type]int{},
	}
	for _, st := range s.states {
		out.Total++
		out.ByStatus[st.Status]++
		out.ByType[st.Type]++
	}
	return out
}

func cloneState(st *State) State {
	cp := *st
	cp.ParticipatingAgents = append([]registry.AgentType{}, st.ParticipatingAgents...)
	cp.History = append([]Step{}, st.History...)
	return cp
}
