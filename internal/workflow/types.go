package workflow

import (
	"time"

	"github.com/praxisworks/patent-agents/internal/agents"
	"github.com/praxisworks/patent-agents/internal/registry"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

type Type string

const (
	TypePatentAnalysis Type = "patent_analysis"
	TypeQuickSearch    Type = "quick_search"
)

func ParseType(s string) (Type, bool) {
	switch Type(s) {
	case TypePatentAnalysis, TypeQuickSearch:
		return Type(s), true
	}
	return "", false
}

type Mode string

const (
	ModeSequential   Mode = "sequential"
	ModeParallel     Mode = "parallel"
	ModeHierarchical Mode = "hierarchical"
)

func ParseMode(s string) Mode {
	switch Mode(s) {
	case ModeSequential, ModeParallel, ModeHierarchical:
		return Mode(s)
	}
	return ModeSequential
}

// Stage names double as step actions and context keys for downstream stages.
const (
	StageDataCollection    = "data_collection"
	StageSearchEnhancement = "search_enhancement"
	StageAnalysis          = "analysis"
	StageReportGeneration  = "report_generation"
)

type Step struct {
	StepID       string         `json:"step_id"`
	AgentID      string         `json:"agent_id,omitempty"`
	Action       string         `json:"action"`
	Result       map[string]any `json:"result,omitempty"`
	Status       Status         `json:"status"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      time.Time      `json:"end_time,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

type State struct {
	WorkflowID          string               `json:"workflow_id"`
	Type                Type                 `json:"workflow_type"`
	Mode                Mode                 `json:"mode"`
	Status              Status               `json:"status"`
	CurrentStep         int                  `json:"current_step"`
	TotalSteps          int                  `json:"total_steps"`
	ParticipatingAgents []registry.AgentType `json:"participating_agents"`
	History             []Step               `json:"history,omitempty"`
	ErrorMessage        string               `json:"error_message,omitempty"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

// Progress is the completion percentage derived from step counts; terminal
// workflows always report 100.
func (s State) Progress() float64 {
	if s.Status.Terminal() {
		return 100
	}
	if s.TotalSteps <= 0 {
		return 0
	}
	p := float64(s.CurrentStep) / float64(s.TotalSteps) * 100
	if p > 100 {
		p = 100
	}
	return p
}

type ExecutionResult struct {
	WorkflowID   string                     `json:"workflow_id"`
	Success      bool                       `json:"success"`
	Results      map[string]agents.Response `json:"results"`
	QualityScore float64                    `json:"quality_score"`
	StartTime    time.Time                  `json:"start_time"`
	EndTime      time.Time                  `json:"end_time"`
	ErrorMessage string                     `json:"error_message,omitempty"`
}
