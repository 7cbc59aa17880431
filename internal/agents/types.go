package agents

import (
	"context"
	"time"

	"github.com/praxisworks/patent-agents/internal/registry"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return Priority(s)
	}
	return PriorityNormal
}

func (p Priority) Elevated() bool {
	return p == PriorityHigh || p == PriorityUrgent
}

type DateRange struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// PatentAnalysisRequest is the analysis-specific portion of a request,
// constructed once at the HTTP boundary and passed through unchanged.
type PatentAnalysisRequest struct {
	Keywords       string     `json:"keywords"` // newline/comma separated in transport, normalized below
	KeywordList    []string   `json:"keyword_list"`
	DateRange      *DateRange `json:"date_range,omitempty"`
	Countries      []string   `json:"countries,omitempty"`
	AnalysisTypes  []string   `json:"analysis_types,omitempty"`
	MaxPatents     int        `json:"max_patents,omitempty"`
	ReportFormat   string     `json:"report_format,omitempty"`
	GenerateReport bool       `json:"generate_report"`
}

type Request struct {
	RequestID string                `json:"request_id"`
	Content   string                `json:"content"`
	UserID    string                `json:"user_id,omitempty"`
	Priority  Priority              `json:"priority"`
	Context   map[string]any        `json:"context,omitempty"`
	Analysis  PatentAnalysisRequest `json:"analysis"`
	Timeout   time.Duration         `json:"-"`
}

// Keywords returns the normalized keyword list, preferring the explicit list.
func (r Request) Keywords() []string {
	if len(r.Analysis.KeywordList) > 0 {
		return r.Analysis.KeywordList
	}
	return splitKeywords(r.Analysis.Keywords)
}

type ResponseStatus string

const (
	StatusSuccess ResponseStatus = "success"
	StatusFailed  ResponseStatus = "failed"
	StatusSkipped ResponseStatus = "skipped"
)

type Response struct {
	AgentID        string             `json:"agent_id"`
	AgentType      registry.AgentType `json:"agent_type"`
	Status         ResponseStatus     `json:"status"`
	Content        string             `json:"content,omitempty"`
	Payload        map[string]any     `json:"payload,omitempty"`
	QualityScore   float64            `json:"quality_score"`
	ProcessingTime time.Duration      `json:"processing_time"`
	FromCache      bool               `json:"from_cache,omitempty"`
	Error          string             `json:"error,omitempty"`
}

func (r Response) Succeeded() bool { return r.Status == StatusSuccess }

// Agent is the uniform specialist contract. Process never panics or returns
// an error: internal failures are converted into a failed Response.
type Agent interface {
	AgentID() string
	AgentType() registry.AgentType
	CanHandle(req Request) float64
	Capabilities() []string
	EstimateProcessingTime(req Request) time.Duration
	Process(ctx context.Context, req Request) Response
}
