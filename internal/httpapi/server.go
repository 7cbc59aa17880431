package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/praxisworks/patent-agents/internal/agents"
	"github.com/praxisworks/patent-agents/internal/registry"
	"github.com/praxisworks/patent-agents/internal/router"
	"github.com/praxisworks/patent-agents/internal/tracer"
	"github.com/praxisworks/patent-agents/internal/workflow"
)

type Server struct {
	router *router.Router
	reg    *registry.Registry
	store  workflow.StateStore
	coord  *workflow.Coordinator
	logger *log.Logger

	// execute launches workflow execution after the HTTP response; tests
	// swap it for a synchronous version.
	execute func(spec workflow.Spec)

	mux *http.ServeMux
}

func NewServer(rt *router.Router, reg *registry.Registry, store workflow.StateStore, coord *workflow.Coordinator, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		router: rt,
		reg:    reg,
		store:  store,
		coord:  coord,
		logger: logger,
	}
	s.execute = func(spec workflow.Spec) {
		go func() {
			if _, err := coord.Execute(context.Background(), spec); err != nil {
				logger.Printf("httpapi: workflow %s execution error: %v", spec.WorkflowID, err)
			}
		}()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/route", s.handleRoute)
	mux.HandleFunc("/v1/workflows/execute", s.handleExecuteWorkflow)
	mux.HandleFunc("/v1/workflows", s.handleListWorkflows)
	mux.HandleFunc("/v1/workflows/", s.handleWorkflowByID)
	mux.HandleFunc("/v1/agents/status", s.handleAgentStatus)
	mux.HandleFunc("/v1/agents/types", s.handleAgentTypes)
	mux.HandleFunc("/v1/agents/capabilities/", s.handleAgentCapabilities)
	mux.HandleFunc("/v1/health", s.handleHealth)
	mux.HandleFunc("/v1/stats/agents", s.handleAgentStats)
	mux.HandleFunc("/v1/stats/workflows", s.handleWorkflowStats)
	s.mux = mux
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAPIError(w http.ResponseWriter, err error) {
	var ae *Error
	if errors.As(err, &ae) {
		writeJSON(w, ae.Status, map[string]any{
			"ok": false,
			"error": map[string]any{
				"code":      ae.Code,
				"message":   ae.Message,
				"transient": ae.Transient,
			},
		})
		return
	}
	writeJSON(w, 500, map[string]any{
		"ok": false,
		"error": map[string]any{
			"code":      CodeInternal,
			"message":   err.Error(),
			"transient": true,
		},
	})
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return []byte("{}"), nil
	}
	blob, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(blob) == 0 {
		blob = []byte("{}")
	}
	return blob, nil
}

func parseInt(value string, def int) int {
	if strings.TrimSpace(value) == "" {
		return def
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return v
}

func queryFlag(r *http.Request, name string) bool {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func methodOnly(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	blob, err := readBody(r)
	if err != nil {
		writeAPIError(w, newValidationJSONError(err))
		return
	}
	var req struct {
		Content  string         `json:"content"`
		UserID   string         `json:"user_id"`
		Context  map[string]any `json:"context"`
		Priority string         `json:"priority"`
	}
	if err := json.Unmarshal(blob, &req); err != nil {
		writeAPIError(w, newValidationJSONError(err))
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeAPIError(w, newValidationError("content is required"))
		return
	}

	request := agents.Request{
		RequestID: "req-" + uuid.NewString(),
		Content:   req.Content,
		UserID:    strings.TrimSpace(req.UserID),
		Priority:  agents.ParsePriority(req.Priority),
		Context:   req.Context,
	}
	ctx, span := tracer.StartSpan(r.Context(), "httpapi.route")
	span.SetAttributes(tracer.StringAttr("request.id", request.RequestID))
	defer span.End()

	decision, res, err := s.router.RouteRequest(ctx, request)
	if err != nil {
		tracer.RecordError(span, err)
		writeAPIError(w, newError(CodeRoutingError, err.Error(), true))
		return
	}
	tracer.SetOK(span)

	writeJSON(w, 200, map[string]any{
		"ok":                           true,
		"request_id":                   request.RequestID,
		"intent_result":                res,
		"selected_agent":               map[string]any{"agent_id": decision.AgentID, "agent_type": decision.AgentType},
		"routing_confidence":           res.Confidence,
		"alternative_agents":           decision.Alternatives,
		"fallback_used":                decision.Fallback,
		"requires_collaboration":       decision.RequiresCollaboration,
		"estimated_processing_seconds": decision.EstimatedSeconds,
	})
}

func (s *Server) handleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	blob, err := readBody(r)
	if err != nil {
		writeAPIError(w, newValidationJSONError(err))
		return
	}
	var req struct {
		WorkflowType        string            `json:"workflow_type"`
		ExecutionMode       string            `json:"execution_mode"`
		Tasks               []map[string]any  `json:"tasks"`
		ParticipatingAgents []string          `json:"participating_agents"`
		Content             string            `json:"content"`
		Context             map[string]any    `json:"context"`
		Priority            string            `json:"priority"`
		TimeoutSeconds      int               `json:"timeout_seconds"`
		Keywords            string            `json:"keywords"`
		KeywordList         []string          `json:"keyword_list"`
		Countries           []string          `json:"countries"`
		DateRange           *agents.DateRange `json:"date_range"`
		AnalysisTypes       []string          `json:"analysis_types"`
		MaxPatents          int               `json:"max_patents"`
		GenerateReport      bool              `json:"generate_report"`
		ReportFormat        string            `json:"report_format"`
	}
	if err := json.Unmarshal(blob, &req); err != nil {
		writeAPIError(w, newValidationJSONError(err))
		return
	}

	workflowType, ok := workflow.ParseType(req.WorkflowType)
	if !ok {
		writeAPIError(w, newValidationError("unknown workflow_type "+strconv.Quote(req.WorkflowType)))
		return
	}
	if len(req.Tasks) == 0 {
		writeAPIError(w, newValidationError("tasks must not be empty"))
		return
	}
	if len(req.ParticipatingAgents) == 0 {
		writeAPIError(w, newValidationError("participating_agents must not be empty"))
		return
	}
	agentTypes := make([]registry.AgentType, 0, len(req.ParticipatingAgents))
	for _, raw := range req.ParticipatingAgents {
		at, ok := registry.ParseAgentType(raw)
		if !ok {
			writeAPIError(w, newValidationError("unknown agent type "+strconv.Quote(raw)))
			return
		}
		if !s.reg.IsTypeRegistered(at) {
			writeAPIError(w, newValidationError("no registered agent of type "+strconv.Quote(raw)))
			return
		}
		agentTypes = append(agentTypes, at)
	}

	spec := workflow.Spec{
		WorkflowID: "wf-" + uuid.NewString(),
		Type:       workflowType,
		Mode:       workflow.ParseMode(req.ExecutionMode),
		Agents:     agentTypes,
		Request: agents.Request{
			RequestID: "req-" + uuid.NewString(),
			Content:   req.Content,
			Priority:  agents.ParsePriority(req.Priority),
			Context:   req.Context,
			Timeout:   time.Duration(req.TimeoutSeconds) * time.Second,
			Analysis: agents.PatentAnalysisRequest{
				Keywords:       req.Keywords,
				KeywordList:    req.KeywordList,
				DateRange:      req.DateRange,
				Countries:      req.Countries,
				AnalysisTypes:  req.AnalysisTypes,
				MaxPatents:     req.MaxPatents,
				ReportFormat:   req.ReportFormat,
				GenerateReport: req.GenerateReport,
			},
		},
	}

	st, err := s.coord.Begin(spec)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	s.execute(spec)

	estimate := time.Duration(len(req.Tasks)) * 2 * time.Minute
	writeJSON(w, 200, map[string]any{
		"ok":                        true,
		"workflow_id":               st.WorkflowID,
		"status":                    st.Status,
		"message":                   "workflow accepted for execution",
		"estimated_completion_time": st.CreatedAt.Add(estimate),
	})
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	filter := workflow.ListFilter{
		Status: workflow.Status(strings.TrimSpace(r.URL.Query().Get("status"))),
		Limit:  parseInt(r.URL.Query().Get("limit"), 50),
		Offset: parseInt(r.URL.Query().Get("offset"), 0),
	}
	states, total := s.store.List(filter)
	summaries := make([]map[string]any, 0, len(states))
	for _, st := range states {
		summaries = append(summaries, workflowSummary(st))
	}
	writeJSON(w, 200, map[string]any{
		"workflows": summaries,
		"total":     total,
		"limit":     filter.Limit,
		"offset":    filter.Offset,
	})
}

func workflowSummary(st workflow.State) map[string]any {
	out := map[string]any{
		"workflow_id":         st.WorkflowID,
		"workflow_type":       st.Type,
		"mode":                st.Mode,
		"status":              st.Status,
		"progress_percentage": st.Progress(),
		"created_at":          st.CreatedAt,
		"updated_at":          st.UpdatedAt,
	}
	if st.ErrorMessage != "" {
		out["error_message"] = st.ErrorMessage
	}
	return out
}

func (s *Server) handleWorkflowByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/workflows/")
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/status"):
		id := strings.TrimSuffix(strings.TrimSuffix(path, "/status"), "/")
		s.workflowStatus(w, r, id)
	case r.Method == http.MethodDelete && !strings.Contains(path, "/"):
		s.cancelWorkflow(w, path)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *Server) workflowStatus(w http.ResponseWriter, r *http.Request, id string) {
	st, ok := s.store.Get(id)
	if !ok {
		writeAPIError(w, newError(CodeNotFound, "workflow not found", false))
		return
	}

	payload := workflowSummary(st)
	payload["ok"] = true
	payload["current_step"] = st.CurrentStep
	payload["total_steps"] = st.TotalSteps
	payload["participating_agents"] = st.ParticipatingAgents

	if queryFlag(r, "include_history") {
		payload["history"] = st.History
	}
	if queryFlag(r, "include_agent_details") {
		details := make([]registry.AgentInfo, 0, len(st.ParticipatingAgents))
		for _, at := range st.ParticipatingAgents {
			details = append(details, s.reg.ListByType(at)...)
		}
		payload["agent_details"] = details
	}
	writeJSON(w, 200, payload)
}

func (s *Server) cancelWorkflow(w http.ResponseWriter, id string) {
	st, err := s.store.Cancel(id, "cancelled via api")
	switch {
	case errors.Is(err, workflow.ErrNotFound):
		writeAPIError(w, newError(CodeNotFound, "workflow not found", false))
		return
	case errors.Is(err, workflow.ErrTerminal):
		writeAPIError(w, newError(CodeConflict, "workflow already in state "+string(st.Status), false))
		return
	case err != nil:
		writeAPIError(w, err)
		return
	}
	s.logger.Printf("httpapi: workflow %s cancelled", id)
	writeJSON(w, 200, map[string]any{
		"ok":          true,
		"workflow_id": st.WorkflowID,
		"status":      st.Status,
	})
}

func (s *Server) handleAgentStatus(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	idFilter := splitCSV(r.URL.Query().Get("agent_ids"))
	typeFilter := splitCSV(r.URL.Query().Get("agent_types"))

	out := []registry.AgentInfo{}
	for _, info := range s.reg.List() {
		if len(idFilter) > 0 && !containsString(idFilter, info.AgentID) {
			continue
		}
		if len(typeFilter) > 0 && !containsString(typeFilter, string(info.Type)) {
			continue
		}
		out = append(out, info)
	}
	writeJSON(w, 200, map[string]any{"agents": out, "total": len(out)})
}

func (s *Server) handleAgentTypes(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	summary := s.reg.Summary()
	writeJSON(w, 200, map[string]any{
		"agent_types": summary.ByType,
		"total":       summary.TotalAgents,
	})
}

func (s *Server) handleAgentCapabilities(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/agents/capabilities/"), "/")
	at, ok := registry.ParseAgentType(raw)
	if !ok {
		writeAPIError(w, newError(CodeNotFound, "unknown agent type "+strconv.Quote(raw), false))
		return
	}
	infos := s.reg.ListByType(at)
	if len(infos) == 0 {
		writeAPIError(w, newError(CodeNotFound, "no registered agent of type "+strconv.Quote(raw), false))
		return
	}
	capSet := map[string]struct{}{}
	capabilities := []string{}
	for _, info := range infos {
		for _, c := range info.Capabilities {
			if _, seen := capSet[c]; !seen {
				capSet[c] = struct{}{}
				capabilities = append(capabilities, c)
			}
		}
	}
	writeJSON(w, 200, map[string]any{
		"agent_type":   at,
		"capabilities": capabilities,
		"agents":       len(infos),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	agentSummary := s.reg.Summary()
	workflowSummary := s.store.Summary()
	writeJSON(w, 200, map[string]any{
		"ok":        true,
		"status":    "healthy",
		"agents":    agentSummary.TotalAgents,
		"workflows": workflowSummary.Total,
	})
}

func (s *Server) handleAgentStats(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, 200, map[string]any{"ok": true, "stats": s.reg.Summary()})
}

func (s *Server) handleWorkflowStats(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, 200, map[string]any{"ok": true, "stats": s.store.Summary()})
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
