package workflow

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/praxisworks/patent-agents/internal/agents"
	"github.com/praxisworks/patent-agents/internal/registry"
	"github.com/praxisworks/patent-agents/internal/tracer"
)

// Spec is one workflow execution order: which workflow, how to run it, and
// the request the stages operate on.
type Spec struct {
	WorkflowID string
	Type       Type
	Mode       Mode
	Request    agents.Request
	Agents     []registry.AgentType
}

type CoordinatorConfig struct {
	Logger *log.Logger
	Clock  func() time.Time
}

// Coordinator drives the four-stage pipeline (collection, search, analysis,
// report) over registered specialist agents, recording every step in the
// state store.
type Coordinator struct {
	store  StateStore
	reg    *registry.Registry
	agents map[registry.AgentType]agents.Agent
	logger *log.Logger
	clock  func() time.Time
}

func NewCoordinator(store StateStore, reg *registry.Registry, specialists []agents.Agent, cfg CoordinatorConfig) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	byType := make(map[registry.AgentType]agents.Agent, len(specialists))
	for _, a := range specialists {
		byType[a.AgentType()] = a
	}
	return &Coordinator{
		store:  store,
		reg:    reg,
		agents: byType,
		logger: logger,
		clock:  clock,
	}
}

// Begin registers the workflow as pending. Execute picks it up afterwards,
// usually from a background goroutine.
func (c *Coordinator) Begin(spec Spec) (State, error) {
	totalSteps := 4
	if spec.Mode == ModeHierarchical {
		totalSteps = 100
	}
	return c.store.Create(spec.WorkflowID, spec.Type, spec.Mode, totalSteps, spec.Agents)
}

// stageAgentType maps pipeline stages to the specialist that runs them.
var stageAgentType = map[string]registry.AgentType{
	StageDataCollection:    registry.TypePatentDataCollection,
	StageSearchEnhancement: registry.TypePatentSearch,
	StageAnalysis:          registry.TypePatentAnalysis,
	StageReportGeneration:  registry.TypePatentReport,
}

// hierarchical progress checkpoints: percentage and step name, in order.
var checkpoints = []struct {
	Percent int
	Name    string
}{
	{10, "data_collection"},
	{30, "data_collection_completed"},
	{40, "search_enhancement"},
	{60, "search_enhancement_completed"},
	{70, "analysis"},
	{85, "analysis_completed"},
	{90, "report_generation"},
	{100, "report_completed"},
}

// Execute runs the workflow to a terminal state. The returned error covers
// coordinator-level problems only; stage failures are captured in the result
// and the stored history.
func (c *Coordinator) Execute(ctx context.Context, spec Spec) (ExecutionResult, error) {
	start := c.clock().UTC()
	result := ExecutionResult{
		WorkflowID: spec.WorkflowID,
		Results:    map[string]agents.Response{},
		StartTime:  start,
	}

	ctx, span := tracer.StartSpan(ctx, "workflow.execute")
	span.SetAttributes(
		tracer.StringAttr("workflow.id", spec.WorkflowID),
		tracer.StringAttr("workflow.type", string(spec.Type)),
		tracer.StringAttr("workflow.mode", string(spec.Mode)),
	)
	defer span.End()

	if err := c.store.SetRunning(spec.WorkflowID); err != nil {
		// Most likely cancelled between Begin and Execute.
		status, _ := c.store.StatusOf(spec.WorkflowID)
		if status == StatusCancelled {
			result.ErrorMessage = "workflow cancelled before start"
			result.EndTime = c.clock().UTC()
			return result, nil
		}
		tracer.RecordError(span, err)
		return result, err
	}

	switch spec.Mode {
	case ModeParallel:
		c.runParallel(ctx, spec, &result)
	case ModeHierarchical:
		c.runHierarchical(ctx, spec, &result)
	default:
		c.runSequential(ctx, spec, &result)
	}

	result.QualityScore = qualityScore(result.Results)
	result.EndTime = c.clock().UTC()

	// A cancel that arrived mid-flight owns the terminal state.
	if status, _ := c.store.StatusOf(spec.WorkflowID); status == StatusCancelled {
		result.Success = false
		if result.ErrorMessage == "" {
			result.ErrorMessage = "workflow cancelled"
		}
		return result, nil
	}

	collection := result.Results[StageDataCollection]
	analysis := result.Results[StageAnalysis]
	result.Success = collection.Succeeded() && analysis.Succeeded()
	if result.Success {
		if err := c.store.Complete(spec.WorkflowID); err != nil {
			tracer.RecordError(span, err)
			return result, err
		}
		tracer.SetOK(span)
	} else {
		if result.ErrorMessage == "" {
			result.ErrorMessage = firstFailure(result.Results)
		}
		if err := c.store.Fail(spec.WorkflowID, result.ErrorMessage); err != nil {
			tracer.RecordError(span, err)
			return result, err
		}
	}
	c.logger.Printf("workflow %s finished: success=%v quality=%.2f elapsed=%s",
		spec.WorkflowID, result.Success, result.QualityScore, result.EndTime.Sub(result.StartTime))
	return result, nil
}

func (c *Coordinator) runSequential(ctx context.Context, spec Spec, result *ExecutionResult) {
	stages := []string{StageDataCollection, StageSearchEnhancement, StageAnalysis, StageReportGeneration}
	for i, stage := range stages {
		if c.cancelled(spec.WorkflowID) {
			result.ErrorMessage = "workflow cancelled"
			return
		}
		if !c.runStageChecked(ctx, spec, stage, result) {
			return
		}
		_ = c.store.AdvanceStep(spec.WorkflowID, i+1)
	}
}

func (c *Coordinator) runParallel(ctx context.Context, spec Spec, result *ExecutionResult) {
	if c.cancelled(spec.WorkflowID) {
		result.ErrorMessage = "workflow cancelled"
		return
	}

	// Collection and search are independent. Stage failures surface as
	// failed responses, never errors, so a failing stage cannot cancel its
	// sibling through the group context.
	var collection, search agents.Response
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		collection = c.runStage(gctx, spec, StageDataCollection, spec.Request)
		return nil
	})
	g.Go(func() error {
		search = c.runStage(gctx, spec, StageSearchEnhancement, spec.Request)
		return nil
	})
	_ = g.Wait()

	result.Results[StageDataCollection] = collection
	result.Results[StageSearchEnhancement] = search
	_ = c.store.AdvanceStep(spec.WorkflowID, 2)

	if c.cancelled(spec.WorkflowID) {
		result.ErrorMessage = "workflow cancelled"
		return
	}
	if !c.runStageChecked(ctx, spec, StageAnalysis, result) {
		return
	}
	_ = c.store.AdvanceStep(spec.WorkflowID, 3)

	if c.cancelled(spec.WorkflowID) {
		result.ErrorMessage = "workflow cancelled"
		return
	}
	if !c.runStageChecked(ctx, spec, StageReportGeneration, result) {
		return
	}
	_ = c.store.AdvanceStep(spec.WorkflowID, 4)
}

func (c *Coordinator) runHierarchical(ctx context.Context, spec Spec, result *ExecutionResult) {
	stageFor := map[string]string{
		"data_collection":    StageDataCollection,
		"search_enhancement": StageSearchEnhancement,
		"analysis":           StageAnalysis,
		"report_generation":  StageReportGeneration,
	}
	for _, cp := range checkpoints {
		if c.cancelled(spec.WorkflowID) {
			result.ErrorMessage = "workflow cancelled"
			return
		}
		now := c.clock().UTC()
		_ = c.store.AppendStep(spec.WorkflowID, Step{
			StepID:    fmt.Sprintf("%s-progress-%d", spec.WorkflowID, cp.Percent),
			Action:    cp.Name,
			Status:    StatusRunning,
			StartTime: now,
			EndTime:   now,
		})
		_ = c.store.AdvanceStep(spec.WorkflowID, cp.Percent)

		if stage, ok := stageFor[cp.Name]; ok {
			if !c.runStageChecked(ctx, spec, stage, result) {
				return
			}
		}
	}
}

// runStageChecked runs one stage, handling the precondition and skip rules.
// It returns false when the whole workflow must stop with a failure.
func (c *Coordinator) runStageChecked(ctx context.Context, spec Spec, stage string, result *ExecutionResult) bool {
	switch stage {
	case StageAnalysis:
		if !result.Results[StageDataCollection].Succeeded() {
			msg := "analysis precondition failed: data collection did not succeed"
			now := c.clock().UTC()
			_ = c.store.AppendStep(spec.WorkflowID, Step{
				StepID:       fmt.Sprintf("%s-%s", spec.WorkflowID, stage),
				Action:       stage,
				Status:       StatusFailed,
				StartTime:    now,
				EndTime:      now,
				ErrorMessage: msg,
			})
			result.ErrorMessage = msg
			_ = c.store.Fail(spec.WorkflowID, msg)
			return false
		}
	case StageReportGeneration:
		if !spec.Request.Analysis.GenerateReport || !result.Results[StageAnalysis].Succeeded() {
			now := c.clock().UTC()
			_ = c.store.AppendStep(spec.WorkflowID, Step{
				StepID:    fmt.Sprintf("%s-%s", spec.WorkflowID, stage),
				Action:    stage,
				Status:    StatusCompleted,
				StartTime: now,
				EndTime:   now,
				Result:    map[string]any{"status": string(agents.StatusSkipped)},
			})
			result.Results[stage] = agents.Response{Status: agents.StatusSkipped}
			return true
		}
	}

	req := c.stageRequest(spec, result)
	result.Results[stage] = c.runStage(ctx, spec, stage, req)
	return true
}

// stageRequest copies the workflow request and folds successful upstream
// payloads into its context so later stages can consume them.
func (c *Coordinator) stageRequest(spec Spec, result *ExecutionResult) agents.Request {
	req := spec.Request
	merged := make(map[string]any, len(req.Context)+len(result.Results))
	for k, v := range req.Context {
		merged[k] = v
	}
	for stage, resp := range result.Results {
		if resp.Succeeded() {
			merged[stage] = resp.Payload
		}
	}
	req.Context = merged
	return req
}

func (c *Coordinator) runStage(ctx context.Context, spec Spec, stage string, req agents.Request) agents.Response {
	start := c.clock().UTC()

	ctx, span := tracer.StartSpan(ctx, "workflow.stage."+stage)
	span.SetAttributes(tracer.StringAttr("workflow.id", spec.WorkflowID))
	defer span.End()

	resp := c.dispatch(ctx, stage, req)

	step := Step{
		StepID:    fmt.Sprintf("%s-%s", spec.WorkflowID, stage),
		AgentID:   resp.AgentID,
		Action:    stage,
		StartTime: start,
		EndTime:   c.clock().UTC(),
		Result: map[string]any{
			"status":        string(resp.Status),
			"quality_score": resp.QualityScore,
			"from_cache":    resp.FromCache,
		},
	}
	if resp.Succeeded() {
		step.Status = StatusCompleted
		tracer.SetOK(span)
	} else {
		step.Status = StatusFailed
		step.ErrorMessage = resp.Error
		tracer.RecordError(span, fmt.Errorf("stage %s: %s", stage, resp.Error))
	}
	_ = c.store.AppendStep(spec.WorkflowID, step)

	c.logger.Printf("workflow %s stage %s: status=%s agent=%s quality=%.2f",
		spec.WorkflowID, stage, resp.Status, resp.AgentID, resp.QualityScore)
	return resp
}

// dispatch resolves the specialist for a stage, holds a load slot for the
// duration of the call, and never lets a failure escape as an error.
func (c *Coordinator) dispatch(ctx context.Context, stage string, req agents.Request) agents.Response {
	agentType, ok := stageAgentType[stage]
	if !ok {
		return agents.Response{Status: agents.StatusFailed, Error: "unknown stage " + stage}
	}
	agent, ok := c.agents[agentType]
	if !ok {
		return agents.Response{
			AgentType: agentType,
			Status:    agents.StatusFailed,
			Error:     fmt.Sprintf("no %s agent registered", agentType),
		}
	}
	if err := c.reg.Acquire(agent.AgentID()); err != nil {
		return agents.Response{
			AgentID:   agent.AgentID(),
			AgentType: agentType,
			Status:    agents.StatusFailed,
			Error:     err.Error(),
		}
	}
	defer c.reg.Release(agent.AgentID())

	return agent.Process(ctx, req)
}

func (c *Coordinator) cancelled(workflowID string) bool {
	status, ok := c.store.StatusOf(workflowID)
	return ok && status == StatusCancelled
}

// qualityScore weights the pipeline stages: collection 0.3, search 0.2,
// analysis 0.4, plus a flat 0.1 when a report was produced.
func qualityScore(results map[string]agents.Response) float64 {
	score := 0.0
	if r, ok := results[StageDataCollection]; ok && r.Succeeded() {
		score += 0.3 * r.QualityScore
	}
	if r, ok := results[StageSearchEnhancement]; ok && r.Succeeded() {
		score += 0.2 * r.QualityScore
	}
	if r, ok := results[StageAnalysis]; ok && r.Succeeded() {
		score += 0.4 * r.QualityScore
	}
	if r, ok := results[StageReportGeneration]; ok && r.Succeeded() {
		score += 0.1
	}
	if score > 1 {
		score = 1
	}
	return score
}

func firstFailure(results map[string]agents.Response) string {
	order := []string{StageDataCollection, StageSearchEnhancement, StageAnalysis, StageReportGeneration}
	for _, stage := range order {
		if r, ok := results[stage]; ok && r.Status == agents.StatusFailed {
			if r.Error != "" {
				return fmt.Sprintf("%s failed: %s", stage, r.Error)
			}
			return stage + " failed"
		}
	}
	return "workflow did not complete"
}
