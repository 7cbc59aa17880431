package router

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/praxisworks/patent-agents/internal/agents"
	"github.com/praxisworks/patent-agents/internal/intent"
	"github.com/praxisworks/patent-agents/internal/registry"
)

type Strategy string

const (
	StrategyCapability Strategy = "capability_based"
	StrategyLoad       Strategy = "load_balanced"
	StrategyPriority   Strategy = "priority_based"
)

// ParseStrategy maps unknown strings to the capability strategy so a typo in
// config degrades to the default rather than refusing requests.
func ParseStrategy(s string) Strategy {
	switch Strategy(s) {
	case StrategyCapability, StrategyLoad, StrategyPriority:
		return Strategy(s)
	}
	return StrategyCapability
}

// RouteResult is the routing decision for one request.
type RouteResult struct {
	RequestID             string               `json:"request_id"`
	AgentID               string               `json:"agent_id"`
	AgentType             registry.AgentType   `json:"agent_type"`
	Alternatives          []registry.AgentType `json:"alternative_agents"`
	Strategy              Strategy             `json:"strategy"`
	Fallback              bool                 `json:"fallback_used"`
	RequiresCollaboration bool                 `json:"requires_collaboration"`
	CollaborationScore    float64              `json:"collaboration_score"`
	EstimatedProcessing   time.Duration        `json:"-"`
	EstimatedSeconds      int                  `json:"estimated_processing_seconds"`
	MaxProcessingTime     time.Duration        `json:"-"`
	Reasoning             string               `json:"reasoning,omitempty"`
}

type Classifier interface {
	AnalyzeIntent(ctx context.Context, content string, reqContext map[string]any) intent.Result
}

type Config struct {
	Rules    map[intent.Type]Rule
	Strategy Strategy
	Logger   *log.Logger
}

type Router struct {
	classifier Classifier
	reg        *registry.Registry
	rules      map[intent.Type]Rule
	strategy   Strategy
	logger     *log.Logger
}

func New(classifier Classifier, reg *registry.Registry, cfg Config) (*Router, error) {
	rules := cfg.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	if err := VerifyRules(rules); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	strategy := cfg.Strategy
	if strategy == "" {
		strategy = StrategyCapability
	}
	return &Router{
		classifier: classifier,
		reg:        reg,
		rules:      rules,
		strategy:   ParseStrategy(string(strategy)),
		logger:     logger,
	}, nil
}

// ValidateIntent reports whether a classification is strong enough to route
// on directly: confidence at or above the rule threshold and at least one
// suggested agent.
func (rt *Router) ValidateIntent(res intent.Result) bool {
	rule, ok := rt.rules[res.Intent]
	if !ok {
		return false
	}
	return res.Confidence >= rule.ConfidenceThreshold && len(res.SuggestedAgents) > 0
}

// RouteRequest classifies the request and selects an agent. Classification
// never fails (the classifier degrades internally), so the only error here is
// having no live agent anywhere in the registry.
func (rt *Router) RouteRequest(ctx context.Context, req agents.Request) (RouteResult, intent.Result, error) {
	res := rt.classifier.AnalyzeIntent(ctx, req.Content, req.Context)
	if !rt.ValidateIntent(res) {
		rt.logger.Printf("router: request %s classification not trusted (intent=%s confidence=%.2f), using default",
			req.RequestID, res.Intent, res.Confidence)
		res = intent.DefaultResult(fmt.Sprintf(
			"classification %q (confidence %.2f) below routing threshold", res.Intent, res.Confidence))
	}

	rule, ok := rt.rules[res.Intent]
	if !ok {
		// VerifyRules guarantees coverage at construction; reaching here
		// means the classifier emitted a type outside the closed set.
		return RouteResult{}, res, fmt.Errorf("no routing rule for intent %q", res.Intent)
	}

	collab, score := rt.evaluateCollaboration(req, res, rule)

	info, fallback, degraded, err := rt.selectAgent(res.Intent, rule, req)
	if err != nil {
		return RouteResult{}, res, err
	}
	if degraded {
		// Off-rule routing always needs a coordinated handoff.
		collab = true
	}

	estimated := rt.estimateProcessing(res.Intent, rule)

	decision := RouteResult{
		RequestID:             req.RequestID,
		AgentID:               info.AgentID,
		AgentType:             info.Type,
		Alternatives:          alternativesFor(rule, info.Type),
		Strategy:              rt.strategy,
		Fallback:              fallback,
		RequiresCollaboration: collab,
		CollaborationScore:    score,
		EstimatedProcessing:   estimated,
		EstimatedSeconds:      int(estimated / time.Second),
		MaxProcessingTime:     rule.MaxProcessingTime,
		Reasoning:             res.Reasoning,
	}
	rt.logger.Printf("router: request %s intent=%s confidence=%.2f -> agent %s (type=%s fallback=%v collab=%v)",
		req.RequestID, res.Intent, res.Confidence, info.AgentID, info.Type, fallback, collab)
	return decision, res, nil
}

// selectAgent walks the candidate ladder: available primaries, then available
// fallbacks, then the least-loaded live agent of any type. The degraded flag
// marks that last rung, where the pick is outside the rule entirely.
func (rt *Router) selectAgent(t intent.Type, rule Rule, req agents.Request) (registry.AgentInfo, bool, bool, error) {
	if candidates := rt.availableOfTypes(rule.PrimaryAgents); len(candidates) > 0 {
		return rt.pick(candidates, req), false, false, nil
	}
	if candidates := rt.availableOfTypes(rule.FallbackAgents); len(candidates) > 0 {
		return rt.pick(candidates, req), true, false, nil
	}
	// Last rung: anything alive, regardless of type.
	var candidates []registry.AgentInfo
	for _, info := range rt.reg.List() {
		if info.Available() && info.CurrentLoad < info.MaxLoad {
			candidates = append(candidates, info)
		}
	}
	if len(candidates) == 0 {
		return registry.AgentInfo{}, false, false, fmt.Errorf("no available agent for intent %q", t)
	}
	return leastLoaded(candidates), true, true, nil
}

// alternativesFor lists the rule's remaining candidate types in rule order,
// never including the type that was actually selected.
func alternativesFor(rule Rule, selected registry.AgentType) []registry.AgentType {
	seen := map[registry.AgentType]struct{}{selected: {}}
	out := []registry.AgentType{}
	for _, t := range rule.PrimaryAgents {
		if _, dup := seen[t]; !dup {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	for _, t := range rule.FallbackAgents {
		if _, dup := seen[t]; !dup {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

func (rt *Router) availableOfTypes(types []registry.AgentType) []registry.AgentInfo {
	var out []registry.AgentInfo
	for _, t := range types {
		for _, info := range rt.reg.ListByType(t) {
			if info.Available() && info.CurrentLoad < info.MaxLoad {
				out = append(out, info)
			}
		}
	}
	return out
}

func (rt *Router) pick(candidates []registry.AgentInfo, req agents.Request) registry.AgentInfo {
	switch rt.strategy {
	case StrategyLoad:
		return leastLoaded(candidates)
	case StrategyPriority:
		if req.Priority.Elevated() {
			// Elevated requests take the most idle high-capacity agent.
			sort.Slice(candidates, func(i, j int) bool {
				if candidates[i].LoadRatio() != candidates[j].LoadRatio() {
					return candidates[i].LoadRatio() < candidates[j].LoadRatio()
				}
				return candidates[i].MaxLoad > candidates[j].MaxLoad
			})
			return candidates[0]
		}
		return leastLoaded(candidates)
	default:
		return rt.pickByCapability(candidates, req)
	}
}

// pickByCapability prefers agents whose declared capabilities overlap the
// request text, breaking ties on load ratio.
func (rt *Router) pickByCapability(candidates []registry.AgentInfo, req agents.Request) registry.AgentInfo {
	content := strings.ToLower(req.Content)
	best := candidates[0]
	bestScore := capabilityOverlap(best, content)
	for _, c := range candidates[1:] {
		score := capabilityOverlap(c, content)
		if score > bestScore || (score == bestScore && c.LoadRatio() < best.LoadRatio()) {
			best, bestScore = c, score
		}
	}
	return best
}

func capabilityOverlap(info registry.AgentInfo, loweredContent string) int {
	n := 0
	for _, cap := range info.Capabilities {
		if cap != "" && strings.Contains(loweredContent, strings.ToLower(cap)) {
			n++
		}
	}
	return n
}

func leastLoaded(candidates []registry.AgentInfo) registry.AgentInfo {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.LoadRatio() < best.LoadRatio() {
			best = c
		}
	}
	return best
}

// evaluateCollaboration combines the classifier's own flag, the rule, and a
// weighted score over confidence, entity spread, wording, and priority.
func (rt *Router) evaluateCollaboration(req agents.Request, res intent.Result, rule Rule) (bool, float64) {
	score := 0.0
	if res.Confidence < 0.7 {
		score += 0.3
	}
	if countEntityTypes(res.Entities) > 3 {
		score += 0.2
	}
	lowered := strings.ToLower(req.Content)
	for _, kw := range complexKeywords {
		if strings.Contains(lowered, kw) {
			score += 0.2
			break
		}
	}
	if req.Priority.Elevated() {
		score += 0.2
	}

	threshold, ok := collaborationThresholds[res.Intent]
	if !ok {
		threshold = 0.7
	}
	collab := rule.RequiresCollaboration || res.RequiresCollaboration || score >= threshold
	return collab, score
}

func countEntityTypes(entities []intent.Entity) int {
	seen := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		seen[e.Type] = struct{}{}
	}
	return len(seen)
}

func (rt *Router) estimateProcessing(t intent.Type, rule Rule) time.Duration {
	base, ok := baseProcessingSeconds[t]
	if !ok {
		base = 60
	}
	mult := rule.PriorityMultiplier
	if mult <= 0 {
		mult = 1.0
	}
	return time.Duration(float64(base)*mult) * time.Second
}
