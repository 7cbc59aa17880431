package router

import (
	"context"
	"strings"
	"testing"

	"github.com/praxisworks/patent-agents/internal/agents"
	"github.com/praxisworks/patent-agents/internal/intent"
	"github.com/praxisworks/patent-agents/internal/registry"
)

type stubClassifier struct {
	result intent.Result
}

func (s stubClassifier) AnalyzeIntent(ctx context.Context, content string, reqContext map[string]any) intent.Result {
	return s.result
}

func newTestRegistry(t *testing.T, infos ...registry.AgentInfo) *registry.Registry {
	t.Helper()
	reg := registry.New(registry.Config{})
	for _, info := range infos {
		if _, err := reg.Register(info); err != nil {
			t.Fatalf("register %s: %v", info.AgentID, err)
		}
	}
	return reg
}

func newTestRouter(t *testing.T, cls Classifier, reg *registry.Registry, cfg Config) *Router {
	t.Helper()
	rt, err := New(cls, reg, cfg)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return rt
}

func TestDefaultRulesCoverAllIntents(t *testing.T) {
	if err := VerifyRules(DefaultRules()); err != nil {
		t.Fatalf("default rules failed verification: %v", err)
	}
}

func TestVerifyRulesRejectsGaps(t *testing.T) {
	rules := DefaultRules()
	delete(rules, intent.TypePatentAnalysis)
	if err := VerifyRules(rules); err == nil {
		t.Fatal("expected error for missing patent_analysis rule")
	}

	rules = DefaultRules()
	rule := rules[intent.TypeSalesInquiry]
	rule.PrimaryAgents = nil
	rules[intent.TypeSalesInquiry] = rule
	if err := VerifyRules(rules); err == nil {
		t.Fatal("expected error for rule without primary agents")
	}
}

func TestValidateIntent(t *testing.T) {
	rt := newTestRouter(t, stubClassifier{}, newTestRegistry(t), Config{})

	cases := []struct {
		name string
		res  intent.Result
		want bool
	}{
		{
			name: "above threshold with agents",
			res:  intent.Result{Intent: intent.TypeSalesInquiry, Confidence: 0.85, SuggestedAgents: []string{"sales"}},
			want: true,
		},
		{
			name: "below threshold",
			res:  intent.Result{Intent: intent.TypeSalesInquiry, Confidence: 0.5, SuggestedAgents: []string{"sales"}},
			want: false,
		},
		{
			name: "no suggested agents",
			res:  intent.Result{Intent: intent.TypeGeneralInquiry, Confidence: 0.9},
			want: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := rt.ValidateIntent(tc.res); got != tc.want {
				t.Fatalf("ValidateIntent = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRouteSalesInquiryToSalesAgent(t *testing.T) {
	reg := newTestRegistry(t,
		registry.AgentInfo{AgentID: "sales-1", Type: registry.TypeSales, Capabilities: []string{"价格", "产品"}},
		registry.AgentInfo{AgentID: "support-1", Type: registry.TypeCustomerSupport},
	)
	cls := stubClassifier{result: intent.Result{
		Intent:          intent.TypeSalesInquiry,
		Confidence:      0.9,
		SuggestedAgents: []string{"sales"},
		Reasoning:       "price question",
	}}
	rt := newTestRouter(t, cls, reg, Config{})

	decision, res, err := rt.RouteRequest(context.Background(), agents.Request{
		RequestID: "req-1",
		Content:   "我想了解你们的产品价格",
		Priority:  agents.PriorityNormal,
	})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if decision.AgentID != "sales-1" {
		t.Fatalf("routed to %s, want sales-1", decision.AgentID)
	}
	if decision.Fallback {
		t.Fatal("primary route marked as fallback")
	}
	if res.Intent != intent.TypeSalesInquiry {
		t.Fatalf("intent = %s", res.Intent)
	}
	if decision.EstimatedSeconds != 30 {
		t.Fatalf("estimated seconds = %d, want 30", decision.EstimatedSeconds)
	}
}

func TestRouteFallsBackWhenPrimaryBusy(t *testing.T) {
	reg := newTestRegistry(t,
		registry.AgentInfo{AgentID: "sales-1", Type: registry.TypeSales, MaxLoad: 1},
		registry.AgentInfo{AgentID: "support-1", Type: registry.TypeCustomerSupport},
	)
	if err := reg.Acquire("sales-1"); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	cls := stubClassifier{result: intent.Result{Intent: intent.TypeSalesInquiry, Confidence: 0.9, SuggestedAgents: []string{"sales"}}}
	rt := newTestRouter(t, cls, reg, Config{})

	decision, _, err := rt.RouteRequest(context.Background(), agents.Request{RequestID: "req-2", Content: "order status"})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if decision.AgentID != "support-1" {
		t.Fatalf("routed to %s, want support-1", decision.AgentID)
	}
	if !decision.Fallback {
		t.Fatal("expected fallback flag")
	}
	for _, alt := range decision.Alternatives {
		if alt == decision.AgentType {
			t.Fatalf("selected type %s listed in its own alternatives %v", decision.AgentType, decision.Alternatives)
		}
	}
	if len(decision.Alternatives) != 1 || decision.Alternatives[0] != registry.TypeSales {
		t.Fatalf("alternatives = %v, want [sales]", decision.Alternatives)
	}
}

func TestRouteLastRungPicksLeastLoadedAnywhere(t *testing.T) {
	// No sales or support agents at all: the ladder bottoms out on whatever
	// is alive with spare capacity.
	reg := newTestRegistry(t,
		registry.AgentInfo{AgentID: "coord-1", Type: registry.TypeCoordinator, MaxLoad: 10},
		registry.AgentInfo{AgentID: "analyst-1", Type: registry.TypePatentAnalysis, MaxLoad: 10},
	)
	for i := 0; i < 5; i++ {
		if err := reg.Acquire("analyst-1"); err != nil {
			t.Fatalf("acquire: %v", err)
		}
	}

	cls := stubClassifier{result: intent.Result{Intent: intent.TypeSalesInquiry, Confidence: 0.9, SuggestedAgents: []string{"sales"}}}
	rt := newTestRouter(t, cls, reg, Config{})

	decision, _, err := rt.RouteRequest(context.Background(), agents.Request{RequestID: "req-3", Content: "hello"})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if decision.AgentID != "coord-1" {
		t.Fatalf("routed to %s, want coord-1", decision.AgentID)
	}
	if !decision.Fallback {
		t.Fatal("expected fallback flag on last-rung selection")
	}
	if !decision.RequiresCollaboration {
		t.Fatal("off-rule routing should force collaboration")
	}
}

func TestRouteLastRungForcesCollaborationForAnyType(t *testing.T) {
	// Only one live agent, and it is neither a primary nor a fallback for
	// sales inquiries. Whoever gets the request this way needs a handoff.
	reg := newTestRegistry(t,
		registry.AgentInfo{AgentID: "analyst-1", Type: registry.TypePatentAnalysis},
	)
	cls := stubClassifier{result: intent.Result{Intent: intent.TypeSalesInquiry, Confidence: 0.9, SuggestedAgents: []string{"sales"}}}
	rt := newTestRouter(t, cls, reg, Config{})

	decision, _, err := rt.RouteRequest(context.Background(), agents.Request{RequestID: "req-10", Content: "pricing please"})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if decision.AgentID != "analyst-1" {
		t.Fatalf("routed to %s, want analyst-1", decision.AgentID)
	}
	if !decision.Fallback {
		t.Fatal("expected fallback flag")
	}
	if !decision.RequiresCollaboration {
		t.Fatal("last-rung routing must require collaboration regardless of agent type")
	}
}

func TestRouteRejectsWeakClassification(t *testing.T) {
	reg := newTestRegistry(t,
		registry.AgentInfo{AgentID: "manager-1", Type: registry.TypeManager},
		registry.AgentInfo{AgentID: "support-1", Type: registry.TypeCustomerSupport},
	)
	// Confidence 0.3 is far below the 0.8 management_decision threshold: the
	// classification must be replaced with the default, not routed as-is.
	cls := stubClassifier{result: intent.Result{
		Intent:          intent.TypeManagementDecision,
		Confidence:      0.3,
		SuggestedAgents: []string{"manager"},
	}}
	rt := newTestRouter(t, cls, reg, Config{})

	decision, res, err := rt.RouteRequest(context.Background(), agents.Request{RequestID: "req-11", Content: "hmm maybe strategy?"})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if res.Intent != intent.TypeGeneralInquiry || res.Confidence != 0.1 {
		t.Fatalf("result not degraded: %+v", res)
	}
	if decision.AgentID != "support-1" {
		t.Fatalf("routed to %s, want support-1 under the general_inquiry rule", decision.AgentID)
	}
	if decision.AgentID == "manager-1" {
		t.Fatal("weak classification routed to the management rule")
	}
}

func TestRouteMissingSuggestedAgentsDegrades(t *testing.T) {
	reg := newTestRegistry(t,
		registry.AgentInfo{AgentID: "support-1", Type: registry.TypeCustomerSupport},
	)
	cls := stubClassifier{result: intent.Result{Intent: intent.TypeSalesInquiry, Confidence: 0.95}}
	rt := newTestRouter(t, cls, reg, Config{})

	_, res, err := rt.RouteRequest(context.Background(), agents.Request{RequestID: "req-12", Content: "price?"})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if res.Intent != intent.TypeGeneralInquiry {
		t.Fatalf("intent = %s, want general_inquiry", res.Intent)
	}
}

func TestAlternativesExcludeSelected(t *testing.T) {
	rule := Rule{
		PrimaryAgents:  []registry.AgentType{registry.TypeCustomerSupport},
		FallbackAgents: []registry.AgentType{registry.TypeFieldService, registry.TypeSales, registry.TypeCustomerSupport},
	}
	got := alternativesFor(rule, registry.TypeFieldService)
	want := []registry.AgentType{registry.TypeCustomerSupport, registry.TypeSales}
	if len(got) != len(want) {
		t.Fatalf("alternatives = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("alternatives = %v, want %v", got, want)
		}
	}
}

func TestRouteErrorsWhenNoAgentsAlive(t *testing.T) {
	cls := stubClassifier{result: intent.Result{Intent: intent.TypeGeneralInquiry, Confidence: 0.4}}
	rt := newTestRouter(t, cls, newTestRegistry(t), Config{})

	_, _, err := rt.RouteRequest(context.Background(), agents.Request{RequestID: "req-4", Content: "anyone there"})
	if err == nil {
		t.Fatal("expected error with empty registry")
	}
	if !strings.Contains(err.Error(), "no available agent") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadBalancedStrategy(t *testing.T) {
	reg := newTestRegistry(t,
		registry.AgentInfo{AgentID: "support-1", Type: registry.TypeCustomerSupport, MaxLoad: 10},
		registry.AgentInfo{AgentID: "support-2", Type: registry.TypeCustomerSupport, MaxLoad: 10},
	)
	for i := 0; i < 4; i++ {
		if err := reg.Acquire("support-1"); err != nil {
			t.Fatalf("acquire: %v", err)
		}
	}

	cls := stubClassifier{result: intent.Result{Intent: intent.TypeCustomerSupport, Confidence: 0.8, SuggestedAgents: []string{"customer_support"}}}
	rt := newTestRouter(t, cls, reg, Config{Strategy: StrategyLoad})

	decision, _, err := rt.RouteRequest(context.Background(), agents.Request{RequestID: "req-5", Content: "help"})
	if err != nil {
		t.Fatalf("route: %v", err)
	}
	if decision.AgentID != "support-2" {
		t.Fatalf("routed to %s, want the idle support-2", decision.AgentID)
	}
}

func TestUnknownStrategyAliasesToCapability(t *testing.T) {
	if got := ParseStrategy("round_robin"); got != StrategyCapability {
		t.Fatalf("ParseStrategy = %s", got)
	}
}

func TestCollaborationEvaluation(t *testing.T) {
	rt := newTestRouter(t, stubClassifier{}, newTestRegistry(t), Config{})

	t.Run("rule forces collaboration", func(t *testing.T) {
		rule := rt.rules[intent.TypeManagementDecision]
		collab, _ := rt.evaluateCollaboration(
			agents.Request{Content: "approve the budget"},
			intent.Result{Intent: intent.TypeManagementDecision, Confidence: 0.95},
			rule,
		)
		if !collab {
			t.Fatal("management decisions always collaborate")
		}
	})

	t.Run("score triggers above threshold", func(t *testing.T) {
		rule := rt.rules[intent.TypeGeneralInquiry]
		// Low confidence (0.3) + complex keyword (0.2) + high priority (0.2)
		// clears the 0.3 general_inquiry threshold.
		collab, score := rt.evaluateCollaboration(
			agents.Request{Content: "this is a complex cross-team problem", Priority: agents.PriorityHigh},
			intent.Result{Intent: intent.TypeGeneralInquiry, Confidence: 0.5},
			rule,
		)
		if !collab {
			t.Fatalf("expected collaboration, score %.2f", score)
		}
		if score < 0.69 || score > 0.71 {
			t.Fatalf("score = %.2f, want 0.70", score)
		}
	})

	t.Run("confident simple request does not collaborate", func(t *testing.T) {
		rule := rt.rules[intent.TypeSalesInquiry]
		collab, _ := rt.evaluateCollaboration(
			agents.Request{Content: "how much is the basic plan", Priority: agents.PriorityNormal},
			intent.Result{Intent: intent.TypeSalesInquiry, Confidence: 0.9},
			rule,
		)
		if collab {
			t.Fatal("unexpected collaboration flag")
		}
	})
}

func TestEstimatedProcessingAppliesMultiplier(t *testing.T) {
	rt := newTestRouter(t, stubClassifier{}, newTestRegistry(t), Config{})
	got := rt.estimateProcessing(intent.TypePatentAnalysis, rt.rules[intent.TypePatentAnalysis])
	if got.Seconds() != 600 {
		t.Fatalf("patent analysis estimate = %v, want 10m", got)
	}
}
