package router

import (
	"fmt"
	"time"

	"github.com/praxisworks/patent-agents/internal/intent"
	"github.com/praxisworks/patent-agents/internal/registry"
)

// Rule is the static routing configuration for one intent type. Every intent
// must have exactly one rule; a gap is a deployment defect, not something to
// paper over at request time.
type Rule struct {
	PrimaryAgents         []registry.AgentType
	FallbackAgents        []registry.AgentType
	ConfidenceThreshold   float64
	RequiresCollaboration bool
	MaxProcessingTime     time.Duration
	PriorityMultiplier    float64
}

func DefaultRules() map[intent.Type]Rule {
	return map[intent.Type]Rule{
		intent.TypeSalesInquiry: {
			PrimaryAgents:       []registry.AgentType{registry.TypeSales},
			FallbackAgents:      []registry.AgentType{registry.TypeCustomerSupport},
			ConfidenceThreshold: 0.7,
			MaxProcessingTime:   5 * time.Minute,
			PriorityMultiplier:  1.0,
		},
		intent.TypeCustomerSupport: {
			PrimaryAgents:       []registry.AgentType{registry.TypeCustomerSupport},
			FallbackAgents:      []registry.AgentType{registry.TypeFieldService, registry.TypeSales},
			ConfidenceThreshold: 0.6,
			MaxProcessingTime:   10 * time.Minute,
			PriorityMultiplier:  1.2,
		},
		intent.TypeTechnicalService: {
			PrimaryAgents:       []registry.AgentType{registry.TypeFieldService},
			FallbackAgents:      []registry.AgentType{registry.TypeCustomerSupport},
			ConfidenceThreshold: 0.75,
			MaxProcessingTime:   15 * time.Minute,
			PriorityMultiplier:  1.5,
		},
		intent.TypeManagementDecision: {
			PrimaryAgents:         []registry.AgentType{registry.TypeManager},
			FallbackAgents:        []registry.AgentType{registry.TypeCoordinator},
			ConfidenceThreshold:   0.8,
			RequiresCollaboration: true,
			MaxProcessingTime:     30 * time.Minute,
			PriorityMultiplier:    2.0,
		},
		intent.TypePatentAnalysis: {
			PrimaryAgents:         []registry.AgentType{registry.TypePatentCoordinator},
			FallbackAgents:        []registry.AgentType{registry.TypeCoordinator, registry.TypeManager},
			ConfidenceThreshold:   0.7,
			RequiresCollaboration: true,
			MaxProcessingTime:     30 * time.Minute,
			PriorityMultiplier:    2.0,
		},
		intent.TypeGeneralInquiry: {
			PrimaryAgents:       []registry.AgentType{registry.TypeCustomerSupport},
			FallbackAgents:      []registry.AgentType{registry.TypeSales},
			ConfidenceThreshold: 0.5,
			MaxProcessingTime:   3 * time.Minute,
			PriorityMultiplier:  0.8,
		},
		intent.TypeCollaborationRequired: {
			PrimaryAgents:         []registry.AgentType{registry.TypeCoordinator},
			FallbackAgents:        []registry.AgentType{registry.TypeManager, registry.TypeCustomerSupport},
			ConfidenceThreshold:   0.85,
			RequiresCollaboration: true,
			MaxProcessingTime:     40 * time.Minute,
			PriorityMultiplier:    2.5,
		},
	}
}

// VerifyRules checks configuration integrity: one rule per intent type with
// non-empty primary agents and a threshold in [0,1]. Run at startup.
func VerifyRules(rules map[intent.Type]Rule) error {
	for _, t := range intent.AllTypes() {
		rule, ok := rules[t]
		if !ok {
			return fmt.Errorf("no routing rule for intent type %q", t)
		}
		if len(rule.PrimaryAgents) == 0 {
			return fmt.Errorf("routing rule for %q has no primary agents", t)
		}
		if rule.ConfidenceThreshold < 0 || rule.ConfidenceThreshold > 1 {
			return fmt.Errorf("routing rule for %q has confidence threshold %v outside [0,1]", t, rule.ConfidenceThreshold)
		}
	}
	return nil
}

// baseProcessingSeconds is the per-intent display estimate before the
// priority multiplier is applied.
var baseProcessingSeconds = map[intent.Type]int{
	intent.TypeSalesInquiry:          30,
	intent.TypeCustomerSupport:       45,
	intent.TypeTechnicalService:      90,
	intent.TypeManagementDecision:    120,
	intent.TypePatentAnalysis:        300,
	intent.TypeGeneralInquiry:        20,
	intent.TypeCollaborationRequired: 180,
}

// collaborationThresholds are the per-intent scores above which the
// multi-factor evaluation flags collaboration.
var collaborationThresholds = map[intent.Type]float64{
	intent.TypeManagementDecision:    0.8,
	intent.TypeCollaborationRequired: 0.6,
	intent.TypeSalesInquiry:          0.6,
	intent.TypeTechnicalService:      0.7,
	intent.TypePatentAnalysis:        0.7,
	intent.TypeCustomerSupport:       0.5,
	intent.TypeGeneralInquiry:        0.3,
}

var complexKeywords = []string{
	"复杂", "困难", "紧急", "重要", "关键",
	"多个", "各种", "综合", "全面", "系统",
	"跨部门", "协作", "配合", "联合",
	"complex", "urgent", "critical", "comprehensive", "cross-team", "end-to-end",
}
