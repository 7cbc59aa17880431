package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
)

const classifyPromptHeader = `You are an intent classification system for a multi-agent business service.
Classify the user input into exactly one of these intent types:

- sales_inquiry: pricing, product features, purchasing
- customer_support: problem reports, usage help, complaints
- technical_service: on-site service, repair, installation
- management_decision: data analysis, strategy, resource allocation
- patent_analysis: patent research, landscape, prior art, applicant analysis
- general_inquiry: company info, basic questions
- collaboration_required: complex tasks spanning multiple specialties

Respond with strict JSON only:
{
  "intent_type": "...",
  "confidence": 0.95,
  "entities": [{"name": "...", "value": "...", "entity_type": "...", "confidence": 0.9}],
  "suggested_agents": ["..."],
  "requires_collaboration": false,
  "reasoning": "..."
}`

const entityPromptHeader = `Extract key entities from the text below. Entity types:
PRODUCT, SERVICE, PERSON, COMPANY, DATE, LOCATION, PROBLEM, FEATURE, PRICE, CONTACT, TECHNOLOGY.

Respond with strict JSON only:
{"entities": [{"name": "...", "value": "...", "entity_type": "...", "confidence": 0.9}]}`

// Classifier turns free text into an intent Result. It never returns an
// error: any failure of the underlying call or parse degrades to a default
// low-confidence result so routing always has something to work with.
type Classifier struct {
	caller Caller
	logger *log.Logger
}

func NewClassifier(caller Caller, logger *log.Logger) *Classifier {
	if logger == nil {
		logger = log.Default()
	}
	return &Classifier{caller: caller, logger: logger}
}

func (c *Classifier) AnalyzeIntent(ctx context.Context, content string, reqContext map[string]any) Result {
	if c.caller == nil {
		return MatchKeywords(content)
	}

	prompt := buildClassifyPrompt(content, reqContext)
	raw, err := c.caller.GenerateJSON(ctx, prompt)
	if err != nil {
		c.logger.Printf("intent classify call failed: %v", err)
		return DefaultResult(fmt.Sprintf("classification call failed: %v", err))
	}

	payload := ParsePayload(raw)
	if len(payload) == 0 {
		c.logger.Printf("intent classify response unparseable")
		return DefaultResult("classification response could not be parsed")
	}
	return resultFromPayload(payload)
}

func (c *Classifier) ExtractEntities(ctx context.Context, text string) []Entity {
	if c.caller == nil {
		return []Entity{}
	}
	raw, err := c.caller.GenerateJSON(ctx, entityPromptHeader+"\n\nText: "+text)
	if err != nil {
		c.logger.Printf("entity extraction call failed: %v", err)
		return []Entity{}
	}
	payload := ParsePayload(raw)
	raws, _ := payload["entities"].([]any)
	return parseEntities(raws)
}

func buildClassifyPrompt(content string, reqContext map[string]any) string {
	var sb strings.Builder
	sb.WriteString(classifyPromptHeader)
	if len(reqContext) > 0 {
		if blob, err := json.Marshal(reqContext); err == nil {
			sb.WriteString("\n\nRequest context: ")
			sb.Write(blob)
		}
	}
	sb.WriteString("\n\nUser input: ")
	sb.WriteString(content)
	return sb.String()
}

// ParsePayload parses LLM output in stages: direct JSON first, then the
// first balanced {...} substring, then an empty map. It never fails.
func ParsePayload(raw string) map[string]any {
	raw = stripCodeFences(raw)
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err == nil {
		return payload
	}
	if inner := balancedObject(raw); inner != "" {
		if err := json.Unmarshal([]byte(inner), &payload); err == nil {
			return payload
		}
	}
	return map[string]any{}
}

func balancedObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		parts := strings.SplitN(s, "\n", 2)
		if len(parts) == 2 {
			s = parts[1]
		}
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
	}
	return s
}

func resultFromPayload(payload map[string]any) Result {
	intentStr, _ := payload["intent_type"].(string)
	t, known := ParseType(intentStr)
	reasoning, _ := payload["reasoning"].(string)
	if !known && intentStr != "" {
		reasoning = strings.TrimSpace("unknown intent '" + intentStr + "' mapped to general_inquiry. " + reasoning)
	}

	confidence := floatField(payload, "confidence", 0.5)
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	rawEntities, _ := payload["entities"].([]any)
	requiresCollab, _ := payload["requires_collaboration"].(bool)

	agents := parseAgents(payload["suggested_agents"])
	if len(agents) == 0 {
		agents = SuggestedAgentsFor(t)
	}

	return Result{
		Intent:                t,
		Confidence:            confidence,
		Entities:              parseEntities(rawEntities),
		SuggestedAgents:       agents,
		RequiresCollaboration: requiresCollab,
		Reasoning:             reasoning,
	}
}

// parseEntities drops malformed entries individually rather than rejecting
// the whole list.
func parseEntities(raws []any) []Entity {
	entities := []Entity{}
	for _, raw := range raws {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		value, _ := m["value"].(string)
		if name == "" || value == "" {
			continue
		}
		entityType, _ := m["entity_type"].(string)
		if entityType == "" {
			entityType = "UNKNOWN"
		}
		entities = append(entities, Entity{
			Name:       name,
			Value:      value,
			Type:       entityType,
			Confidence: floatField(m, "confidence", 0.5),
		})
	}
	return entities
}

// KnownAgentTypes mirrors the registry's agent taxonomy. Suggested agents
// outside this set are dropped individually during parsing.
var KnownAgentTypes = map[string]struct{}{
	"coordinator":            {},
	"sales":                  {},
	"manager":                {},
	"field_service":          {},
	"customer_support":       {},
	"patent_coordinator":     {},
	"patent_data_collection": {},
	"patent_search":          {},
	"patent_analysis":        {},
	"patent_report":          {},
}

func parseAgents(raw any) []string {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	agents := []string{}
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if _, known := KnownAgentTypes[s]; !known {
			continue
		}
		agents = append(agents, s)
	}
	return agents
}

func floatField(m map[string]any, key string, def float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case string:
		var f float64
		if _, err := fmt.Sscanf(v, "%f", &f); err == nil {
			return f
		}
	}
	return def
}
