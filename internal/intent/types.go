package intent

type Type string

const (
	TypeSalesInquiry          Type = "sales_inquiry"
	TypeCustomerSupport       Type = "customer_support"
	TypeTechnicalService      Type = "technical_service"
	TypeManagementDecision    Type = "management_decision"
	TypePatentAnalysis        Type = "patent_analysis"
	TypeGeneralInquiry        Type = "general_inquiry"
	TypeCollaborationRequired Type = "collaboration_required"
)

// AllTypes is the closed set of intents the classifier may emit. The routing
// rule table must cover every entry.
func AllTypes() []Type {
	return []Type{
		TypeSalesInquiry,
		TypeCustomerSupport,
		TypeTechnicalService,
		TypeManagementDecision,
		TypePatentAnalysis,
		TypeGeneralInquiry,
		TypeCollaborationRequired,
	}
}

func ParseType(s string) (Type, bool) {
	t := Type(s)
	switch t {
	case TypeSalesInquiry, TypeCustomerSupport, TypeTechnicalService,
		TypeManagementDecision, TypePatentAnalysis, TypeGeneralInquiry,
		TypeCollaborationRequired:
		return t, true
	}
	return TypeGeneralInquiry, false
}

type Entity struct {
	Name       string  `json:"name"`
	Value      string  `json:"value"`
	Type       string  `json:"entity_type"`
	Confidence float64 `json:"confidence"`
}

type Result struct {
	Intent                Type     `json:"intent_type"`
	Confidence            float64  `json:"confidence"`
	Entities              []Entity `json:"entities"`
	SuggestedAgents       []string `json:"suggested_agents"`
	RequiresCollaboration bool     `json:"requires_collaboration"`
	Reasoning             string   `json:"reasoning"`
}
