package intent

import (
	"regexp"
	"strings"
)

// pattern tables drive the rule-based fallback classifier and give the LLM
// path something deterministic to validate against.
type patternRule struct {
	Keywords        []string
	Patterns        []*regexp.Regexp
	SuggestedAgents []string
	ConfidenceBoost float64
}

var patternRules = map[Type]patternRule{
	TypeSalesInquiry: {
		Keywords: []string{
			"价格", "报价", "多少钱", "费用", "成本", "购买", "订购", "采购",
			"优惠", "折扣", "促销", "销售", "合作", "代理",
			"price", "quote", "pricing", "purchase", "buy", "discount",
		},
		Patterns:        compile(`.*价格.*`, `.*多少钱.*`, `.*购买.*`, `.*报价.*`, `(?i).*how much.*`),
		SuggestedAgents: []string{"sales"},
		ConfidenceBoost: 0.1,
	},
	TypeCustomerSupport: {
		Keywords: []string{
			"问题", "故障", "报修", "投诉", "帮助", "咨询", "售后",
			"issue", "problem", "broken", "help", "support", "complaint",
		},
		Patterns:        compile(`.*故障.*`, `.*问题.*`, `(?i).*not working.*`, `(?i).*help.*`),
		SuggestedAgents: []string{"customer_support"},
		ConfidenceBoost: 0.1,
	},
	TypeTechnicalService: {
		Keywords: []string{
			"维修", "安装", "调试", "现场", "技术支持", "维护", "检修",
			"repair", "install", "on-site", "maintenance", "technician",
		},
		Patterns:        compile(`.*维修.*`, `.*安装.*`, `(?i).*on.?site.*`),
		SuggestedAgents: []string{"field_service"},
		ConfidenceBoost: 0.1,
	},
	TypeManagementDecision: {
		Keywords: []string{
			"数据分析", "决策", "战略", "规划", "预算", "资源配置", "汇报",
			"strategy", "decision", "budget", "forecast", "planning",
		},
		Patterns:        compile(`.*决策.*`, `.*战略.*`, `(?i).*strateg.*`),
		SuggestedAgents: []string{"manager"},
		ConfidenceBoost: 0.1,
	},
	TypePatentAnalysis: {
		Keywords: []string{
			"专利", "专利分析", "专利检索", "技术趋势", "竞争分析", "申请人",
			"patent", "prior art", "patent landscape", "ipc", "applicant",
		},
		Patterns:        compile(`.*专利.*`, `(?i).*patent.*`, `(?i).*prior art.*`),
		SuggestedAgents: []string{"patent_coordinator"},
		ConfidenceBoost: 0.15,
	},
	TypeGeneralInquiry: {
		Keywords: []string{
			"公司", "介绍", "了解", "是什么", "官网", "地址",
			"about", "company", "what is", "who are",
		},
		Patterns:        compile(`.*介绍.*`, `(?i).*what is.*`),
		SuggestedAgents: []string{"customer_support"},
		ConfidenceBoost: 0.05,
	},
	TypeCollaborationRequired: {
		Keywords: []string{
			"复杂", "综合", "跨部门", "协作", "联合", "多个部门",
			"complex", "cross-team", "multiple departments", "end to end",
		},
		Patterns:        compile(`.*跨部门.*`, `.*协作.*`, `(?i).*cross.?team.*`),
		SuggestedAgents: []string{"coordinator"},
		ConfidenceBoost: 0.1,
	},
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

// MatchKeywords scores text against the pattern tables and returns the best
// matching intent. Used when no LLM caller is configured and as a sanity
// check in tests. Zero matches yields the general inquiry default.
func MatchKeywords(text string) Result {
	best := TypeGeneralInquiry
	bestScore := 0.0
	for _, t := range AllTypes() {
		rule := patternRules[t]
		hits := 0
		for _, kw := range rule.Keywords {
			if strings.Contains(strings.ToLower(text), strings.ToLower(kw)) {
				hits++
			}
		}
		for _, re := range rule.Patterns {
			if re.MatchString(text) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		score := 0.4 + 0.1*float64(hits) + rule.ConfidenceBoost
		if score > 0.95 {
			score = 0.95
		}
		if score > bestScore {
			bestScore = score
			best = t
		}
	}
	if bestScore == 0 {
		return DefaultResult("no keyword or pattern matched")
	}
	return Result{
		Intent:                best,
		Confidence:            bestScore,
		SuggestedAgents:       append([]string{}, patternRules[best].SuggestedAgents...),
		RequiresCollaboration: best == TypeCollaborationRequired,
		Reasoning:             "rule-based keyword match",
	}
}

// DefaultResult is the degraded routing fallback: low confidence, generic
// support agent, never empty.
func DefaultResult(reason string) Result {
	return Result{
		Intent:          TypeGeneralInquiry,
		Confidence:      0.1,
		Entities:        []Entity{},
		SuggestedAgents: []string{"customer_support"},
		Reasoning:       reason,
	}
}

// SuggestedAgentsFor returns the static intent→agent mapping used to build
// the classification prompt.
func SuggestedAgentsFor(t Type) []string {
	return append([]string{}, patternRules[t].SuggestedAgents...)
}
