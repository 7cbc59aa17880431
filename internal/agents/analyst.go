package agents

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/praxisworks/patent-agents/internal/registry"
)

// Analyst is the analysis specialist: aggregate statistics over collected
// records (trend, technology classification, applicant competition).
type Analyst struct {
	base
}

func NewAnalyst(id string, cache *Cache, logger *log.Logger) *Analyst {
	return &Analyst{base: newBase(id, registry.TypePatentAnalysis, cache, logger)}
}

func (a *Analyst) CanHandle(req Request) float64 {
	return keywordOverlap(req.Content, []string{"analysis", "分析", "trend", "趋势", "competition", "竞争"})
}

func (a *Analyst) Capabilities() []string {
	return []string{"trend_analysis", "tech_classification", "competition_analysis"}
}

func (a *Analyst) EstimateProcessingTime(req Request) time.Duration {
	return 3 * time.Second
}

func (a *Analyst) Process(ctx context.Context, req Request) Response {
	return a.run(ctx, req, a.analyze)
}

type TrendAnalysis struct {
	CountsByYear map[string]int `json:"counts_by_year"`
	Direction    string         `json:"direction"`
	GrowthRate   float64        `json:"growth_rate"`
	PeakYear     string         `json:"peak_year"`
}

type TechClassification struct {
	MainCategories []string       `json:"main_categories"`
	CategoryCounts map[string]int `json:"category_counts"`
}

type ApplicantShare struct {
	Applicant string  `json:"applicant"`
	Count     int     `json:"count"`
	Share     float64 `json:"share"`
}

type CompetitionAnalysis struct {
	TopApplicants       []ApplicantShare `json:"top_applicants"`
	MarketConcentration float64          `json:"market_concentration"` // HHI over applicant shares
	ApplicantCount      int              `json:"applicant_count"`
}

func (a *Analyst) analyze(ctx context.Context, req Request) (Response, error) {
	records := recordsFromContext(req.Context)
	if len(records) == 0 {
		return Response{}, errors.New("no patent records available for analysis")
	}

	wanted := req.Analysis.AnalysisTypes
	if len(wanted) == 0 {
		wanted = []string{"trend", "tech_classification", "competition"}
	}

	payload := map[string]any{"total_patents": len(records)}
	covered := 0
	for _, kind := range wanted {
		switch kind {
		case "trend", "trend_analysis":
			payload["trend_analysis"] = analyzeTrend(records)
			covered++
		case "tech_classification", "technology":
			payload["tech_classification"] = classifyTech(records)
			covered++
		case "competition", "competition_analysis":
			payload["competition_analysis"] = analyzeCompetition(records)
			covered++
		}
	}
	payload["insights"] = buildInsights(payload)

	return Response{
		Status:       StatusSuccess,
		Content:      "patent analysis completed",
		QualityScore: analysisQuality(len(records), covered, len(wanted)),
		Payload:      payload,
	}, nil
}

// recordsFromContext reads the accumulated data-collection result the
// coordinator passes between stages.
func recordsFromContext(reqContext map[string]any) []PatentRecord {
	stage, _ := reqContext["data_collection"].(map[string]any)
	if stage == nil {
		return nil
	}
	records, _ := stage["records"].([]PatentRecord)
	return records
}

func analyzeTrend(records []PatentRecord) TrendAnalysis {
	byYear := map[string]int{}
	for _, r := range records {
		if len(r.ApplicationDate) >= 4 {
			byYear[r.ApplicationDate[:4]]++
		}
	}
	years := make([]string, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Strings(years)

	t := TrendAnalysis{CountsByYear: byYear, Direction: "stable"}
	if len(years) == 0 {
		return t
	}
	peak := years[0]
	for _, y := range years {
		if byYear[y] > byYear[peak] {
			peak = y
		}
	}
	t.PeakYear = peak

	if len(years) >= 2 {
		half := len(years) / 2
		early, late := 0, 0
		for _, y := range years[:half] {
			early += byYear[y]
		}
		for _, y := range years[half:] {
			late += byYear[y]
		}
		if early > 0 {
			t.GrowthRate = float64(late-early) / float64(early)
		}
		switch {
		case t.GrowthRate > 0.1:
			t.Direction = "increasing"
		case t.GrowthRate < -0.1:
			t.Direction = "decreasing"
		}
	}
	return t
}

func classifyTech(records []PatentRecord) TechClassification {
	counts := map[string]int{}
	for _, r := range records {
		for _, ipc := range r.IPCClasses {
			prefix := ipc
			if len(prefix) > 4 {
				prefix = prefix[:4]
			}
			prefix = strings.TrimSpace(prefix)
			if prefix != "" {
				counts[prefix]++
			}
		}
	}
	categories := make([]string, 0, len(counts))
	for c := range counts {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool {
		if counts[categories[i]] != counts[categories[j]] {
			return counts[categories[i]] > counts[categories[j]]
		}
		return categories[i] < categories[j]
	})
	if len(categories) > 5 {
		categories = categories[:5]
	}
	return TechClassification{MainCategories: categories, CategoryCounts: counts}
}

func analyzeCompetition(records []PatentRecord) CompetitionAnalysis {
	counts := map[string]int{}
	total := 0
	for _, r := range records {
		for _, app := range r.Applicants {
			if app == "" {
				continue
			}
			counts[app]++
			total++
		}
	}
	shares := make([]ApplicantShare, 0, len(counts))
	hhi := 0.0
	for app, n := range counts {
		share := float64(n) / float64(total)
		hhi += share * share
		shares = append(shares, ApplicantShare{Applicant: app, Count: n, Share: share})
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].Count != shares[j].Count {
			return shares[i].Count > shares[j].Count
		}
		return shares[i].Applicant < shares[j].Applicant
	})
	top := shares
	if len(top) > 10 {
		top = top[:10]
	}
	return CompetitionAnalysis{
		TopApplicants:       top,
		MarketConcentration: hhi,
		ApplicantCount:      len(counts),
	}
}

func buildInsights(payload map[string]any) []string {
	insights := []string{}
	if t, ok := payload["trend_analysis"].(TrendAnalysis); ok {
		insights = append(insights, fmt.Sprintf("Filing trend is %s (growth rate %.0f%%), peaking in %s.",
			t.Direction, t.GrowthRate*100, t.PeakYear))
	}
	if tc, ok := payload["tech_classification"].(TechClassification); ok && len(tc.MainCategories) > 0 {
		insights = append(insights, "Dominant technology areas: "+strings.Join(tc.MainCategories, ", ")+".")
	}
	if c, ok := payload["competition_analysis"].(CompetitionAnalysis); ok {
		level := "fragmented"
		if c.MarketConcentration > 0.25 {
			level = "highly concentrated"
		} else if c.MarketConcentration > 0.15 {
			level = "moderately concentrated"
		}
		insights = append(insights, fmt.Sprintf("Applicant landscape is %s (HHI %.2f across %d applicants).",
			level, c.MarketConcentration, c.ApplicantCount))
	}
	return insights
}

func analysisQuality(sampleSize, covered, wanted int) float64 {
	coverage := 1.0
	if wanted > 0 {
		coverage = float64(covered) / float64(wanted)
	}
	sample := float64(sampleSize) / 50
	if sample > 1 {
		sample = 1
	}
	return 0.6*coverage + 0.4*sample
}
