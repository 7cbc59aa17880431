package agents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/praxisworks/patent-agents/internal/registry"
)

// PDFRenderer turns a rendered HTML document into PDF bytes. Optional: a nil
// renderer limits output to markdown + HTML.
type PDFRenderer interface {
	Render(ctx context.Context, htmlDoc string) ([]byte, error)
}

// Reporter is the report-generation specialist: markdown assembly from the
// accumulated stage results, HTML rendering, optional PDF.
type Reporter struct {
	base
	md  goldmark.Markdown
	pdf PDFRenderer
}

func NewReporter(id string, pdf PDFRenderer, cache *Cache, logger *log.Logger) *Reporter {
	return &Reporter{
		base: newBase(id, registry.TypePatentReport, cache, logger),
		md:   goldmark.New(goldmark.WithExtensions(extension.GFM)),
		pdf:  pdf,
	}
}

func (r *Reporter) CanHandle(req Request) float64 {
	return keywordOverlap(req.Content, []string{"report", "报告", "summary", "导出"})
}

func (r *Reporter) Capabilities() []string {
	return []string{"report_generation", "html_rendering", "pdf_rendering"}
}

func (r *Reporter) EstimateProcessingTime(req Request) time.Duration {
	if strings.EqualFold(req.Analysis.ReportFormat, "pdf") {
		return 8 * time.Second
	}
	return 2 * time.Second
}

func (r *Reporter) Process(ctx context.Context, req Request) Response {
	return r.run(ctx, req, r.report)
}

func (r *Reporter) report(ctx context.Context, req Request) (Response, error) {
	analysis, _ := req.Context["analysis"].(map[string]any)
	if analysis == nil {
		return Response{}, errors.New("no analysis result available for report generation")
	}

	markdown := r.buildMarkdown(req, analysis)
	var htmlBuf bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &htmlBuf); err != nil {
		return Response{}, fmt.Errorf("render html: %w", err)
	}

	formats := []string{"markdown", "html"}
	payload := map[string]any{
		"report_id": "report-" + uuid.NewString(),
		"markdown":  markdown,
		"html":      htmlBuf.String(),
	}

	if strings.EqualFold(req.Analysis.ReportFormat, "pdf") && r.pdf != nil {
		pdfBytes, err := r.pdf.Render(ctx, htmlBuf.String())
		if err != nil {
			// PDF is best-effort: the report is still usable as HTML.
			r.logger.Printf("%s pdf render failed: %v", r.id, err)
			payload["pdf_error"] = err.Error()
		} else {
			payload["pdf"] = pdfBytes
			formats = append(formats, "pdf")
		}
	}
	payload["formats"] = formats

	return Response{
		Status:       StatusSuccess,
		Content:      "report generation completed",
		QualityScore: reportQuality(analysis, len(markdown)),
		Payload:      payload,
	}, nil
}

func (r *Reporter) buildMarkdown(req Request, analysis map[string]any) string {
	var sb strings.Builder
	topic := strings.Join(req.Keywords(), ", ")
	if topic == "" {
		topic = "patent landscape"
	}
	fmt.Fprintf(&sb, "# Patent Analysis Report: %s\n\n", topic)

	if total, ok := analysis["total_patents"].(int); ok {
		fmt.Fprintf(&sb, "Patents analyzed: **%d**\n\n", total)
	}

	if t, ok := analysis["trend_analysis"].(TrendAnalysis); ok {
		sb.WriteString("## Filing Trend\n\n")
		fmt.Fprintf(&sb, "Direction: %s, growth rate %.0f%%, peak year %s.\n\n", t.Direction, t.GrowthRate*100, t.PeakYear)
		sb.WriteString("| Year | Filings |\n|------|---------|\n")
		years := make([]string, 0, len(t.CountsByYear))
		for y := range t.CountsByYear {
			years = append(years, y)
		}
		sort.Strings(years)
		for _, y := range years {
			fmt.Fprintf(&sb, "| %s | %d |\n", y, t.CountsByYear[y])
		}
		sb.WriteString("\n")
	}

	if tc, ok := analysis["tech_classification"].(TechClassification); ok {
		sb.WriteString("## Technology Classification\n\n")
		for _, c := range tc.MainCategories {
			fmt.Fprintf(&sb, "- %s (%d filings)\n", c, tc.CategoryCounts[c])
		}
		sb.WriteString("\n")
	}

	if c, ok := analysis["competition_analysis"].(CompetitionAnalysis); ok {
		sb.WriteString("## Competitive Landscape\n\n")
		fmt.Fprintf(&sb, "Market concentration (HHI): %.2f over %d applicants.\n\n", c.MarketConcentration, c.ApplicantCount)
		sb.WriteString("| Applicant | Patents | Share |\n|-----------|---------|-------|\n")
		for _, a := range c.TopApplicants {
			fmt.Fprintf(&sb, "| %s | %d | %.1f%% |\n", a.Applicant, a.Count, a.Share*100)
		}
		sb.WriteString("\n")
	}

	if insights, ok := analysis["insights"].([]string); ok && len(insights) > 0 {
		sb.WriteString("## Key Insights\n\n")
		for _, ins := range insights {
			fmt.Fprintf(&sb, "- %s\n", ins)
		}
		sb.WriteString("\n")
	}

	if search, ok := req.Context["search_enhancement"].(map[string]any); ok {
		sb.WriteString("## Supplementary Sources\n\n")
		fmt.Fprintf(&sb, "Academic papers: %v, web results: %v, news items: %v.\n",
			search["academic_papers"], search["web_results"], search["news_items"])
	}
	return sb.String()
}

func reportQuality(analysis map[string]any, reportLen int) float64 {
	score := 0.0
	sections := []string{"trend_analysis", "tech_classification", "competition_analysis"}
	for _, s := range sections {
		if _, ok := analysis[s]; ok {
			score += 0.25
		}
	}
	if reportLen > 500 {
		score += 0.25
	}
	if score > 1 {
		score = 1
	}
	return score
}
