package agents

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"time"
)

// PatentRecord is the normalized shape the core consumes from any patent
// data source.
type PatentRecord struct {
	PatentID        string   `json:"patent_id"`
	Title           string   `json:"title"`
	Abstract        string   `json:"abstract,omitempty"`
	Applicants      []string `json:"applicants"`
	Inventors       []string `json:"inventors,omitempty"`
	ApplicationDate string   `json:"application_date"`
	Country         string   `json:"country"`
	IPCClasses      []string `json:"ipc_classes"`
	Source          string   `json:"source"`
}

type FetchResult struct {
	Records []PatentRecord `json:"records"`
	Total   int            `json:"total"`
	Source  string         `json:"source"`
}

// PatentSource abstracts Google Patents / PatentsView style collection.
type PatentSource interface {
	Fetch(ctx context.Context, keywords []string, limit int) (FetchResult, error)
}

type WebDocument struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Kind    string `json:"kind"` // academic, web, news
}

type WebSearchResult struct {
	Documents []WebDocument `json:"documents"`
	Total     int           `json:"total"`
	Source    string        `json:"source"`
}

// WebSource abstracts CNKI / Bocha style text enrichment.
type WebSource interface {
	Search(ctx context.Context, keywords []string, limit int) (WebSearchResult, error)
}

var (
	mockApplicants = []string{
		"Huaxing Technology Co.", "Nexus Semiconductor", "Orion Dynamics",
		"Shenzhen Photon Labs", "Vertex Materials", "Callisto Robotics",
		"Baltic Instruments", "Quanta Biomed", "Slate Energy Systems",
		"Kestrel Automation",
	}
	mockCountries  = []string{"CN", "US", "JP", "KR", "DE", "EP"}
	mockIPCPrefix  = []string{"G06F", "G06N", "H04L", "H01M", "G06Q", "H04W", "G01N", "B60L"}
	mockDocDomains = []string{"journal.example.org", "proceedings.example.net", "technews.example.com"}
)

// MockPatentSource generates deterministic records so the service runs
// end-to-end without external credentials. Seeded by the keyword set: the
// same query always yields the same corpus.
type MockPatentSource struct {
	Latency time.Duration
}

func (m *MockPatentSource) Fetch(ctx context.Context, keywords []string, limit int) (FetchResult, error) {
	if err := sleepCtx(ctx, m.Latency); err != nil {
		return FetchResult{}, err
	}
	if limit <= 0 {
		limit = 100
	}
	rng := rand.New(rand.NewSource(seedFor(keywords)))
	topic := "technology"
	if len(keywords) > 0 {
		topic = keywords[0]
	}
	total := 80 + rng.Intn(120)
	n := total
	if n > limit {
		n = limit
	}
	records := make([]PatentRecord, 0, n)
	for i := 0; i < n; i++ {
		year := 2015 + rng.Intn(10)
		ipc := mockIPCPrefix[rng.Intn(len(mockIPCPrefix))]
		records = append(records, PatentRecord{
			PatentID:        fmt.Sprintf("%s%d%06d", mockCountries[rng.Intn(len(mockCountries))], year, rng.Intn(1000000)),
			Title:           fmt.Sprintf("Method and apparatus for %s (%d)", topic, i+1),
			Abstract:        fmt.Sprintf("A system relating to %s with improved efficiency.", strings.Join(keywords, ", ")),
			Applicants:      []string{mockApplicants[rng.Intn(len(mockApplicants))]},
			Inventors:       []string{fmt.Sprintf("Inventor %c. %c.", 'A'+rng.Intn(26), 'A'+rng.Intn(26))},
			ApplicationDate: fmt.Sprintf("%d-%02d-%02d", year, 1+rng.Intn(12), 1+rng.Intn(28)),
			Country:         mockCountries[rng.Intn(len(mockCountries))],
			IPCClasses:      []string{fmt.Sprintf("%s %d/%02d", ipc, 1+rng.Intn(30), rng.Intn(100))},
			Source:          "mock_patent_source",
		})
	}
	return FetchResult{Records: records, Total: total, Source: "mock_patent_source"}, nil
}

// MockWebSource generates deterministic enrichment documents.
type MockWebSource struct {
	Latency time.Duration
}

func (m *MockWebSource) Search(ctx context.Context, keywords []string, limit int) (WebSearchResult, error) {
	if err := sleepCtx(ctx, m.Latency); err != nil {
		return WebSearchResult{}, err
	}
	if limit <= 0 {
		limit = 30
	}
	rng := rand.New(rand.NewSource(seedFor(keywords) ^ 0x5eed))
	topic := "technology"
	if len(keywords) > 0 {
		topic = keywords[0]
	}
	kinds := []string{"academic", "web", "news"}
	total := 20 + rng.Intn(40)
	n := total
	if n > limit {
		n = limit
	}
	docs := make([]WebDocument, 0, n)
	for i := 0; i < n; i++ {
		kind := kinds[rng.Intn(len(kinds))]
		docs = append(docs, WebDocument{
			Title:   fmt.Sprintf("%s developments, part %d", topic, i+1),
			URL:     fmt.Sprintf("https://%s/%s/%d", mockDocDomains[rng.Intn(len(mockDocDomains))], strings.ReplaceAll(topic, " ", "-"), i+1),
			Snippet: fmt.Sprintf("Recent progress in %s and related fields.", topic),
			Kind:    kind,
		})
	}
	return WebSearchResult{Documents: docs, Total: total, Source: "mock_web_source"}, nil
}

func seedFor(keywords []string) int64 {
	h := fnv.New64a()
	for _, kw := range keywords {
		_, _ = h.Write([]byte(strings.ToLower(strings.TrimSpace(kw))))
		_, _ = h.Write([]byte{0x1f})
	}
	return int64(h.Sum64())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
