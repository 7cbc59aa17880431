package agents

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/praxisworks/patent-agents/internal/registry"
)

const defaultMaxDocuments = 50

// Searcher is the search-enhancement specialist: it enriches a patent query
// with academic, web, and news text from a WebSource.
type Searcher struct {
	base
	source WebSource
}

func NewSearcher(id string, source WebSource, cache *Cache, logger *log.Logger) *Searcher {
	return &Searcher{
		base:   newBase(id, registry.TypePatentSearch, cache, logger),
		source: source,
	}
}

func (s *Searcher) CanHandle(req Request) float64 {
	if len(req.Keywords()) > 0 {
		return 0.8
	}
	return keywordOverlap(req.Content, []string{"search", "检索", "文献", "enhance"})
}

func (s *Searcher) Capabilities() []string {
	return []string{"search_enhancement", "academic_search", "web_intelligence"}
}

func (s *Searcher) EstimateProcessingTime(req Request) time.Duration {
	return 3 * time.Second
}

func (s *Searcher) Process(ctx context.Context, req Request) Response {
	return s.run(ctx, req, s.search)
}

func (s *Searcher) search(ctx context.Context, req Request) (Response, error) {
	keywords := req.Keywords()
	if len(keywords) == 0 {
		return Response{}, errors.New("no keywords to search for")
	}

	found, err := s.source.Search(ctx, keywords, defaultMaxDocuments)
	if err != nil {
		return Response{}, err
	}

	counts := map[string]int{}
	for _, d := range found.Documents {
		counts[d.Kind]++
	}

	quality := searchQuality(found.Documents)
	return Response{
		Status:       StatusSuccess,
		Content:      "search enhancement completed",
		QualityScore: quality,
		Payload: map[string]any{
			"documents":       found.Documents,
			"academic_papers": counts["academic"],
			"web_results":     counts["web"],
			"news_items":      counts["news"],
			"total_documents": len(found.Documents),
			"source":          found.Source,
		},
	}, nil
}

func searchQuality(docs []WebDocument) float64 {
	if len(docs) == 0 {
		return 0
	}
	kinds := map[string]bool{}
	withSnippet := 0
	for _, d := range docs {
		kinds[d.Kind] = true
		if d.Snippet != "" {
			withSnippet++
		}
	}
	coverage := float64(len(kinds)) / 3
	completeness := float64(withSnippet) / float64(len(docs))
	sample := float64(len(docs)) / 20
	if sample > 1 {
		sample = 1
	}
	return 0.4*coverage + 0.3*completeness + 0.3*sample
}
