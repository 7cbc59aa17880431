package agents

import (
	"context"
	"math"
	"testing"
	"time"
)

type stubWebSource struct {
	result WebSearchResult
	err    error
}

func (s *stubWebSource) Search(ctx context.Context, keywords []string, limit int) (WebSearchResult, error) {
	return s.result, s.err
}

func TestSearchCountsByKind(t *testing.T) {
	src := &stubWebSource{result: WebSearchResult{
		Documents: []WebDocument{
			{Title: "a", URL: "https://x/1", Snippet: "s", Kind: "academic"},
			{Title: "b", URL: "https://x/2", Snippet: "s", Kind: "academic"},
			{Title: "c", URL: "https://x/3", Snippet: "s", Kind: "web"},
			{Title: "d", URL: "https://x/4", Snippet: "", Kind: "news"},
		},
		Total:  4,
		Source: "test",
	}}
	s := NewSearcher("searcher-1", src, NewCache(4, time.Minute), testLogger())
	resp := s.Process(context.Background(), collectRequest("battery"))
	if !resp.Succeeded() {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Payload["academic_papers"] != 2 || resp.Payload["web_results"] != 1 || resp.Payload["news_items"] != 1 {
		t.Fatalf("payload = %v", resp.Payload)
	}
	// full kind coverage, 3 of 4 snippets, 4 of 20 sample
	want := 0.4*1 + 0.3*0.75 + 0.3*0.2
	if math.Abs(resp.QualityScore-want) > 1e-9 {
		t.Fatalf("quality = %v, want %v", resp.QualityScore, want)
	}
}

func TestSearchRequiresKeywords(t *testing.T) {
	s := NewSearcher("searcher-1", &stubWebSource{}, NewCache(4, time.Minute), testLogger())
	resp := s.Process(context.Background(), Request{})
	if resp.Status != StatusFailed {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestSearchQualityEmpty(t *testing.T) {
	if got := searchQuality(nil); got != 0 {
		t.Fatalf("quality = %v, want 0", got)
	}
}

func TestMockWebSourceDeterministic(t *testing.T) {
	src := &MockWebSource{}
	first, err := src.Search(context.Background(), []string{"battery"}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	second, _ := src.Search(context.Background(), []string{"battery"}, 10)
	if first.Total != second.Total || len(first.Documents) != len(second.Documents) {
		t.Fatal("runs differ")
	}
	if len(first.Documents) > 0 && first.Documents[0].URL != second.Documents[0].URL {
		t.Fatal("same keywords should yield the same documents")
	}
	if len(first.Documents) > 10 {
		t.Fatalf("limit not honored: %d documents", len(first.Documents))
	}
}
