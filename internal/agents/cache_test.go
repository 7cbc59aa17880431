package agents

import (
	"testing"
	"time"
)

func TestCacheKeyIgnoresKeywordOrder(t *testing.T) {
	a := Request{Analysis: PatentAnalysisRequest{KeywordList: []string{"battery", "anode"}}}
	b := Request{Analysis: PatentAnalysisRequest{KeywordList: []string{"anode", "battery"}}}
	if CacheKey("patent_search", a) != CacheKey("patent_search", b) {
		t.Fatal("keyword order must not change the cache key")
	}
}

func TestCacheKeyVariesByInputs(t *testing.T) {
	req := Request{Analysis: PatentAnalysisRequest{KeywordList: []string{"battery"}}}
	base := CacheKey("patent_search", req)

	if CacheKey("patent_analysis", req) == base {
		t.Fatal("agent type must be part of the key")
	}

	withCountry := req
	withCountry.Analysis.Countries = []string{"CN"}
	if CacheKey("patent_search", withCountry) == base {
		t.Fatal("countries must be part of the key")
	}

	withRange := req
	withRange.Analysis.DateRange = &DateRange{Start: "2020-01-01"}
	if CacheKey("patent_search", withRange) == base {
		t.Fatal("date range must be part of the key")
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	c := NewCache(4, 25*time.Millisecond)
	c.Set("k", Response{Content: "hit"})
	if _, ok := c.Get("k"); !ok {
		t.Fatal("fresh entry should be present")
	}
	time.Sleep(60 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatal("entry should have expired")
	}
}

func TestCacheEvictsBeyondCapacity(t *testing.T) {
	c := NewCache(2, time.Minute)
	c.Set("a", Response{})
	c.Set("b", Response{})
	c.Set("c", Response{})
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("oldest entry should have been evicted")
	}
}

func TestSplitKeywords(t *testing.T) {
	got := splitKeywords("battery, anode\n cathode;separator、 electrolyte ,, ")
	want := []string{"battery", "anode", "cathode", "separator", "electrolyte"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestRequestKeywordsPrefersExplicitList(t *testing.T) {
	req := Request{Analysis: PatentAnalysisRequest{
		Keywords:    "from,string",
		KeywordList: []string{"explicit"},
	}}
	kws := req.Keywords()
	if len(kws) != 1 || kws[0] != "explicit" {
		t.Fatalf("Keywords() = %v", kws)
	}
}
