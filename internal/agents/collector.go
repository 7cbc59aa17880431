package agents

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/praxisworks/patent-agents/internal/registry"
)

const defaultMaxPatents = 200

// Collector is the data-collection specialist: it pulls normalized patent
// records from a PatentSource, dedupes by patent id, and sorts newest first.
type Collector struct {
	base
	source PatentSource
}

func NewCollector(id string, source PatentSource, cache *Cache, logger *log.Logger) *Collector {
	return &Collector{
		base:   newBase(id, registry.TypePatentDataCollection, cache, logger),
		source: source,
	}
}

func (c *Collector) CanHandle(req Request) float64 {
	if len(req.Keywords()) > 0 {
		return 0.9
	}
	return keywordOverlap(req.Content, []string{"patent", "专利", "collect", "数据收集"})
}

func (c *Collector) Capabilities() []string {
	return []string{"patent_data_collection", "data_normalization", "deduplication"}
}

func (c *Collector) EstimateProcessingTime(req Request) time.Duration {
	limit := req.Analysis.MaxPatents
	if limit <= 0 {
		limit = defaultMaxPatents
	}
	return 2*time.Second + time.Duration(limit/100)*time.Second
}

func (c *Collector) Process(ctx context.Context, req Request) Response {
	return c.run(ctx, req, c.collect)
}

func (c *Collector) collect(ctx context.Context, req Request) (Response, error) {
	keywords := req.Keywords()
	if len(keywords) == 0 {
		return Response{}, errors.New("no keywords to collect patents for")
	}
	limit := req.Analysis.MaxPatents
	if limit <= 0 {
		limit = defaultMaxPatents
	}

	fetched, err := c.source.Fetch(ctx, keywords, limit)
	if err != nil {
		return Response{}, err
	}

	records := dedupeRecords(fetched.Records)
	records = filterByCountry(records, req.Analysis.Countries)
	records = filterByDateRange(records, req.Analysis.DateRange)
	sort.Slice(records, func(i, j int) bool {
		if records[i].ApplicationDate != records[j].ApplicationDate {
			return records[i].ApplicationDate > records[j].ApplicationDate
		}
		return records[i].PatentID < records[j].PatentID
	})

	quality := collectionQuality(records, limit)
	return Response{
		Status:       StatusSuccess,
		Content:      "patent data collection completed",
		QualityScore: quality,
		Payload: map[string]any{
			"records":       records,
			"total_patents": len(records),
			"total_hits":    fetched.Total,
			"data_sources":  []string{fetched.Source},
		},
	}, nil
}

func dedupeRecords(in []PatentRecord) []PatentRecord {
	seen := map[string]struct{}{}
	out := make([]PatentRecord, 0, len(in))
	for _, r := range in {
		if r.PatentID == "" {
			continue
		}
		if _, dup := seen[r.PatentID]; dup {
			continue
		}
		seen[r.PatentID] = struct{}{}
		out = append(out, r)
	}
	return out
}

func filterByCountry(in []PatentRecord, countries []string) []PatentRecord {
	if len(countries) == 0 {
		return in
	}
	allowed := map[string]struct{}{}
	for _, c := range countries {
		allowed[c] = struct{}{}
	}
	out := in[:0]
	for _, r := range in {
		if _, ok := allowed[r.Country]; ok {
			out = append(out, r)
		}
	}
	return out
}

func filterByDateRange(in []PatentRecord, dr *DateRange) []PatentRecord {
	if dr == nil || (dr.Start == "" && dr.End == "") {
		return in
	}
	out := in[:0]
	for _, r := range in {
		if dr.Start != "" && r.ApplicationDate < dr.Start {
			continue
		}
		if dr.End != "" && r.ApplicationDate > dr.End {
			continue
		}
		out = append(out, r)
	}
	return out
}

// collectionQuality scores completeness of required fields and sample size.
func collectionQuality(records []PatentRecord, requested int) float64 {
	if len(records) == 0 {
		return 0
	}
	complete := 0
	for _, r := range records {
		if r.Title != "" && len(r.Applicants) > 0 && r.ApplicationDate != "" && len(r.IPCClasses) > 0 {
			complete++
		}
	}
	completeness := float64(complete) / float64(len(records))
	sample := float64(len(records)) / float64(requested)
	if sample > 1 {
		sample = 1
	}
	return 0.7*completeness + 0.3*sample
}
