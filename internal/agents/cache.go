package agents

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultCacheSize = 100
	defaultCacheTTL  = time.Hour
)

// Cache is the per-agent response cache: bounded LRU with TTL eviction.
// Process consults it first; a hit skips all downstream work.
type Cache struct {
	lru *expirable.LRU[string, Response]
}

func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{lru: expirable.NewLRU[string, Response](size, nil, ttl)}
}

func (c *Cache) Get(key string) (Response, bool) {
	return c.lru.Get(key)
}

func (c *Cache) Set(key string, resp Response) {
	c.lru.Add(key, resp)
}

func (c *Cache) Len() int { return c.lru.Len() }

// CacheKey builds a stable key from the request fields that affect the
// agent's output.
func CacheKey(agentType string, req Request) string {
	kws := append([]string{}, req.Keywords()...)
	sort.Strings(kws)
	parts := []string{agentType, strings.Join(kws, ","), strings.Join(req.Analysis.Countries, ",")}
	if req.Analysis.DateRange != nil {
		parts = append(parts, req.Analysis.DateRange.Start, req.Analysis.DateRange.End)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:16])
}

func splitKeywords(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n' || r == ';' || r == '、'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
