package agents

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/praxisworks/patent-agents/internal/registry"
)

// base carries the behavior every specialist shares: cache-first processing,
// failure containment, and timing. Concrete agents embed it and supply only
// their stage logic.
type base struct {
	id        string
	agentType registry.AgentType
	cache     *Cache
	logger    *log.Logger
	clock     func() time.Time
}

func newBase(id string, agentType registry.AgentType, cache *Cache, logger *log.Logger) base {
	if cache == nil {
		cache = NewCache(0, 0)
	}
	if logger == nil {
		logger = log.Default()
	}
	return base{id: id, agentType: agentType, cache: cache, logger: logger, clock: time.Now}
}

func (b *base) AgentID() string               { return b.id }
func (b *base) AgentType() registry.AgentType { return b.agentType }

// run wraps a stage function with the uniform Process contract: cache
// lookup, panic recovery, error-to-response conversion, and timing.
func (b *base) run(ctx context.Context, req Request, fn func(ctx context.Context, req Request) (Response, error)) (resp Response) {
	start := b.clock()
	key := CacheKey(string(b.agentType), req)
	if cached, ok := b.cache.Get(key); ok {
		cached.FromCache = true
		cached.ProcessingTime = b.clock().Sub(start)
		return cached
	}

	defer func() {
		if r := recover(); r != nil {
			b.logger.Printf("%s panic recovered: %v", b.id, r)
			resp = b.failed(fmt.Sprintf("internal error: %v", r), b.clock().Sub(start))
		}
	}()

	out, err := fn(ctx, req)
	out.AgentID = b.id
	out.AgentType = b.agentType
	out.ProcessingTime = b.clock().Sub(start)
	if err != nil {
		b.logger.Printf("%s process failed: %v", b.id, err)
		return b.failed(err.Error(), out.ProcessingTime)
	}
	if out.Status == "" {
		out.Status = StatusSuccess
	}
	if out.Status == StatusSuccess {
		b.cache.Set(key, out)
	}
	return out
}

func (b *base) failed(msg string, elapsed time.Duration) Response {
	return Response{
		AgentID:        b.id,
		AgentType:      b.agentType,
		Status:         StatusFailed,
		Error:          msg,
		ProcessingTime: elapsed,
	}
}

// keywordOverlap is the shared CanHandle heuristic: fraction of an agent's
// trigger words present in the request content.
func keywordOverlap(content string, triggers []string) float64 {
	if len(triggers) == 0 {
		return 0
	}
	hits := 0
	for _, t := range triggers {
		if containsFold(content, t) {
			hits++
		}
	}
	score := float64(hits) / float64(len(triggers)) * 2
	if hits > 0 && score < 0.3 {
		score = 0.3
	}
	if score > 1 {
		score = 1
	}
	return score
}

func containsFold(haystack, needle string) bool {
	return needle != "" && strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
