package retrieval

import (
	"fmt"
	"strings"

	"agentforge/pkg/utils"
)

// ContextBuilder renders search results into a prompt block bounded by a token budget.
type ContextBuilder struct {
	svc     *Service
	counter *utils.TokenCounter
	limit   int
}

// NewContextBuilder creates a builder over svc. counter may be nil, in which case
// tokens are estimated from character counts.
func NewContextBuilder(svc *Service, counter *utils.TokenCounter, limit int) *ContextBuilder {
	if limit <= 0 {
		limit = 8
	}
	return &ContextBuilder{svc: svc, counter: counter, limit: limit}
}

// BuildContext searches for query and renders whole chunks, best first, until the
// token budget is spent. A chunk that does not fit is truncated only when it is
// the first one; otherwise rendering stops. Returns "" when nothing matches.
func (b *ContextBuilder) BuildContext(query string, tokenBudget int) string {
	if tokenBudget <= 0 {
		return ""
	}
	ix := b.svc.Snapshot()
	results := ix.Search(query, b.limit)
	if len(results) == 0 {
		return ""
	}

	chunks := make(map[string]*Chunk, len(ix.chunks))
	for i := range ix.chunks {
		chunks[ix.chunks[i].ID] = &ix.chunks[i]
	}

	var sb strings.Builder
	used := 0
	for i := range results {
		r := &results[i]
		body := r.Snippet
		if c, ok := chunks[r.ChunkID]; ok {
			body = c.Content
		}
		block := fmt.Sprintf("### %s (lines %d-%d, score %.2f)\n```\n%s\n```\n\n",
			r.FilePath, r.StartLine, r.EndLine, r.Score, body)

		cost := b.counter.CountTokens(block)
		if used+cost > tokenBudget {
			if i == 0 {
				sb.WriteString(b.counter.TruncateToTokenLimit(block, tokenBudget))
			}
			break
		}
		sb.WriteString(block)
		used += cost
	}
	return strings.TrimRight(sb.String(), "\n")
}
