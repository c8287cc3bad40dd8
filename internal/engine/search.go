package engine

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"

	"github.com/elliewise/nametrie/internal/core"
)

// SearchScoresKey accumulates query frequencies in redis; the counts feed
// highlight-target discovery dashboards, not ranking.
const SearchScoresKey = "names:search_scores"

const (
	scoreExact     = 1.0
	scorePrefix    = 0.75
	scoreSubstring = 0.5
)

type SearchResult struct {
	Query             string      `json:"query"`
	TotalResults      int         `json:"total_results"`
	CompleteNames     int         `json:"complete_names"`
	IntermediateNodes int         `json:"intermediate_nodes"`
	Results           []*TreeNode `json:"results"`
}

// Search matches the query as a case-insensitive substring anywhere in a
// prefix or its linked name text; unlike GetTree it is not anchored at the
// start of the string. Results are ordered by match score descending, with
// shorter (more general) prefixes winning ties.
func (e *Engine) Search(ctx context.Context, query string, limit int) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, core.NewValidationError("query", "must not be empty")
	}
	if limit == 0 {
		limit = DefaultSearchLimit
	}
	if limit < 1 || limit > MaxSearchLimit {
		return nil, core.NewValidationError("limit", "must be between 1 and %d, got %d", MaxSearchLimit, limit)
	}

	if e.rdb != nil {
		if err := e.rdb.ZIncrBy(ctx, SearchScoresKey, 1.0, strings.ToLower(query)).Err(); err != nil {
			log.Printf("[Engine] Failed to record search score for %q: %v", query, err)
		}
	}

	candidates, err := e.store.SearchNodes(ctx, query, searchScanCap)
	if err != nil {
		return nil, fmt.Errorf("searching for %q: %w", query, err)
	}

	results := make([]*TreeNode, 0, len(candidates))
	for i := range candidates {
		n := &TreeNode{TrieNode: candidates[i]}
		n.MatchScore = matchScore(n.Prefix, query)
		results = append(results, n)
	}

	slices.SortFunc(results, func(a, b *TreeNode) int {
		if a.MatchScore != b.MatchScore {
			if a.MatchScore > b.MatchScore {
				return -1
			}
			return 1
		}
		if a.PrefixLength != b.PrefixLength {
			return a.PrefixLength - b.PrefixLength
		}
		return strings.Compare(a.Prefix, b.Prefix)
	})

	if len(results) > limit {
		results = results[:limit]
	}

	if err := e.attachNames(ctx, results); err != nil {
		return nil, err
	}

	out := &SearchResult{
		Query:        query,
		TotalResults: len(results),
		Results:      results,
	}
	for _, n := range results {
		if n.IsCompleteName {
			out.CompleteNames++
		} else {
			out.IntermediateNodes++
		}
	}
	return out, nil
}

// matchScore ranks exact matches over prefix matches over bare substring
// hits.
func matchScore(prefix, query string) float64 {
	lp := strings.ToLower(prefix)
	lq := strings.ToLower(query)
	switch {
	case lp == lq:
		return scoreExact
	case strings.HasPrefix(lp, lq):
		return scorePrefix
	default:
		return scoreSubstring
	}
}
