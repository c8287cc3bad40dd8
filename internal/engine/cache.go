package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/elliewise/nametrie/internal/trie"
)

const treeCacheTTL = 5 * time.Minute

// The tree cache is read-through and best-effort: every key embeds the
// trie generation counter, which the rebuilder bumps, so stale entries are
// simply never read again and age out via TTL. Redis being down only costs
// the cache, never correctness.

func (e *Engine) cachedTree(ctx context.Context, q TreeQuery) (*TreeResponse, bool) {
	if e.rdb == nil {
		return nil, false
	}

	payload, err := e.rdb.Get(ctx, e.treeCacheKey(ctx, q)).Bytes()
	if err != nil {
		return nil, false
	}

	var resp TreeResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, false
	}
	return &resp, true
}

func (e *Engine) storeTree(ctx context.Context, q TreeQuery, resp *TreeResponse) {
	if e.rdb == nil {
		return
	}

	payload, err := json.Marshal(resp)
	if err != nil {
		return
	}
	_ = e.rdb.Set(ctx, e.treeCacheKey(ctx, q), payload, treeCacheTTL).Err()
}

func (e *Engine) treeCacheKey(ctx context.Context, q TreeQuery) string {
	generation, err := e.rdb.Get(ctx, trie.CacheGenerationKey).Result()
	if err != nil {
		generation = "0"
	}

	prefixes := slices.Clone(q.Highlight.Prefixes)
	slices.Sort(prefixes)
	ids := slices.Clone(q.Highlight.NameIDs)
	slices.Sort(ids)
	idStrs := make([]string, len(ids))
	for i, id := range ids {
		idStrs[i] = strconv.FormatInt(id, 10)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "names:tree:%s:%s|%d|%s|%s", generation, q.Prefix, q.MaxDepth,
		q.Filters.Gender, q.Filters.OriginCountry)
	if q.Filters.MinPopularity != nil {
		fmt.Fprintf(&b, "|min=%g", *q.Filters.MinPopularity)
	}
	if q.Filters.MaxPopularity != nil {
		fmt.Fprintf(&b, "|max=%g", *q.Filters.MaxPopularity)
	}
	fmt.Fprintf(&b, "|hp=%s|hn=%s|names=%t",
		strings.Join(prefixes, ","), strings.Join(idStrs, ","), q.IncludeNames)
	return b.String()
}
