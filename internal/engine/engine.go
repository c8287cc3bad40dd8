package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/redis/go-redis/v9"

	"github.com/elliewise/nametrie/internal/core"
)

const (
	// MaxTreeDepth is the hard cap on requested depth; requests beyond it
	// are rejected, never clamped.
	MaxTreeDepth     = 10
	DefaultTreeDepth = 3

	DefaultNamesLimit = 100
	MaxNamesLimit     = 1000

	DefaultSearchLimit = 20
	MaxSearchLimit     = 100

	// searchScanCap bounds the candidate set fetched from the store before
	// ranking.
	searchScanCap = 500

	HighlightPrefixMatch = "prefix_match"
	HighlightNameSelect  = "name_selected"
)

// Store is the node access the engine needs; the Postgres implementation
// lives in internal/store.
type Store interface {
	GetByPrefix(ctx context.Context, prefix string) (*core.TrieNode, error)
	GetSubtree(ctx context.Context, prefix string, maxLen int) ([]core.TrieNode, error)
	SearchNodes(ctx context.Context, query string, limit int) ([]core.TrieNode, error)
	NamesUnder(ctx context.Context, prefix string, limit, offset int) ([]core.NameRecord, error)
	CountNamesUnder(ctx context.Context, prefix string) (int, error)
}

type Catalog interface {
	GetByIDs(ctx context.Context, ids []int64) (map[int64]core.NameRecord, error)
}

// Engine answers all read queries. It is stateless: the same call against
// an unchanged store always produces the identical response, which is what
// makes the redis response cache safe.
type Engine struct {
	store   Store
	catalog Catalog
	rdb     *redis.Client
}

// New builds an engine. rdb may be nil; caching and search telemetry are
// then skipped.
func New(store Store, catalog Catalog, rdb *redis.Client) *Engine {
	return &Engine{store: store, catalog: catalog, rdb: rdb}
}

// Filters are independent, AND-combined predicates. Each one is evaluated
// against a node's cumulative subtree aggregates, so a node passes when it
// or any descendant satisfies the predicate.
type Filters struct {
	Gender        string   `json:"gender,omitempty"`
	OriginCountry string   `json:"origin_country,omitempty"`
	MinPopularity *float64 `json:"min_popularity,omitempty"`
	MaxPopularity *float64 `json:"max_popularity,omitempty"`
}

// Highlight marks requested nodes in the response without affecting
// filtering.
type Highlight struct {
	Prefixes []string `json:"prefixes,omitempty"`
	NameIDs  []int64  `json:"name_ids,omitempty"`
}

type TreeQuery struct {
	Prefix       string
	MaxDepth     int
	Filters      Filters
	Highlight    Highlight
	IncludeNames bool
}

// TreeNode is a response node: the stored node plus assembled children and
// an optional embedded name record.
type TreeNode struct {
	core.TrieNode
	Name     *core.NameRecord `json:"name,omitempty"`
	Children []*TreeNode      `json:"children,omitempty"`
}

type TreeResponse struct {
	Prefix     string      `json:"prefix"`
	MaxDepth   int         `json:"max_depth"`
	TotalNodes int         `json:"total_nodes"`
	TotalNames int         `json:"total_names"`
	Filters    Filters     `json:"filters_applied"`
	Nodes      []*TreeNode `json:"nodes"`
}

// GetTree assembles the filtered, highlighted hierarchy below a starting
// prefix. An empty prefix starts from a virtual root over all length-1
// prefixes; a prefix no name ever had yields an empty response, not an
// error. MaxDepth is a hard bound on levels below the starting prefix.
func (e *Engine) GetTree(ctx context.Context, q TreeQuery) (*TreeResponse, error) {
	if err := validateTreeQuery(q); err != nil {
		return nil, err
	}

	if resp, ok := e.cachedTree(ctx, q); ok {
		return resp, nil
	}

	prefixLen := utf8.RuneCountInString(q.Prefix)
	nodes, err := e.store.GetSubtree(ctx, q.Prefix, prefixLen+q.MaxDepth)
	if err != nil {
		return nil, fmt.Errorf("loading subtree of %q: %w", q.Prefix, err)
	}

	resp := &TreeResponse{
		Prefix:   q.Prefix,
		MaxDepth: q.MaxDepth,
		Filters:  q.Filters,
		Nodes:    []*TreeNode{},
	}

	var root *core.TrieNode
	byParent := make(map[int64][]*core.TrieNode)
	for i := range nodes {
		n := &nodes[i]
		if n.Prefix == q.Prefix {
			root = n
			continue
		}
		if n.ParentID != nil {
			byParent[*n.ParentID] = append(byParent[*n.ParentID], n)
		}
	}

	if q.Prefix == "" {
		// Virtual root: its children are all length-1 prefixes.
		var tops []*core.TrieNode
		for i := range nodes {
			if nodes[i].PrefixLength == 1 {
				tops = append(tops, &nodes[i])
			}
		}
		sortSiblings(tops)
		for _, top := range tops {
			if assembled := assemble(top, byParent, &q, q.MaxDepth-1); assembled != nil {
				resp.Nodes = append(resp.Nodes, assembled)
			}
		}
	} else {
		if root == nil {
			return resp, nil
		}
		if assembled := assemble(root, byParent, &q, q.MaxDepth); assembled != nil {
			resp.Nodes = append(resp.Nodes, assembled)
		}
	}

	if q.IncludeNames {
		if err := e.attachNames(ctx, resp.Nodes); err != nil {
			return nil, err
		}
	}

	for _, n := range resp.Nodes {
		countTree(n, &resp.TotalNodes, &resp.TotalNames)
	}

	e.storeTree(ctx, q, resp)
	return resp, nil
}

// assemble builds the subtree rooted at n, pruning nodes that fail the
// filters. Aggregates are cumulative and monotone down the tree, so a node
// failing a filter implies its whole subtree fails too and nil is
// returned. remaining counts the levels of children still allowed below n.
func assemble(n *core.TrieNode, byParent map[int64][]*core.TrieNode, q *TreeQuery, remaining int) *TreeNode {
	if !passesFilters(n, q.Filters) {
		return nil
	}

	out := &TreeNode{TrieNode: *n}
	applyHighlight(out, q.Highlight)

	if remaining > 0 {
		children := byParent[n.ID]
		sortSiblings(children)
		for _, child := range children {
			if assembled := assemble(child, byParent, q, remaining-1); assembled != nil {
				out.Children = append(out.Children, assembled)
			}
		}
	}

	return out
}

func passesFilters(n *core.TrieNode, f Filters) bool {
	if f.Gender != "" && n.GenderCounts.Count(core.Gender(f.Gender)) == 0 {
		return false
	}
	if f.OriginCountry != "" && !slices.Contains(n.OriginCountries, f.OriginCountry) {
		return false
	}
	if f.MinPopularity != nil || f.MaxPopularity != nil {
		if n.PopularityRange.Count == 0 {
			return false
		}
		if f.MinPopularity != nil && n.PopularityRange.Max < *f.MinPopularity {
			return false
		}
		if f.MaxPopularity != nil && n.PopularityRange.Min > *f.MaxPopularity {
			return false
		}
	}
	return true
}

func applyHighlight(n *TreeNode, h Highlight) {
	if slices.Contains(h.Prefixes, n.Prefix) {
		n.IsHighlighted = true
		n.HighlightReason = HighlightPrefixMatch
		return
	}
	if n.NameID != nil && slices.Contains(h.NameIDs, *n.NameID) {
		n.IsHighlighted = true
		n.HighlightReason = HighlightNameSelect
	}
}

// sortSiblings orders branches most-populous first, alphabetical on ties.
func sortSiblings(nodes []*core.TrieNode) {
	slices.SortFunc(nodes, func(a, b *core.TrieNode) int {
		if a.TotalDescendants != b.TotalDescendants {
			if a.TotalDescendants > b.TotalDescendants {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Prefix, b.Prefix)
	})
}

func countTree(n *TreeNode, nodes, names *int) {
	*nodes++
	if n.IsCompleteName {
		*names++
	}
	for _, child := range n.Children {
		countTree(child, nodes, names)
	}
}

func (e *Engine) attachNames(ctx context.Context, roots []*TreeNode) error {
	if e.catalog == nil {
		return nil
	}

	var ids []int64
	var walk func(*TreeNode)
	walk = func(n *TreeNode) {
		if n.IsCompleteName && n.NameID != nil {
			ids = append(ids, *n.NameID)
		}
		for _, child := range n.Children {
			walk(child)
		}
	}
	for _, root := range roots {
		walk(root)
	}

	records, err := e.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("loading name records: %w", err)
	}

	var attach func(*TreeNode)
	attach = func(n *TreeNode) {
		if n.NameID != nil {
			if rec, ok := records[*n.NameID]; ok {
				r := rec
				n.Name = &r
			}
		}
		for _, child := range n.Children {
			attach(child)
		}
	}
	for _, root := range roots {
		attach(root)
	}
	return nil
}

func validateTreeQuery(q TreeQuery) error {
	if q.MaxDepth < 1 || q.MaxDepth > MaxTreeDepth {
		return core.NewValidationError("max_depth", "must be between 1 and %d, got %d", MaxTreeDepth, q.MaxDepth)
	}
	if q.Filters.Gender != "" {
		if _, err := core.ParseGender(q.Filters.Gender); err != nil {
			return err
		}
	}
	if q.Filters.MinPopularity != nil && q.Filters.MaxPopularity != nil &&
		*q.Filters.MinPopularity > *q.Filters.MaxPopularity {
		return core.NewValidationError("min_popularity", "must not exceed max_popularity")
	}
	return nil
}

// PagedNames carries one page of complete names under a prefix plus the
// prefix node's subtree statistics.
type PagedNames struct {
	Prefix string            `json:"prefix"`
	Total  int               `json:"total_count"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
	Names  []core.NameRecord `json:"names"`

	GenderDistribution core.GenderCounts    `json:"gender_distribution"`
	TopOrigins         []string             `json:"top_origins"`
	PopularityStats    core.PopularityRange `json:"popularity_stats"`
}

// NamesUnderPrefix pages through complete names whose text starts with
// prefix, ordered by popularity descending then alphabetically. An unknown
// prefix yields an empty page, mirroring GetTree.
func (e *Engine) NamesUnderPrefix(ctx context.Context, prefix string, limit, offset int) (*PagedNames, error) {
	if limit < 1 || limit > MaxNamesLimit {
		return nil, core.NewValidationError("limit", "must be between 1 and %d, got %d", MaxNamesLimit, limit)
	}
	if offset < 0 {
		return nil, core.NewValidationError("offset", "must not be negative, got %d", offset)
	}

	page := &PagedNames{Prefix: prefix, Limit: limit, Offset: offset, Names: []core.NameRecord{}}

	node, err := e.store.GetByPrefix(ctx, prefix)
	if errors.Is(err, core.ErrNotFound) {
		return page, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading prefix %q: %w", prefix, err)
	}

	names, err := e.store.NamesUnder(ctx, prefix, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("loading names under %q: %w", prefix, err)
	}
	total, err := e.store.CountNamesUnder(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("counting names under %q: %w", prefix, err)
	}

	if names != nil {
		page.Names = names
	}
	page.Total = total
	page.GenderDistribution = node.GenderCounts
	page.PopularityStats = node.PopularityRange
	if len(node.OriginCountries) > 5 {
		page.TopOrigins = node.OriginCountries[:5]
	} else {
		page.TopOrigins = node.OriginCountries
	}

	return page, nil
}
