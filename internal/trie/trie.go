package trie

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/elliewise/nametrie/internal/core"
)

// Trie is the in-memory staging structure a rebuild folds the full record
// set into before it is flattened and bulk-written. Every prefix of every
// inserted name becomes a node carrying cumulative subtree aggregates.
type Trie struct {
	root *node
	size int
}

type node struct {
	children map[rune]*node
	prefix   string

	complete bool
	nameID   int64

	gender  core.GenderCounts
	origins map[string]struct{}

	popMin   float64
	popMax   float64
	popSum   float64
	popCount int

	// complete-name nodes strictly below this one; filled by descend.
	desc int
}

func New() *Trie {
	return &Trie{root: &node{children: make(map[rune]*node)}}
}

func (t *Trie) Size() int {
	return t.size
}

// Insert threads one record through every prefix of its text, creating
// missing nodes and merging aggregates along the way. The text must be
// non-empty. duplicate reports that an earlier record already claimed the
// exact same text; its node link is kept and the new record only
// contributes to the aggregates.
func (t *Trie) Insert(rec core.NameRecord) (duplicate bool) {
	current := t.root
	for _, char := range rec.Text {
		next, exists := current.children[char]
		if !exists {
			next = &node{
				children: make(map[rune]*node),
				prefix:   current.prefix + string(char),
			}
			current.children[char] = next
			t.size++
		}
		next.merge(rec)
		current = next
	}

	if current.complete {
		return true
	}
	current.complete = true
	current.nameID = rec.ID
	return false
}

func (n *node) merge(rec core.NameRecord) {
	n.gender.Add(rec.Gender)

	if rec.OriginCountry != nil && *rec.OriginCountry != "" {
		if n.origins == nil {
			n.origins = make(map[string]struct{})
		}
		n.origins[*rec.OriginCountry] = struct{}{}
	}

	if rec.PopularityScore != nil {
		score := *rec.PopularityScore
		if n.popCount == 0 || score < n.popMin {
			n.popMin = score
		}
		if n.popCount == 0 || score > n.popMax {
			n.popMax = score
		}
		n.popSum += score
		n.popCount++
	}
}

// Flatten turns the trie into persisted rows. Output is deterministic:
// nodes are sorted by prefix and ids assigned 1..n in that order, so the
// same record set always flattens to the identical node set.
func (t *Trie) Flatten() []core.TrieNode {
	descend(t.root)

	nodes := make([]*node, 0, t.size)
	collect(t.root, &nodes)
	slices.SortFunc(nodes, func(a, b *node) int {
		return strings.Compare(a.prefix, b.prefix)
	})

	ids := make(map[string]int64, len(nodes))
	for i, n := range nodes {
		ids[n.prefix] = int64(i + 1)
	}

	out := make([]core.TrieNode, len(nodes))
	for i, n := range nodes {
		row := core.TrieNode{
			ID:               int64(i + 1),
			Prefix:           n.prefix,
			PrefixLength:     utf8.RuneCountInString(n.prefix),
			IsCompleteName:   n.complete,
			ChildCount:       len(n.children),
			TotalDescendants: n.desc,
			GenderCounts:     n.gender,
		}

		if n.complete {
			id := n.nameID
			row.NameID = &id
		}

		if parent := parentPrefix(n.prefix); parent != "" {
			pid := ids[parent]
			row.ParentID = &pid
		}

		if len(n.origins) > 0 {
			row.OriginCountries = make([]string, 0, len(n.origins))
			for origin := range n.origins {
				row.OriginCountries = append(row.OriginCountries, origin)
			}
			slices.Sort(row.OriginCountries)
		}

		if n.popCount > 0 {
			row.PopularityRange = core.PopularityRange{
				Min:   n.popMin,
				Max:   n.popMax,
				Avg:   n.popSum / float64(n.popCount),
				Count: n.popCount,
			}
		}

		out[i] = row
	}

	return out
}

// descend fills desc for the whole subtree and returns the number of
// complete-name nodes at or below n, n itself included when complete. A
// node's own completeness is excluded from its desc count, so a
// complete-name leaf reports 0.
func descend(n *node) int {
	total := 0
	for _, child := range n.children {
		total += descend(child)
	}
	n.desc = total
	if n.complete {
		total++
	}
	return total
}

func collect(n *node, out *[]*node) {
	for _, child := range n.children {
		*out = append(*out, child)
		collect(child, out)
	}
}

// parentPrefix strips the final rune; the result is the prefix of the
// parent node, or "" for length-1 prefixes.
func parentPrefix(prefix string) string {
	_, size := utf8.DecodeLastRuneInString(prefix)
	return prefix[:len(prefix)-size]
}
