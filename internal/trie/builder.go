package trie

import (
	"strconv"
	"strings"
	"time"

	"github.com/elliewise/nametrie/internal/core"
)

// Build folds the complete record set into a fresh node set. It is a pure
// function of its input: the same records always produce the identical
// nodes, ids included. Malformed records are skipped with a warning rather
// than failing the build, and an empty record set yields an empty trie.
func Build(records []core.NameRecord) ([]core.TrieNode, core.BuildSummary) {
	start := time.Now()

	var summary core.BuildSummary
	t := New()

	for _, rec := range records {
		if strings.TrimSpace(rec.Text) == "" {
			summary.SkippedRecords++
			summary.Warnings = append(summary.Warnings, core.DataWarning{
				RecordID: rec.ID,
				Reason:   "empty name text, record skipped",
			})
			continue
		}

		if t.Insert(rec) {
			summary.Warnings = append(summary.Warnings, core.DataWarning{
				RecordID: rec.ID,
				Reason:   "duplicate name text " + strconv.Quote(rec.Text) + ", merged into existing node",
			})
		}
	}

	nodes := t.Flatten()

	summary.TotalNodes = len(nodes)
	for i := range nodes {
		if nodes[i].IsCompleteName {
			summary.TotalNames++
		}
	}
	summary.Duration = time.Since(start)
	summary.DurationMs = float64(summary.Duration.Microseconds()) / 1000.0

	return nodes, summary
}
