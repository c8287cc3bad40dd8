package trie

import (
	"reflect"
	"strings"
	"testing"

	"github.com/elliewise/nametrie/internal/core"
)

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

func record(id int64, text string, gender core.Gender, origin string, popularity float64) core.NameRecord {
	rec := core.NameRecord{ID: id, Text: text, Gender: gender}
	if origin != "" {
		rec.OriginCountry = strPtr(origin)
	}
	if popularity >= 0 {
		rec.PopularityScore = floatPtr(popularity)
	}
	return rec
}

func findNode(t *testing.T, nodes []core.TrieNode, prefix string) core.TrieNode {
	t.Helper()
	for _, n := range nodes {
		if n.Prefix == prefix {
			return n
		}
	}
	t.Fatalf("no node for prefix %q", prefix)
	return core.TrieNode{}
}

func TestBuild_PrefixChainComplete(t *testing.T) {
	nodes, summary := Build([]core.NameRecord{
		record(1, "mia", core.GenderFemale, "Italy", 90),
	})

	if len(nodes) != 3 {
		t.Fatalf("Expected 3 nodes for a 3-letter name, got %d", len(nodes))
	}

	m := findNode(t, nodes, "m")
	mi := findNode(t, nodes, "mi")
	mia := findNode(t, nodes, "mia")

	if m.ParentID != nil {
		t.Errorf("Length-1 node should have no parent, got %v", *m.ParentID)
	}
	if mi.ParentID == nil || *mi.ParentID != m.ID {
		t.Errorf("Node %q not parented to %q", mi.Prefix, m.Prefix)
	}
	if mia.ParentID == nil || *mia.ParentID != mi.ID {
		t.Errorf("Node %q not parented to %q", mia.Prefix, mi.Prefix)
	}

	if !mia.IsCompleteName || mia.NameID == nil || *mia.NameID != 1 {
		t.Errorf("Full-length node should link the record: %+v", mia)
	}
	if m.IsCompleteName || mi.IsCompleteName {
		t.Error("Intermediate prefixes must not be complete names")
	}

	if summary.TotalNodes != 3 || summary.TotalNames != 1 {
		t.Errorf("Unexpected summary: %+v", summary)
	}
}

func TestBuild_PrefixUniqueness(t *testing.T) {
	nodes, _ := Build([]core.NameRecord{
		record(1, "mia", core.GenderFemale, "", 90),
		record(2, "mike", core.GenderMale, "", 40),
		record(3, "milo", core.GenderMale, "", 55),
	})

	seen := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if seen[n.Prefix] {
			t.Errorf("Duplicate node for prefix %q", n.Prefix)
		}
		seen[n.Prefix] = true
	}
}

func TestBuild_SharedPrefixAggregates(t *testing.T) {
	nodes, summary := Build([]core.NameRecord{
		record(1, "mia", core.GenderFemale, "Italy", 90),
		record(2, "mike", core.GenderMale, "USA", 40),
		record(3, "milo", core.GenderMale, "Germany", 55),
	})

	mi := findNode(t, nodes, "mi")

	if mi.ChildCount != 3 {
		t.Errorf("Expected 3 children under %q (mia, mik, mil), got %d", mi.Prefix, mi.ChildCount)
	}
	if mi.TotalDescendants != 3 {
		t.Errorf("Expected 3 complete names under %q, got %d", mi.Prefix, mi.TotalDescendants)
	}

	want := core.GenderCounts{Female: 1, Male: 2}
	if mi.GenderCounts != want {
		t.Errorf("Gender counts = %+v, want %+v", mi.GenderCounts, want)
	}

	pop := mi.PopularityRange
	if pop.Min != 40 || pop.Max != 90 || pop.Count != 3 {
		t.Errorf("Popularity range = %+v, want min=40 max=90 count=3", pop)
	}
	wantAvg := (90.0 + 40.0 + 55.0) / 3.0
	if pop.Avg != wantAvg {
		t.Errorf("Popularity avg = %v, want %v", pop.Avg, wantAvg)
	}

	wantOrigins := []string{"Germany", "Italy", "USA"}
	if !reflect.DeepEqual(mi.OriginCountries, wantOrigins) {
		t.Errorf("Origins = %v, want %v", mi.OriginCountries, wantOrigins)
	}

	if summary.TotalNodes != len(nodes) || summary.TotalNames != 3 {
		t.Errorf("Unexpected summary: %+v", summary)
	}
}

func TestBuild_DescendantCountExcludesSelf(t *testing.T) {
	nodes, _ := Build([]core.NameRecord{
		record(1, "ann", core.GenderFemale, "", -1),
		record(2, "anna", core.GenderFemale, "", -1),
	})

	ann := findNode(t, nodes, "ann")
	anna := findNode(t, nodes, "anna")
	an := findNode(t, nodes, "an")

	if !ann.IsCompleteName || ann.TotalDescendants != 1 {
		t.Errorf("Complete node %q should count only the name below it, got %d", ann.Prefix, ann.TotalDescendants)
	}
	if anna.TotalDescendants != 0 {
		t.Errorf("Leaf %q should report 0 descendants, got %d", anna.Prefix, anna.TotalDescendants)
	}
	if an.TotalDescendants != 2 {
		t.Errorf("Node %q should count both names, got %d", an.Prefix, an.TotalDescendants)
	}
}

func TestBuild_SkipsMalformedRecords(t *testing.T) {
	nodes, summary := Build([]core.NameRecord{
		record(1, "", core.GenderFemale, "", -1),
		record(2, "   ", core.GenderMale, "", -1),
		record(3, "bo", core.GenderMale, "", -1),
	})

	if summary.SkippedRecords != 2 {
		t.Errorf("Expected 2 skipped records, got %d", summary.SkippedRecords)
	}
	if len(summary.Warnings) != 2 {
		t.Errorf("Expected 2 warnings, got %+v", summary.Warnings)
	}
	if len(nodes) != 2 {
		t.Errorf("Expected nodes only for the valid record, got %d", len(nodes))
	}
}

func TestBuild_EmptyInput(t *testing.T) {
	nodes, summary := Build(nil)
	if len(nodes) != 0 {
		t.Errorf("Expected empty trie, got %d nodes", len(nodes))
	}
	if summary.TotalNodes != 0 || summary.TotalNames != 0 {
		t.Errorf("Unexpected summary for empty input: %+v", summary)
	}
}

func TestBuild_DuplicateNamesCollapse(t *testing.T) {
	nodes, summary := Build([]core.NameRecord{
		record(7, "ann", core.GenderFemale, "UK", 80),
		record(9, "ann", core.GenderMale, "USA", 20),
	})

	ann := findNode(t, nodes, "ann")

	if ann.NameID == nil || *ann.NameID != 7 {
		t.Errorf("First record should keep the node link, got %+v", ann.NameID)
	}
	if ann.GenderCounts.Female != 1 || ann.GenderCounts.Male != 1 {
		t.Errorf("Both duplicates should contribute to aggregates: %+v", ann.GenderCounts)
	}
	if ann.PopularityRange.Min != 20 || ann.PopularityRange.Max != 80 {
		t.Errorf("Popularity should span both records: %+v", ann.PopularityRange)
	}

	if summary.TotalNames != 1 {
		t.Errorf("Duplicates collapse onto one complete node, got %d", summary.TotalNames)
	}
	if len(summary.Warnings) != 1 || !strings.Contains(summary.Warnings[0].Reason, "duplicate") {
		t.Errorf("Expected one duplicate warning, got %+v", summary.Warnings)
	}
}

func TestBuild_Deterministic(t *testing.T) {
	records := []core.NameRecord{
		record(1, "mia", core.GenderFemale, "Italy", 90),
		record(2, "mike", core.GenderMale, "USA", 40),
		record(3, "milo", core.GenderMale, "Germany", 55),
		record(4, "ann", core.GenderFemale, "UK", 70),
	}

	first, _ := Build(records)
	second, _ := Build(records)

	if !reflect.DeepEqual(first, second) {
		t.Error("Rebuilding from the same input must produce identical nodes, ids included")
	}
}

func TestBuild_MultibyteNames(t *testing.T) {
	nodes, _ := Build([]core.NameRecord{
		record(1, "zoë", core.GenderFemale, "", -1),
	})

	if len(nodes) != 3 {
		t.Fatalf("Expected one node per rune, got %d", len(nodes))
	}

	full := findNode(t, nodes, "zoë")
	if full.PrefixLength != 3 {
		t.Errorf("Prefix length must count runes, got %d", full.PrefixLength)
	}
	zo := findNode(t, nodes, "zo")
	if full.ParentID == nil || *full.ParentID != zo.ID {
		t.Errorf("Multibyte node not parented correctly: %+v", full)
	}
}
