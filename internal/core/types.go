package core

import "time"

// Gender categories carried by the name catalog. The set is closed; filter
// input is validated against it with ParseGender.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderUnisex  Gender = "unisex"
	GenderNeutral Gender = "neutral"
)

func ParseGender(s string) (Gender, error) {
	switch g := Gender(s); g {
	case GenderMale, GenderFemale, GenderUnisex, GenderNeutral:
		return g, nil
	}
	return "", NewValidationError("gender", "unknown gender %q", s)
}

// NameRecord is the read-only input supplied by the name catalog. The trie
// indexes the literal Text string; any normalization happens upstream.
type NameRecord struct {
	ID              int64    `json:"id"`
	Text            string   `json:"name"`
	Gender          Gender   `json:"gender"`
	OriginCountry   *string  `json:"origin_country,omitempty"`
	PopularityScore *float64 `json:"popularity_score,omitempty"`
}

// GenderCounts tallies complete names per gender across a whole subtree,
// not just the node's own name.
type GenderCounts struct {
	Male    int `json:"male"`
	Female  int `json:"female"`
	Unisex  int `json:"unisex"`
	Neutral int `json:"neutral"`
}

func (g *GenderCounts) Add(gender Gender) {
	switch gender {
	case GenderMale:
		g.Male++
	case GenderFemale:
		g.Female++
	case GenderUnisex:
		g.Unisex++
	default:
		g.Neutral++
	}
}

func (g GenderCounts) Count(gender Gender) int {
	switch gender {
	case GenderMale:
		return g.Male
	case GenderFemale:
		return g.Female
	case GenderUnisex:
		return g.Unisex
	case GenderNeutral:
		return g.Neutral
	}
	return 0
}

func (g GenderCounts) Total() int {
	return g.Male + g.Female + g.Unisex + g.Neutral
}

// PopularityRange spans the scores of all scored complete names in a
// subtree. Count is the number of names that carried a score; a range with
// Count == 0 is empty and matches no popularity filter.
type PopularityRange struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	Count int     `json:"count"`
}

// TrieNode is one persisted prefix of the materialized trie. MatchScore,
// IsHighlighted and HighlightReason are query-time annotations; they are
// stored with zero defaults and only ever set on response copies.
type TrieNode struct {
	ID               int64           `json:"id"`
	Prefix           string          `json:"prefix"`
	PrefixLength     int             `json:"prefix_length"`
	IsCompleteName   bool            `json:"is_complete_name"`
	NameID           *int64          `json:"name_id,omitempty"`
	ParentID         *int64          `json:"parent_id,omitempty"`
	ChildCount       int             `json:"child_count"`
	TotalDescendants int             `json:"total_descendants"`
	GenderCounts     GenderCounts    `json:"gender_counts"`
	OriginCountries  []string        `json:"origin_countries,omitempty"`
	PopularityRange  PopularityRange `json:"popularity_range"`

	MatchScore      float64 `json:"match_score"`
	IsHighlighted   bool    `json:"is_highlighted"`
	HighlightReason string  `json:"highlight_reason,omitempty"`
}

// DataWarning records a malformed or colliding record that a rebuild
// absorbed instead of aborting on.
type DataWarning struct {
	RecordID int64  `json:"record_id"`
	Reason   string `json:"reason"`
}

type BuildSummary struct {
	RunID          string        `json:"run_id,omitempty"`
	TotalNodes     int           `json:"total_nodes"`
	TotalNames     int           `json:"total_names"`
	SkippedRecords int           `json:"skipped_records"`
	Warnings       []DataWarning `json:"warnings,omitempty"`
	Duration       time.Duration `json:"-"`
	DurationMs     float64       `json:"duration_ms"`
}
