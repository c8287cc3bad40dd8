package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/elliewise/nametrie/internal/core"
)

// DB is the slice of pgxpool.Pool the store needs; pgxmock satisfies it in
// tests.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store provides durable point and range access to trie nodes. All reads
// run against the committed node generation; ReplaceAll is the only write.
type Store struct {
	db DB
}

func New(db DB) *Store {
	return &Store{db: db}
}

const nodeColumns = `id, prefix, prefix_length, is_complete_name, name_id, parent_id,
	child_count, total_descendants, gender_counts, origin_countries, popularity_range`

var copyColumns = []string{
	"id", "prefix", "prefix_length", "is_complete_name", "name_id", "parent_id",
	"child_count", "total_descendants", "gender_counts", "origin_countries", "popularity_range",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*core.TrieNode, error) {
	var n core.TrieNode
	err := row.Scan(
		&n.ID, &n.Prefix, &n.PrefixLength, &n.IsCompleteName, &n.NameID, &n.ParentID,
		&n.ChildCount, &n.TotalDescendants, &n.GenderCounts, &n.OriginCountries, &n.PopularityRange,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// GetByPrefix returns the node for an exact prefix string, or
// core.ErrNotFound when no name ever had that prefix.
func (s *Store) GetByPrefix(ctx context.Context, prefix string) (*core.TrieNode, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+nodeColumns+` FROM name_trie_nodes WHERE prefix = $1`, prefix)

	n, err := scanNode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying prefix %q: %w", prefix, err)
	}
	return n, nil
}

// GetChildren returns the direct children of a prefix, most populous
// branch first. The parent must exist: core.ErrNotFound distinguishes a
// missing prefix from a valid leaf with no children.
func (s *Store) GetChildren(ctx context.Context, prefix string) ([]core.TrieNode, error) {
	parent, err := s.GetByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+nodeColumns+` FROM name_trie_nodes
		 WHERE parent_id = $1
		 ORDER BY total_descendants DESC, prefix ASC`, parent.ID)
	if err != nil {
		return nil, fmt.Errorf("querying children of %q: %w", prefix, err)
	}
	defer rows.Close()

	return collectNodes(rows)
}

// GetSubtree returns every node whose prefix extends the given one
// (improper extension included) up to maxLen characters, ordered by
// prefix. An empty prefix selects the whole trie up to maxLen.
func (s *Store) GetSubtree(ctx context.Context, prefix string, maxLen int) ([]core.TrieNode, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+nodeColumns+` FROM name_trie_nodes
		 WHERE prefix LIKE $1 || '%' AND prefix_length <= $2
		 ORDER BY prefix ASC`, escapeLike(prefix), maxLen)
	if err != nil {
		return nil, fmt.Errorf("querying subtree of %q: %w", prefix, err)
	}
	defer rows.Close()

	return collectNodes(rows)
}

// GetDescendantsMatching streams all nodes under a prefix through an
// optional predicate. A nil predicate keeps everything.
func (s *Store) GetDescendantsMatching(ctx context.Context, prefix string, match func(*core.TrieNode) bool) ([]core.TrieNode, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+nodeColumns+` FROM name_trie_nodes
		 WHERE prefix LIKE $1 || '%'
		 ORDER BY prefix ASC`, escapeLike(prefix))
	if err != nil {
		return nil, fmt.Errorf("querying descendants of %q: %w", prefix, err)
	}
	defer rows.Close()

	var out []core.TrieNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		if match == nil || match(n) {
			out = append(out, *n)
		}
	}
	return out, rows.Err()
}

// SearchNodes returns candidate nodes whose prefix, or linked name text,
// contains the query case-insensitively. Ranking happens in the engine;
// the candidate order here is just a stable scan order.
func (s *Store) SearchNodes(ctx context.Context, query string, limit int) ([]core.TrieNode, error) {
	rows, err := s.db.Query(ctx,
		`SELECT t.id, t.prefix, t.prefix_length, t.is_complete_name, t.name_id, t.parent_id,
		        t.child_count, t.total_descendants, t.gender_counts, t.origin_countries, t.popularity_range
		 FROM name_trie_nodes t
		 LEFT JOIN names n ON n.id = t.name_id
		 WHERE t.prefix ILIKE '%' || $1 || '%' OR n.name ILIKE '%' || $1 || '%'
		 ORDER BY t.prefix_length ASC, t.prefix ASC
		 LIMIT $2`, escapeLike(query), limit)
	if err != nil {
		return nil, fmt.Errorf("searching nodes for %q: %w", query, err)
	}
	defer rows.Close()

	return collectNodes(rows)
}

// NamesUnder pages through the complete names below a prefix, most popular
// first, alphabetical on ties for a deterministic order.
func (s *Store) NamesUnder(ctx context.Context, prefix string, limit, offset int) ([]core.NameRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT n.id, n.name, n.gender, n.origin_country, n.popularity_score
		 FROM names n
		 JOIN name_trie_nodes t ON t.name_id = n.id
		 WHERE t.is_complete_name AND t.prefix LIKE $1 || '%'
		 ORDER BY n.popularity_score DESC NULLS LAST, n.name ASC
		 LIMIT $2 OFFSET $3`, escapeLike(prefix), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying names under %q: %w", prefix, err)
	}
	defer rows.Close()

	var out []core.NameRecord
	for rows.Next() {
		var rec core.NameRecord
		if err := rows.Scan(&rec.ID, &rec.Text, &rec.Gender, &rec.OriginCountry, &rec.PopularityScore); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) CountNamesUnder(ctx context.Context, prefix string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM name_trie_nodes
		 WHERE is_complete_name AND prefix LIKE $1 || '%'`, escapeLike(prefix)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting names under %q: %w", prefix, err)
	}
	return count, nil
}

// ReplaceAll swaps in a freshly built node generation. Truncate and copy
// run in one transaction, so concurrent readers keep seeing the previous
// generation until commit and a failed rebuild leaves it intact.
func (s *Store) ReplaceAll(ctx context.Context, nodes []core.TrieNode) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("starting replace transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `TRUNCATE name_trie_nodes`); err != nil {
		return fmt.Errorf("truncating trie nodes: %w", err)
	}

	copyRows := make([][]any, len(nodes))
	for i, n := range nodes {
		genderCounts, err := json.Marshal(n.GenderCounts)
		if err != nil {
			return fmt.Errorf("encoding gender counts for %q: %w", n.Prefix, err)
		}
		popularity, err := json.Marshal(n.PopularityRange)
		if err != nil {
			return fmt.Errorf("encoding popularity range for %q: %w", n.Prefix, err)
		}

		copyRows[i] = []any{
			n.ID, n.Prefix, n.PrefixLength, n.IsCompleteName, n.NameID, n.ParentID,
			n.ChildCount, n.TotalDescendants, genderCounts, n.OriginCountries, popularity,
		}
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"name_trie_nodes"}, copyColumns, pgx.CopyFromRows(copyRows)); err != nil {
		return fmt.Errorf("bulk-writing %d trie nodes: %w", len(nodes), err)
	}

	return tx.Commit(ctx)
}

func collectNodes(rows pgx.Rows) ([]core.TrieNode, error) {
	var out []core.TrieNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// escapeLike neutralizes LIKE metacharacters so caller input always
// matches literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}
