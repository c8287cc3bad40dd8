package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/elliewise/nametrie/internal/core"
)

// DB is the read-only query surface the catalog needs; pgxmock satisfies
// it in tests.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Catalog reads name records owned by the surrounding application. The
// trie never writes to it.
type Catalog struct {
	db DB
}

func New(db DB) *Catalog {
	return &Catalog{db: db}
}

// AllNames snapshots the complete record set; this is the rebuild input.
func (c *Catalog) AllNames(ctx context.Context) ([]core.NameRecord, error) {
	rows, err := c.db.Query(ctx,
		`SELECT id, name, gender, origin_country, popularity_score
		 FROM names
		 ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying name records: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// GetByIDs fetches the records backing complete-name nodes, keyed by id,
// for responses that embed full name payloads.
func (c *Catalog) GetByIDs(ctx context.Context, ids []int64) (map[int64]core.NameRecord, error) {
	if len(ids) == 0 {
		return map[int64]core.NameRecord{}, nil
	}

	rows, err := c.db.Query(ctx,
		`SELECT id, name, gender, origin_country, popularity_score
		 FROM names
		 WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("querying name records by id: %w", err)
	}
	defer rows.Close()

	records, err := collectRecords(rows)
	if err != nil {
		return nil, err
	}

	out := make(map[int64]core.NameRecord, len(records))
	for _, rec := range records {
		out[rec.ID] = rec
	}
	return out, nil
}

func collectRecords(rows pgx.Rows) ([]core.NameRecord, error) {
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
