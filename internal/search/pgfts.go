package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; without Postgres the API is down anyway.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery over files.fts, ranked by ts_rank, with a
// ts_headline snippet from the flattened checklist text.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	tsQuery := "plainto_tsquery('simple', $1)"
	args := []any{q.Text}
	where := "f.fts @@ " + tsQuery
	if !q.AllOwners {
		where += " AND f.owner_id = $2"
		args = append(args, q.OwnerID)
	}

	var total int
	countSQL := "SELECT count(*) FROM files f WHERE " + where
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`SELECT f.id::text, f.code, f.name,
			ts_headline('simple', coalesce(f.search_text, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet
		FROM files f
		WHERE %s
		ORDER BY ts_rank(f.fts, %s) DESC, f.updated_at DESC
		LIMIT %d OFFSET %d`,
		tsQuery, where, tsQuery, pageLimit(q.Limit), max(q.Offset, 0))

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Code, &r.Name, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every file for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]FileRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id::text, code, name, owner_id::text, coalesce(search_text, '')
		FROM files
	`)
	if err != nil {
		return nil, fmt.Errorf("load files: %w", err)
	}
	defer rows.Close()

	records := make([]FileRecord, 0)
	for rows.Next() {
		var r FileRecord
		if err := rows.Scan(&r.ID, &r.Code, &r.Name, &r.OwnerID, &r.Text); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return records, nil
}
