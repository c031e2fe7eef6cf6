package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a
// fallback. Only decks live in Postgres, so card hits are unavailable
// while Meilisearch is down.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search ranks decks by name with plainto_tsquery and ts_rank.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	if q.FilterType == ResultCard {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := "to_tsvector('english', d.name) @@ plainto_tsquery('english', $1)"
	args := []any{q.Text}
	if q.FilterOwnerID != "" {
		where += " AND d.owner_id = $2"
		args = append(args, q.FilterOwnerID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	countSQL := fmt.Sprintf(`SELECT count(*) FROM decks d WHERE %s`, where)
	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`
		SELECT d.id, d.name, d.format, d.owner_id
		FROM decks d
		WHERE %s
		ORDER BY ts_rank(to_tsvector('english', d.name), plainto_tsquery('english', $1)) DESC
		LIMIT %d OFFSET %d`, where, limit, offset)

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		r := Result{Type: ResultDeck}
		if err := rows.Scan(&r.ID, &r.Title, &r.Format, &r.OwnerID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Snippet = r.Format
		results = append(results, r)
	}
	return results, total, rows.Err()
}
