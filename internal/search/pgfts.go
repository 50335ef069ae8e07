package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down the whole API is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// sources lists the searchable tables. Toolkits and news only surface once
// approved.
var sources = []struct {
	typ      ResultType
	table    string
	category string
	owner    string
	where    string
}{
	{typ: ResultToolkit, table: "toolkits", category: "category", owner: "submitted_by_id", where: "status = 'approved'"},
	{typ: ResultNews, table: "news", category: "category", owner: "submitted_by_id", where: "status = 'approved'"},
	{typ: ResultProject, table: "projects", category: "''::text", owner: "owner_id", where: "TRUE"},
}

func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
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

	tsQuery := "plainto_tsquery('english', $1)"
	var subQueries []string
	for _, src := range sources {
		if q.FilterType != "" && q.FilterType != src.typ {
			continue
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT '%s'::text AS type, t.id, t.title,
				ts_headline('english', coalesce(t.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				%s AS category, %s AS owner_id,
				ts_rank(t.fts, %s) AS rank
			FROM %s t
			WHERE t.fts @@ %s AND %s`,
			src.typ, tsQuery, src.category, src.owner, tsQuery, src.table, tsQuery, src.where))
	}
	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	union := strings.Join(subQueries, " UNION ALL ")
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub", union)
	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, category, owner_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`, union, limit, offset)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, q.Text).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, q.Text)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.Category, &r.OwnerID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every public record for a full reindex.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]Record, error) {
	records := make([]Record, 0)
	for _, src := range sources {
		rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
			SELECT id, title, description, %s, %s FROM %s WHERE %s
		`, src.category, src.owner, src.table, src.where))
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", src.table, err)
		}
		for rows.Next() {
			record := Record{Type: src.typ}
			if err := rows.Scan(&record.ID, &record.Title, &record.Description, &record.Category, &record.OwnerID); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan %s: %w", src.table, err)
			}
			records = append(records, record)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate %s: %w", src.table, err)
		}
	}
	return records, nil
}
