// Package export produces the published grant document (bandi.json) from
// the analysis database.
package export

import (
	"alsolved/internal/logger"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"

	_ "modernc.org/sqlite"
)

// DefaultLimit is how many of the most recent records are published.
const DefaultLimit = 200

const query = `
SELECT id, url, title, ai_analysis, marketing_text, status, CAST(ingested_at AS TEXT)
FROM bandi
WHERE status IN ('ANALYZED', 'MATCHED', 'analyzed', 'matched')
ORDER BY ingested_at DESC
LIMIT ?`

// Row is one exported record, in the key order of the published document.
type Row struct {
	ID            interface{}     `json:"id"`
	URL           *string         `json:"url"`
	Title         *string         `json:"title"`
	AIAnalysis    json.RawMessage `json:"ai_analysis"`
	MarketingText *string         `json:"marketing_text"`
	Status        *string         `json:"status"`
	IngestedAt    *string         `json:"ingested_at"`
}

// Open opens the database read-only.
func Open(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("export: database %s: %w", path, err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Rows reads the analyzed and matched records, newest first.
func Rows(ctx context.Context, db *sql.DB, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rs, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("export: query: %w", err)
	}
	defer rs.Close()

	out := []Row{}
	var malformed int
	for rs.Next() {
		var (
			r        Row
			id       interface{}
			analysis sql.NullString
		)
		if err := rs.Scan(&id, &r.URL, &r.Title, &analysis, &r.MarketingText, &r.Status, &r.IngestedAt); err != nil {
			return nil, fmt.Errorf("export: scan: %w", err)
		}
		if b, ok := id.([]byte); ok {
			id = string(b)
		}
		r.ID = id

		switch {
		case !analysis.Valid:
		case analysis.String == "":
			r.AIAnalysis = json.RawMessage(`""`)
		case json.Valid([]byte(analysis.String)):
			r.AIAnalysis = json.RawMessage(analysis.String)
		default:
			malformed++
			r.AIAnalysis = json.RawMessage(`{}`)
		}
		out = append(out, r)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("export: rows: %w", err)
	}
	if malformed > 0 {
		logger.Warn("export: malformed ai_analysis replaced with {}", map[string]interface{}{"count": malformed})
	}
	return out, nil
}

// Export writes the document for dbPath to w as an indented JSON array and
// returns the number of records.
func Export(ctx context.Context, dbPath string, w io.Writer, limit int) (int, error) {
	db, err := Open(dbPath)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	rows, err := Rows(ctx, db, limit)
	if err != nil {
		return 0, err
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return 0, fmt.Errorf("export: encode: %w", err)
	}
	logger.Info("export: done", map[string]interface{}{"records": len(rows), "db": dbPath})
	return len(rows), nil
}
