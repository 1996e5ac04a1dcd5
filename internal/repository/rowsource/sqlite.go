package rowsource

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// SQLite reads records from a SQLite table holding one JSON document
// per row. The snapshot is taken at open time; ordinals follow rowid
// order so pagination stays deterministic.
type SQLite struct {
	rows []map[string]any
}

// OpenSQLite loads all records from the given table's column.
func OpenSQLite(dsn, table, column string) (*SQLite, error) {
	if table == "" {
		table = "records"
	}
	if column == "" {
		column = "record"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	defer db.Close()

	query := fmt.Sprintf("SELECT %q FROM %q ORDER BY rowid", column, table)
	rs, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query %s.%s: %w", table, column, err)
	}
	defer rs.Close()

	var rows []map[string]any
	for rs.Next() {
		var raw []byte
		if err := rs.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan row %d: %w", len(rows), err)
		}
		var rec map[string]any
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode row %d: %w", len(rows), err)
		}
		rows = append(rows, rec)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return &SQLite{rows: rows}, nil
}

// NumRows returns the record count.
func (s *SQLite) NumRows() int { return len(s.rows) }

// Row returns the record at ordinal i.
func (s *SQLite) Row(_ context.Context, i int) (map[string]any, error) {
	if i < 0 || i >= len(s.rows) {
		return nil, errOutOfRange(i, len(s.rows))
	}
	return s.rows[i], nil
}
