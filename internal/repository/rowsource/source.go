// Package rowsource provides streamable sources of raw nested records.
package rowsource

import (
	"context"
	"fmt"
)

// Source is an iterable source of raw records for one dataset. Row
// ordinals are stable for the lifetime of the source; the engine uses
// them as the deterministic tie-break order.
type Source interface {
	NumRows() int
	Row(ctx context.Context, i int) (map[string]any, error)
}

// Memory is an in-memory source, used for small datasets and tests.
type Memory struct {
	rows []map[string]any
}

// NewMemory creates a source over the given records.
func NewMemory(rows []map[string]any) *Memory {
	return &Memory{rows: rows}
}

// NumRows returns the record count.
func (m *Memory) NumRows() int { return len(m.rows) }

// Row returns the record at ordinal i.
func (m *Memory) Row(_ context.Context, i int) (map[string]any, error) {
	if i < 0 || i >= len(m.rows) {
		return nil, errOutOfRange(i, len(m.rows))
	}
	return m.rows[i], nil
}

func errOutOfRange(i, n int) error {
	return &RowRangeError{Index: i, NumRows: n}
}

// RowRangeError reports a row ordinal outside the source.
type RowRangeError struct {
	Index   int
	NumRows int
}

func (e *RowRangeError) Error() string {
	return fmt.Sprintf("row %d out of range (%d rows)", e.Index, e.NumRows)
}
