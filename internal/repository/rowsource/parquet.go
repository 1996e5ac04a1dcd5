package rowsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/loupe-data/loupe/internal/domain/dataset/field"
	"github.com/loupe-data/loupe/internal/domain/dataset/schema"
)

const parquetReadBatch = 256

// Parquet reads a whole parquet file into memory at open time. Dataset
// curation works on bounded snapshots, so the source stays a simple
// ordinal-addressable slice.
type Parquet struct {
	rows   []map[string]any
	schema schema.Schema
}

// OpenParquet opens a parquet file and derives the dataset schema from
// the file's own schema.
func OpenParquet(path string) (*Parquet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat parquet file: %w", err)
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, fmt.Errorf("read parquet file: %w", err)
	}

	sch, err := schemaFromParquet(pf.Schema())
	if err != nil {
		return nil, fmt.Errorf("derive schema from %s: %w", path, err)
	}

	reader := parquet.NewGenericReader[map[string]any](pf)
	defer reader.Close()

	rows, err := readParquetRows(reader)
	if err != nil {
		return nil, fmt.Errorf("read parquet rows from %s: %w", path, err)
	}
	return &Parquet{rows: rows, schema: sch}, nil
}

type parquetRowReader interface {
	Read([]map[string]any) (int, error)
}

// readParquetRows drains the reader batch by batch. Only io.EOF ends
// the read cleanly; any other error fails the open.
func readParquetRows(reader parquetRowReader) ([]map[string]any, error) {
	var rows []map[string]any
	batch := make([]map[string]any, parquetReadBatch)
	for {
		n, err := reader.Read(batch)
		for i := 0; i < n; i++ {
			rec, ok := normalize(batch[i]).(map[string]any)
			if !ok {
				return nil, fmt.Errorf("parquet row %d is not a record", len(rows))
			}
			rows = append(rows, rec)
			batch[i] = nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return rows, nil
			}
			return nil, err
		}
	}
}

// NumRows returns the record count.
func (p *Parquet) NumRows() int { return len(p.rows) }

// Row returns the record at ordinal i.
func (p *Parquet) Row(_ context.Context, i int) (map[string]any, error) {
	if i < 0 || i >= len(p.rows) {
		return nil, errOutOfRange(i, len(p.rows))
	}
	return p.rows[i], nil
}

// Schema returns the schema derived from the parquet file.
func (p *Parquet) Schema() schema.Schema { return p.schema }

func schemaFromParquet(ps *parquet.Schema) (schema.Schema, error) {
	columns := make(map[string]*field.Field, len(ps.Fields()))
	for _, pf := range ps.Fields() {
		f, err := fieldFromParquet(pf)
		if err != nil {
			return schema.Schema{}, fmt.Errorf("column %q: %w", pf.Name(), err)
		}
		columns[pf.Name()] = f
	}
	return schema.New(columns)
}

func fieldFromParquet(node parquet.Node) (*field.Field, error) {
	if node.Repeated() {
		elem, err := fieldFromParquetElem(node)
		if err != nil {
			return nil, err
		}
		return field.RepeatedOf(elem), nil
	}
	return fieldFromParquetElem(node)
}

func fieldFromParquetElem(node parquet.Node) (*field.Field, error) {
	if node.Leaf() {
		return leafFromParquet(node)
	}
	fields := make(map[string]*field.Field, len(node.Fields()))
	for _, child := range node.Fields() {
		f, err := fieldFromParquet(child)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", child.Name(), err)
		}
		fields[child.Name()] = f
	}
	// LIST wrappers collapse to a repeated element.
	if len(fields) == 1 {
		if list, ok := fields["list"]; ok && list.Repeated != nil {
			return list, nil
		}
	}
	return field.Struct(fields), nil
}

func leafFromParquet(node parquet.Node) (*field.Field, error) {
	switch node.Type().Kind() {
	case parquet.Boolean:
		return field.Leaf(field.Bool), nil
	case parquet.Int32, parquet.Int64:
		if lt := node.Type().LogicalType(); lt != nil && lt.Timestamp != nil {
			return field.Leaf(field.Timestamp), nil
		}
		return field.Leaf(field.Int64), nil
	case parquet.Float, parquet.Double:
		return field.Leaf(field.Float64), nil
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return field.Leaf(field.String), nil
	default:
		return nil, fmt.Errorf("unsupported parquet kind %s", node.Type().Kind())
	}
}

// normalize converts reader output into the canonical record shape:
// map[string]any records, []any lists, string text, int64 integers.
func normalize(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(t)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	case time.Time:
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		for _, k := range rv.MapKeys() {
			out[fmt.Sprint(k.Interface())] = normalize(rv.MapIndex(k).Interface())
		}
		return out
	default:
		return v
	}
}
