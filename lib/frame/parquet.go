package frame

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mazen160/go-random"
	"github.com/parquet-go/parquet-go"
)

// ReadFile reads a flat parquet file into a frame. Columns whose values
// are all null are demoted to KindNull so that schema unification can
// prefer a sibling shard's concrete type.
func ReadFile(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	st, err := file.Stat()
	if err != nil {
		return nil, err
	}
	pf, err := parquet.OpenFile(file, st.Size())
	if err != nil {
		return nil, fmt.Errorf("open parquet %s: %w", filepath.Base(path), err)
	}

	schemaFields := pf.Schema().Fields()
	out := New()
	for _, fd := range schemaFields {
		if !fd.Leaf() {
			return nil, fmt.Errorf("%s: nested column %q is not supported", filepath.Base(path), fd.Name())
		}
		out.Fields = append(out.Fields, Field{Name: fd.Name(), Kind: kindOfParquet(fd.Type())})
	}

	for _, rg := range pf.RowGroups() {
		if err := readRowGroup(out, rg); err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
	}

	demoteAllNullColumns(out)
	return out, nil
}

func readRowGroup(out *Frame, rg parquet.RowGroup) error {
	rows := rg.Rows()
	defer rows.Close()

	buf := make([]parquet.Row, 128)
	for {
		n, err := rows.ReadRows(buf)
		for _, row := range buf[:n] {
			decoded := make([]any, len(out.Fields))
			for _, v := range row {
				col := int(v.Column())
				if col < 0 || col >= len(decoded) || v.IsNull() {
					continue
				}
				decoded[col] = decodeValue(v)
			}
			out.Rows = append(out.Rows, decoded)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

func kindOfParquet(t parquet.Type) Kind {
	switch t.Kind() {
	case parquet.Boolean:
		return KindBool
	case parquet.Int32, parquet.Int64:
		return KindInt64
	case parquet.Float, parquet.Double:
		return KindFloat64
	default:
		return KindString
	}
}

func decodeValue(v parquet.Value) any {
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return int64(v.Int32())
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return float64(v.Float())
	case parquet.Double:
		return v.Double()
	default:
		return string(v.ByteArray())
	}
}

func demoteAllNullColumns(f *Frame) {
	for c := range f.Fields {
		allNull := true
		for _, row := range f.Rows {
			if row[c] != nil {
				allNull = false
				break
			}
		}
		if allNull {
			f.Fields[c].Kind = KindNull
		}
	}
}

func parquetNode(k Kind) parquet.Node {
	switch k {
	case KindBool:
		return parquet.Leaf(parquet.BooleanType)
	case KindInt64:
		return parquet.Leaf(parquet.Int64Type)
	case KindFloat64:
		return parquet.Leaf(parquet.DoubleType)
	default:
		// parquet has no untyped-null column, all-null string stands in
		// for KindNull and is demoted again on read
		return parquet.String()
	}
}

// WriteFile writes the frame to path atomically: a uniquely-named temp
// file beside the target is renamed into place, so concurrent readers
// only ever observe a complete file and concurrent writers never share
// a temp target.
func WriteFile(path string, f *Frame) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	suffix, err := random.String(8)
	if err != nil {
		return err
	}
	tmp := fmt.Sprintf("%s.%s.tmp", path, suffix)

	if err := writeParquet(tmp, f); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func writeParquet(path string, f *Frame) error {
	group := parquet.Group{}
	for _, fd := range f.Fields {
		group[fd.Name] = parquet.Optional(parquetNode(fd.Kind))
	}
	schema := parquet.NewSchema("frame", group)

	file, err := os.Create(path)
	if err != nil {
		return err
	}

	w := parquet.NewGenericWriter[map[string]any](file, schema)
	batch := make([]map[string]any, 0, 128)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := w.Write(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	for _, row := range f.Rows {
		record := make(map[string]any, len(f.Fields))
		for c, fd := range f.Fields {
			if row[c] == nil {
				continue
			}
			record[fd.Name] = row[c]
		}
		batch = append(batch, record)
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				file.Close()
				return err
			}
		}
	}
	if err := flush(); err != nil {
		file.Close()
		return err
	}
	if err := w.Close(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
