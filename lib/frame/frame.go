// Package frame implements a small dynamically-typed columnar table used
// on the consolidation boundary, where per-match shards written at
// different times disagree about column types (absent vs all-null vs
// concrete) and have to be reconciled before concatenation.
package frame

import (
	"fmt"
	"strconv"
)

type Kind int

const (
	// KindNull marks a column with no concrete type, every value is null.
	KindNull Kind = iota
	KindBool
	KindInt64
	KindFloat64
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type Field struct {
	Name string
	Kind Kind
}

// Frame is a column-typed table. Row values are nil, bool, int64,
// float64 or string and must agree with the declared field kinds.
type Frame struct {
	Fields []Field
	Rows   [][]any
}

func New(fields ...Field) *Frame {
	return &Frame{Fields: fields}
}

func (f *Frame) NumRows() int {
	return len(f.Rows)
}

// Column returns the index of the named field, or -1.
func (f *Frame) Column(name string) int {
	for i, fd := range f.Fields {
		if fd.Name == name {
			return i
		}
	}
	return -1
}

// Append adds a row, normalizing loosely-typed numeric values. The row
// length must match the field list.
func (f *Frame) Append(row ...any) error {
	if len(row) != len(f.Fields) {
		return fmt.Errorf("row has %d values, frame has %d fields", len(row), len(f.Fields))
	}
	normalized := make([]any, len(row))
	for i, v := range row {
		nv, err := normalizeValue(v)
		if err != nil {
			return fmt.Errorf("column %q: %w", f.Fields[i].Name, err)
		}
		normalized[i] = nv
	}
	f.Rows = append(f.Rows, normalized)
	return nil
}

func normalizeValue(v any) (any, error) {
	switch t := v.(type) {
	case nil, bool, int64, float64, string:
		return v, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case float32:
		return float64(t), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// Strings renders one column as strings, "" for nulls. Numeric values
// format without a decimal point when integral so that int64/float64
// representations of the same identifier compare equal.
func (f *Frame) Strings(name string) []string {
	col := f.Column(name)
	out := make([]string, len(f.Rows))
	if col < 0 {
		return out
	}
	for i, row := range f.Rows {
		out[i] = FormatValue(row[col])
	}
	return out
}

func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case string:
		return t
	}
	return fmt.Sprintf("%v", v)
}

// RenameColumns renames fields present in the mapping, leaving others
// untouched.
func (f *Frame) RenameColumns(mapping map[string]string) {
	for i, fd := range f.Fields {
		if renamed, ok := mapping[fd.Name]; ok {
			f.Fields[i].Name = renamed
		}
	}
}

// SetConstantString overwrites (or appends) a column with a constant
// string value on every row.
func (f *Frame) SetConstantString(name, value string) {
	col := f.Column(name)
	if col < 0 {
		f.Fields = append(f.Fields, Field{Name: name, Kind: KindString})
		for i := range f.Rows {
			f.Rows[i] = append(f.Rows[i], value)
		}
		return
	}
	f.Fields[col].Kind = KindString
	for i := range f.Rows {
		f.Rows[i][col] = value
	}
}

// Unify builds a unified field list across frames: names in first-seen
// order, kinds resolved by promotion. Null loses to any concrete kind,
// int64+float64 promote to float64, any other mismatch falls back to
// string.
func Unify(frames ...*Frame) []Field {
	var fields []Field
	index := map[string]int{}
	for _, f := range frames {
		for _, fd := range f.Fields {
			i, seen := index[fd.Name]
			if !seen {
				index[fd.Name] = len(fields)
				fields = append(fields, fd)
				continue
			}
			fields[i].Kind = unifyKind(fields[i].Kind, fd.Kind)
		}
	}
	return fields
}

func unifyKind(a, b Kind) Kind {
	if a == b {
		return a
	}
	if a == KindNull {
		return b
	}
	if b == KindNull {
		return a
	}
	if (a == KindInt64 && b == KindFloat64) || (a == KindFloat64 && b == KindInt64) {
		return KindFloat64
	}
	// irreconcilable, text representation always works
	return KindString
}

// Reconcile returns a copy of the frame cast to the unified schema:
// columns are converted to the unified kinds, missing columns filled
// with nulls.
func (f *Frame) Reconcile(schema []Field) *Frame {
	out := New(append([]Field(nil), schema...)...)
	srcCols := make([]int, len(schema))
	for i, fd := range schema {
		srcCols[i] = f.Column(fd.Name)
	}

	out.Rows = make([][]any, len(f.Rows))
	for r, row := range f.Rows {
		converted := make([]any, len(schema))
		for c, fd := range schema {
			if srcCols[c] < 0 {
				continue
			}
			converted[c] = convertValue(row[srcCols[c]], fd.Kind)
		}
		out.Rows[r] = converted
	}
	return out
}

func convertValue(v any, to Kind) any {
	if v == nil {
		return nil
	}
	switch to {
	case KindNull:
		return nil
	case KindFloat64:
		if i, ok := v.(int64); ok {
			return float64(i)
		}
		if fl, ok := v.(float64); ok {
			return fl
		}
	case KindString:
		return FormatValue(v)
	case KindBool:
		if b, ok := v.(bool); ok {
			return b
		}
	case KindInt64:
		if i, ok := v.(int64); ok {
			return i
		}
	}
	// not directly representable, fall back to text
	return FormatValue(v)
}

// Concat reconciles every frame against the schema and concatenates
// their rows in argument order.
func Concat(schema []Field, frames ...*Frame) *Frame {
	out := New(append([]Field(nil), schema...)...)
	for _, f := range frames {
		r := f.Reconcile(schema)
		out.Rows = append(out.Rows, r.Rows...)
	}
	return out
}
