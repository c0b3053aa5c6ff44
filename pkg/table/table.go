// Package table flattens decoded JSON records into an ordered, column-oriented
// table that can be concatenated across pages and written to a SQL store.
//
// Columns keep first-seen order across rows. Within a single JSON object keys
// are taken in sorted order, since decoded objects carry no key order.
package table

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"
)

var (
	// ErrColumnExists is returned when inserting a column name already present.
	ErrColumnExists = errors.New("column already exists")

	// ErrColumnMissing is returned when an operation names an absent column.
	ErrColumnMissing = errors.New("column missing")

	// ErrNotObject is returned when expanding a column whose values are not objects.
	ErrNotObject = errors.New("column value is not an object")
)

// Row maps column names to values. Absent keys read as nil.
type Row map[string]any

// Table is an ordered list of rows sharing an ordered column set.
type Table struct {
	columns []string
	index   map[string]int
	rows    []Row
}

// New creates an empty table with the given columns.
func New(columns ...string) *Table {
	t := &Table{index: make(map[string]int)}
	for _, c := range columns {
		t.addColumn(c)
	}
	return t
}

// FromRecords builds a table with one row per record.
func FromRecords(records []map[string]any) *Table {
	t := New()
	for _, rec := range records {
		t.AppendRow(rec)
	}
	return t
}

// FromObject builds a table from a single object whose object-valued fields
// share a key space, such as a profile carrying a metrics sub-object. It
// produces one row per key of those nested objects, recorded in the index
// column, with scalar fields repeated on every row. An object without nested
// objects yields a single row with an empty index value.
func FromObject(obj map[string]any, index string) *Table {
	var keys []string
	seen := make(map[string]bool)
	for _, field := range sortedKeys(obj) {
		nested, ok := obj[field].(map[string]any)
		if !ok {
			continue
		}
		for _, k := range sortedKeys(nested) {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	if len(keys) == 0 {
		keys = []string{""}
	}

	t := New(index)
	for _, k := range keys {
		row := Row{index: k}
		for field, v := range obj {
			if nested, ok := v.(map[string]any); ok {
				row[field] = nested[k]
				continue
			}
			row[field] = v
		}
		t.AppendRow(row)
	}
	return t
}

// Concat appends the rows of every table in order. Rows are neither
// de-duplicated nor reordered.
func Concat(tables ...*Table) *Table {
	out := New()
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, c := range t.columns {
			out.addColumn(c)
		}
		for _, r := range t.rows {
			out.rows = append(out.rows, cloneRow(r))
		}
	}
	return out
}

func (t *Table) addColumn(name string) {
	if t.index == nil {
		t.index = make(map[string]int)
	}
	if _, ok := t.index[name]; ok {
		return
	}
	t.index[name] = len(t.columns)
	t.columns = append(t.columns, name)
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.columns))
	for i, c := range t.columns {
		t.index[c] = i
	}
}

// AppendRow adds a row, registering any columns not seen before.
func (t *Table) AppendRow(r map[string]any) {
	for _, k := range sortedKeys(r) {
		t.addColumn(k)
	}
	t.rows = append(t.rows, cloneRow(r))
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool {
	return t.Len() == 0
}

// Columns returns a copy of the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Rows returns the rows in order. Callers must not mutate them.
func (t *Table) Rows() []Row {
	return t.rows
}

// HasColumn reports whether name is a column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns every row's value for name.
func (t *Table) Column(name string) ([]any, error) {
	if !t.HasColumn(name) {
		return nil, fmt.Errorf("%w: %s", ErrColumnMissing, name)
	}
	out := make([]any, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[name]
	}
	return out, nil
}

// Value returns the value at row i, column name.
func (t *Table) Value(i int, name string) (any, bool) {
	if i < 0 || i >= len(t.rows) || !t.HasColumn(name) {
		return nil, false
	}
	return t.rows[i][name], true
}

// InsertColumn inserts a column at position pos (clamped to the column range)
// holding one value per row.
func (t *Table) InsertColumn(pos int, name string, values []any) error {
	if t.HasColumn(name) {
		return fmt.Errorf("%w: %s", ErrColumnExists, name)
	}
	if len(values) != len(t.rows) {
		return fmt.Errorf("insert column %s: %d values for %d rows", name, len(values), len(t.rows))
	}

	if pos < 0 {
		pos = 0
	}
	if pos > len(t.columns) {
		pos = len(t.columns)
	}

	t.columns = append(t.columns, "")
	copy(t.columns[pos+1:], t.columns[pos:])
	t.columns[pos] = name
	t.reindex()

	for i, r := range t.rows {
		r[name] = values[i]
	}
	return nil
}

// InsertConstant inserts a column whose every row holds value.
func (t *Table) InsertConstant(pos int, name string, value any) error {
	values := make([]any, len(t.rows))
	for i := range values {
		values[i] = value
	}
	return t.InsertColumn(pos, name, values)
}

// DropColumn removes a column and its values.
func (t *Table) DropColumn(name string) error {
	i, ok := t.index[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrColumnMissing, name)
	}

	t.columns = append(t.columns[:i], t.columns[i+1:]...)
	t.reindex()
	for _, r := range t.rows {
		delete(r, name)
	}
	return nil
}

// ExpandColumn replaces an object-valued column with one column per object
// key, appended after the existing columns. Keys that collide with an
// existing column are prefixed with the expanded column's name.
func (t *Table) ExpandColumn(name string) error {
	if !t.HasColumn(name) {
		return fmt.Errorf("%w: %s", ErrColumnMissing, name)
	}

	var added []string
	names := make(map[string]string)
	for i, r := range t.rows {
		v := r[name]
		if v == nil {
			continue
		}
		obj, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: %s row %d holds %T", ErrNotObject, name, i, v)
		}
		for _, k := range sortedKeys(obj) {
			if _, ok := names[k]; ok {
				continue
			}
			col := k
			if t.HasColumn(col) && col != name {
				col = name + "_" + k
			}
			names[k] = col
			added = append(added, k)
		}
	}

	for _, r := range t.rows {
		obj, _ := r[name].(map[string]any)
		delete(r, name)
		for _, k := range added {
			if obj != nil {
				r[names[k]] = obj[k]
			}
		}
	}

	i := t.index[name]
	t.columns = append(t.columns[:i], t.columns[i+1:]...)
	t.reindex()
	for _, k := range added {
		t.addColumn(names[k])
	}
	return nil
}

// Text returns a copy with every value rendered as a string. Missing values
// become empty strings, objects and arrays become JSON.
func (t *Table) Text() *Table {
	out := New(t.columns...)
	for _, r := range t.rows {
		row := make(Row, len(t.columns))
		for _, c := range t.columns {
			row[c] = FormatValue(r[c])
		}
		out.rows = append(out.rows, row)
	}
	return out
}

// FormatValue renders a single value the way Text does.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format("2006-01-02 15:04:05.000000")
	case fmt.Stringer:
		return x.String()
	case map[string]any, []any:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	default:
		return fmt.Sprint(x)
	}
}

func cloneRow(r map[string]any) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
