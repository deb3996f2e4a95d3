package batch

// Table is a column-ordered, row-major table of coerced values.
// A nil cell is the absent marker.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]any
}

// NewTable creates an empty table with a fixed column order.
func NewTable(columns []string) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	index := make(map[string]int, len(cols))
	for i, c := range cols {
		index[c] = i
	}
	return &Table{columns: cols, index: index}
}

// Columns returns the table's column order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Append adds a row. The row must have one value per column.
func (t *Table) Append(row []any) {
	t.rows = append(t.rows, row)
}

// Row returns the i-th row.
func (t *Table) Row(i int) []any { return t.rows[i] }

// Rows returns all rows in order.
func (t *Table) Rows() [][]any { return t.rows }

// Index returns the position of col, or -1 if the table has no such column.
func (t *Table) Index(col string) int {
	if i, ok := t.index[col]; ok {
		return i
	}
	return -1
}

// Value returns the cell at row i, column col. Unknown columns read as nil.
func (t *Table) Value(i int, col string) any {
	j := t.Index(col)
	if j < 0 {
		return nil
	}
	return t.rows[i][j]
}

// Where returns a new table holding the rows for which keep returns true.
func (t *Table) Where(keep func(row []any) bool) *Table {
	out := NewTable(t.columns)
	for _, r := range t.rows {
		if keep(r) {
			out.Append(r)
		}
	}
	return out
}

// Concat joins per-batch tables into one, in argument order. Nil tables are
// skipped. Every table is expected to share columns.
func Concat(columns []string, tables ...*Table) *Table {
	n := 0
	for _, t := range tables {
		if t != nil {
			n += t.Len()
		}
	}
	out := NewTable(columns)
	out.rows = make([][]any, 0, n)
	for _, t := range tables {
		if t == nil {
			continue
		}
		out.rows = append(out.rows, t.rows...)
	}
	return out
}

// RowView reads typed cells of one row by column name. A cell of the wrong
// type reads as absent.
type RowView struct {
	t   *Table
	row []any
}

// View wraps row, which must follow t's column order.
func (t *Table) View(row []any) RowView { return RowView{t: t, row: row} }

// Get returns the raw cell, or nil for unknown columns.
func (v RowView) Get(col string) any {
	i := v.t.Index(col)
	if i < 0 || i >= len(v.row) {
		return nil
	}
	return v.row[i]
}

// String returns a pointer to the string cell, or nil.
func (v RowView) String(col string) *string {
	if s, ok := v.Get(col).(string); ok {
		return &s
	}
	return nil
}

// Float returns a pointer to the float64 cell, or nil.
func (v RowView) Float(col string) *float64 {
	if f, ok := v.Get(col).(float64); ok {
		return &f
	}
	return nil
}

// Int returns a pointer to the int64 cell, or nil.
func (v RowView) Int(col string) *int64 {
	if n, ok := v.Get(col).(int64); ok {
		return &n
	}
	return nil
}
