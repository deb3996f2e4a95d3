// Package validate checks raw record batches against a declared schema and
// produces typed, column-ordered tables from the batches that pass.
//
// Validation is all-or-nothing per batch: a batch either contributes every
// one of its (filtered) rows or none of them.
package validate

// Type is the declared type of a schema column.
type Type int

const (
	// TypeAny passes values through unchanged.
	TypeAny Type = iota
	// TypeString converts scalars to their text form.
	TypeString
	// TypeInt converts to int64; fractional values are rejected.
	TypeInt
	// TypeFloat converts to float64.
	TypeFloat
	// TypeNumericString checks the value is numeric but keeps its exact
	// text. Used for 13-digit millisecond timestamps.
	TypeNumericString
)

func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeNumericString:
		return "numeric_string"
	default:
		return "any"
	}
}

// Column is one declared column: its raw input name and type.
type Column struct {
	Name string
	Type Type
}

// Match keeps rows whose Column equals Value.
type Match struct {
	Column string
	Value  string
}

// Schema describes an input family. Catalog and event schemas are two
// values of this type.
type Schema struct {
	// Columns are required, in output order.
	Columns []Column
	// NotNull lists columns that must not hold absent values. When empty,
	// every column is checked.
	NotNull []string
	// Filter, when set, drops non-matching rows after the null check and
	// before coercion.
	Filter *Match
}

// ColumnNames returns the declared column names in order.
func (s Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

func (s Schema) nullChecked() []string {
	if len(s.NotNull) > 0 {
		return s.NotNull
	}
	return s.ColumnNames()
}
