package validate

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/justapithecus/encore/batch"
)

// Validate checks each batch independently and concatenates the tables of
// the batches that pass, in input order. Each skipped batch yields one
// Diagnostic.
func Validate(batches []batch.Batch, schema Schema) (*batch.Table, []Diagnostic) {
	tables := make([]*batch.Table, 0, len(batches))
	var diags []Diagnostic
	for _, b := range batches {
		t, err := ValidateBatch(b, schema)
		if err != nil {
			diags = append(diags, Diagnostic{BatchIndex: b.Index, Source: b.Source, Err: err})
			continue
		}
		tables = append(tables, t)
	}
	return batch.Concat(schema.ColumnNames(), tables...), diags
}

// ValidateBatch applies presence, null, filter and type checks to one batch.
// On failure it returns a *BatchError and no table.
func ValidateBatch(b batch.Batch, schema Schema) (*batch.Table, error) {
	available := b.ColumnSet()
	for _, c := range schema.Columns {
		if _, ok := available[strings.ToLower(c.Name)]; !ok {
			return nil, &BatchError{Kind: ErrSchemaMismatch, Column: c.Name}
		}
	}

	notNull := schema.nullChecked()
	for i, r := range b.Records {
		for _, col := range notNull {
			v, _ := r.Lookup(col)
			if isNull(v) {
				return nil, &BatchError{Kind: ErrNullConstraint, Column: col, Row: i + 1}
			}
		}
	}

	out := batch.NewTable(schema.ColumnNames())
	for i, r := range b.Records {
		if !schema.Filter.matches(r) {
			continue
		}
		row := make([]any, len(schema.Columns))
		for j, c := range schema.Columns {
			v, _ := r.Lookup(c.Name)
			cv, err := Coerce(v, c.Type)
			if err != nil {
				return nil, &BatchError{Kind: ErrCoercion, Column: c.Name, Row: i + 1, Err: err}
			}
			row[j] = cv
		}
		out.Append(row)
	}
	return out, nil
}

func (m *Match) matches(r batch.Record) bool {
	if m == nil {
		return true
	}
	v, _ := r.Lookup(m.Column)
	s, ok := v.(string)
	return ok && s == m.Value
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	if f, ok := v.(float64); ok {
		return math.IsNaN(f)
	}
	return false
}

// Coerce converts one raw value to the declared type. Absent values stay
// absent.
func Coerce(v any, t Type) (any, error) {
	if isNull(v) {
		return nil, nil
	}
	switch t {
	case TypeString:
		return toString(v)
	case TypeInt:
		return toInt(v)
	case TypeFloat:
		return toFloat(v)
	case TypeNumericString:
		return toNumericString(v)
	default:
		return v, nil
	}
}

func toString(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	}
	return nil, fmt.Errorf("cannot convert %T to string", v)
}

func toInt(v any) (any, error) {
	var text string
	switch x := v.(type) {
	case int64:
		return x, nil
	case float64:
		return integral(x)
	case json.Number:
		text = x.String()
	case string:
		text = strings.TrimSpace(x)
	default:
		return nil, fmt.Errorf("cannot convert %T to int", v)
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, fmt.Errorf("parse int %q: %w", text, err)
	}
	return integral(f)
}

func integral(f float64) (any, error) {
	if math.IsInf(f, 0) || math.Trunc(f) != f || math.Abs(f) > 1<<53 {
		return nil, fmt.Errorf("%v is not an integer", f)
	}
	return int64(f), nil
}

func toFloat(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case json.Number:
		f, err := strconv.ParseFloat(x.String(), 64)
		if err != nil {
			return nil, fmt.Errorf("parse float %q: %w", x, err)
		}
		return f, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("parse float %q: %w", x, err)
		}
		return f, nil
	}
	return nil, fmt.Errorf("cannot convert %T to float", v)
}

func toNumericString(v any) (any, error) {
	var text string
	switch x := v.(type) {
	case json.Number:
		text = x.String()
	case string:
		text = strings.TrimSpace(x)
		if text == "" {
			return "", nil
		}
	case int64:
		return strconv.FormatInt(x, 10), nil
	default:
		return nil, fmt.Errorf("cannot convert %T to numeric string", v)
	}
	if _, err := strconv.ParseFloat(text, 64); err != nil {
		return nil, fmt.Errorf("not numeric %q: %w", text, err)
	}
	return text, nil
}

// NormalizeAbsent maps empty strings and NaN to the absent marker (nil).
func NormalizeAbsent(v any) any {
	switch x := v.(type) {
	case string:
		if x == "" {
			return nil
		}
	case float64:
		if math.IsNaN(x) {
			return nil
		}
	}
	return v
}

// NormalizeRow applies NormalizeAbsent to every cell in place.
func NormalizeRow(row []any) {
	for i, v := range row {
		row[i] = NormalizeAbsent(v)
	}
}
