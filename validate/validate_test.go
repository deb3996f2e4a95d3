package validate

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/goccy/go-json"

	"github.com/justapithecus/encore/batch"
)

var testSchema = Schema{
	Columns: []Column{
		{Name: "id", Type: TypeString},
		{Name: "n", Type: TypeInt},
		{Name: "ts", Type: TypeNumericString},
		{Name: "auth", Type: TypeString},
	},
	NotNull: []string{"id"},
	Filter:  &Match{Column: "auth", Value: "Logged In"},
}

func rec(id any, n any, ts any, auth any) batch.Record {
	return batch.Record{"id": id, "N": n, "ts": ts, "auth": auth}
}

func TestValidateBatch(t *testing.T) {
	tests := []struct {
		name     string
		records  []batch.Record
		wantKind error
		wantRows int
	}{
		{
			name: "valid with filter",
			records: []batch.Record{
				rec("a", json.Number("1"), json.Number("1541121934796"), "Logged In"),
				rec("b", json.Number("2"), json.Number("1541121934797"), "Logged Out"),
			},
			wantRows: 1,
		},
		{
			name:     "missing column",
			records:  []batch.Record{{"id": "a", "n": json.Number("1"), "auth": "Logged In"}},
			wantKind: ErrSchemaMismatch,
		},
		{
			name: "column present in another record",
			records: []batch.Record{
				{"id": "a", "n": json.Number("1"), "auth": "Logged In"},
				rec("b", json.Number("2"), json.Number("3"), "Logged In"),
			},
			wantRows: 2,
		},
		{
			name:     "null in non-null column",
			records:  []batch.Record{rec(nil, json.Number("1"), json.Number("1"), "Logged In")},
			wantKind: ErrNullConstraint,
		},
		{
			name: "null check ignores filter",
			records: []batch.Record{
				rec("a", json.Number("1"), json.Number("1"), "Logged In"),
				rec(nil, json.Number("1"), json.Number("1"), "Logged Out"),
			},
			wantKind: ErrNullConstraint,
		},
		{
			name:     "coercion failure",
			records:  []batch.Record{rec("a", "abc", json.Number("1"), "Logged In")},
			wantKind: ErrCoercion,
		},
		{
			name:     "filtered rows are not coerced",
			records:  []batch.Record{rec("a", "abc", json.Number("1"), "Logged Out")},
			wantRows: 0,
		},
		{
			name:     "empty batch",
			records:  nil,
			wantKind: ErrSchemaMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateBatch(batch.Batch{Records: tt.records}, testSchema)
			if tt.wantKind != nil {
				if !errors.Is(err, tt.wantKind) {
					t.Fatalf("err = %v, want %v", err, tt.wantKind)
				}
				var be *BatchError
				if !errors.As(err, &be) {
					t.Fatalf("err type = %T, want *BatchError", err)
				}
				if got != nil {
					t.Error("expected no table on failure")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Len() != tt.wantRows {
				t.Errorf("rows = %d, want %d", got.Len(), tt.wantRows)
			}
		})
	}
}

func TestValidateBatch_PreservesTimestampText(t *testing.T) {
	b := batch.Batch{Records: []batch.Record{rec(json.Number("10"), json.Number("484"), json.Number("1541121934796"), "Logged In")}}
	got, err := ValidateBatch(b, testSchema)
	if err != nil {
		t.Fatal(err)
	}
	if v := got.Value(0, "ts"); v != "1541121934796" {
		t.Errorf("ts = %#v", v)
	}
	if v := got.Value(0, "id"); v != "10" {
		t.Errorf("id = %#v, want string 10", v)
	}
	if v := got.Value(0, "n"); v != int64(484) {
		t.Errorf("n = %#v, want int64 484", v)
	}
}

func TestValidate_SkipsOnlyBadBatches(t *testing.T) {
	good := func(i int) batch.Batch {
		return batch.Batch{Index: i, Source: fmt.Sprintf("f%d.json", i), Records: []batch.Record{
			rec(fmt.Sprint(i), json.Number("1"), json.Number("1"), "Logged In"),
		}}
	}
	bad := batch.Batch{Index: 1, Source: "f1.json", Records: []batch.Record{
		rec("x", json.Number("1.5"), json.Number("1"), "Logged In"),
	}}

	table, diags := Validate([]batch.Batch{good(0), bad, good(2)}, testSchema)
	if table.Len() != 2 {
		t.Fatalf("rows = %d, want 2", table.Len())
	}
	if table.Value(0, "id") != "0" || table.Value(1, "id") != "2" {
		t.Errorf("order not preserved: %v", table.Rows())
	}
	if len(diags) != 1 {
		t.Fatalf("diagnostics = %d, want 1", len(diags))
	}
	if diags[0].BatchIndex != 1 || diags[0].Source != "f1.json" || diags[0].Reason() != "coercion" {
		t.Errorf("diagnostic = %+v (%s)", diags[0], diags[0].Reason())
	}
}

func TestValidate_AllColumnsNullCheckedWhenNotNullEmpty(t *testing.T) {
	s := Schema{Columns: []Column{{Name: "a", Type: TypeAny}, {Name: "b", Type: TypeAny}}}
	_, err := ValidateBatch(batch.Batch{Records: []batch.Record{{"a": 1.0, "b": nil}}}, s)
	if !errors.Is(err, ErrNullConstraint) {
		t.Fatalf("err = %v, want ErrNullConstraint", err)
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name    string
		v       any
		typ     Type
		want    any
		wantErr bool
	}{
		{"nil stays nil", nil, TypeInt, nil, false},
		{"string number", json.Number("7"), TypeString, "7", false},
		{"int from integral float text", json.Number("1981.0"), TypeInt, int64(1981), false},
		{"int rejects fraction", json.Number("1.5"), TypeInt, nil, true},
		{"int from string", " 42 ", TypeInt, int64(42), false},
		{"float", json.Number("249.16"), TypeFloat, 249.16, false},
		{"float empty string", "", TypeFloat, nil, false},
		{"float garbage", "x", TypeFloat, nil, true},
		{"numeric string keeps text", json.Number("218.93179"), TypeNumericString, "218.93179", false},
		{"numeric string rejects text", "abc", TypeNumericString, nil, true},
		{"string rejects object", map[string]any{}, TypeString, nil, true},
		{"any passes through", true, TypeAny, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.v, tt.typ)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Coerce() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestNormalizeAbsent(t *testing.T) {
	row := []any{"", math.NaN(), "x", 0.0, nil}
	NormalizeRow(row)
	if row[0] != nil || row[1] != nil || row[4] != nil {
		t.Errorf("absent values not normalized: %#v", row)
	}
	if row[2] != "x" || row[3] != 0.0 {
		t.Errorf("present values changed: %#v", row)
	}
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&BatchError{Kind: ErrSchemaMismatch}, "schema_mismatch"},
		{fmt.Errorf("wrap: %w", &BatchError{Kind: ErrNullConstraint}), "null_constraint"},
		{fmt.Errorf("f.json: %w", batch.ErrMalformed), "malformed_input"},
		{errors.New("boom"), "read_error"},
	}
	for _, tt := range tests {
		if got := Reason(tt.err); got != tt.want {
			t.Errorf("Reason(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestBatchErrorMessage(t *testing.T) {
	err := &BatchError{Kind: ErrCoercion, Column: "ts", Row: 3, Err: errors.New("bad")}
	want := `coercion error: column "ts" at record 3: bad`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
