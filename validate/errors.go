package validate

import (
	"errors"
	"fmt"

	"github.com/justapithecus/encore/batch"
)

// Sentinel errors for batch rejection. A batch carrying any of these is
// skipped as a whole; no partial output is produced for it.
var (
	// ErrSchemaMismatch indicates a required column is absent from the batch.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrNullConstraint indicates an absent value in a non-null column.
	ErrNullConstraint = errors.New("null constraint violation")

	// ErrCoercion indicates a value that cannot be converted to its declared type.
	ErrCoercion = errors.New("coercion error")
)

// BatchError classifies why a batch was skipped. It preserves the underlying
// cause for errors.As inspection.
type BatchError struct {
	// Kind is the sentinel used for classification.
	Kind error
	// Column is the offending column, if any.
	Column string
	// Row is the 1-based record number within the batch, or 0 when the
	// failure is not tied to one record.
	Row int
	// Err is the underlying cause, if any.
	Err error
}

func (e *BatchError) Error() string {
	msg := e.Kind.Error()
	if e.Column != "" {
		msg = fmt.Sprintf("%s: column %q", msg, e.Column)
	}
	if e.Row > 0 {
		msg = fmt.Sprintf("%s at record %d", msg, e.Row)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *BatchError) Unwrap() error { return e.Err }

// Is reports whether the error matches the target sentinel.
func (e *BatchError) Is(target error) bool { return errors.Is(e.Kind, target) }

// Reason returns a stable snake_case label for a batch-level failure, used
// in logs and run reports.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSchemaMismatch):
		return "schema_mismatch"
	case errors.Is(err, ErrNullConstraint):
		return "null_constraint"
	case errors.Is(err, ErrCoercion):
		return "coercion"
	case errors.Is(err, batch.ErrMalformed):
		return "malformed_input"
	default:
		return "read_error"
	}
}

// Diagnostic records one skipped batch.
type Diagnostic struct {
	BatchIndex int
	Source     string
	Err        error
}

// Reason returns the classified failure label.
func (d Diagnostic) Reason() string { return Reason(d.Err) }
