package relay

import (
	"fmt"
	"strings"
)

// RecordError is the failure of a single record. Kind is one of
// apperrors.ErrDecode, ErrParse or ErrStoreWrite; Err is the underlying
// cause. errors.Is matches either.
type RecordError struct {
	Index  int
	Record Record
	Kind   error
	Err    error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d (%s): %v", e.Index, e.Record.Position(), e.Err)
}

func (e *RecordError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// BatchError aggregates the failures of a batch with more than one failed
// record, in record order.
type BatchError struct {
	Total    int
	Failures []*RecordError
}

func (e *BatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d records failed", len(e.Failures), e.Total)
	for _, f := range e.Failures {
		b.WriteString("; ")
		b.WriteString(f.Error())
	}
	return b.String()
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// batchErr turns the captured failures into the error reported for a batch:
// nil, the lone RecordError, or a BatchError.
func batchErr(total int, failures []*RecordError) error {
	switch len(failures) {
	case 0:
		return nil
	case 1:
		return failures[0]
	default:
		return &BatchError{Total: total, Failures: failures}
	}
}
