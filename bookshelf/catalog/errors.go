package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrNilCollection is returned by New when no collection is supplied.
	ErrNilCollection = errors.New("catalog collection cannot be nil")
	// ErrInvalidPagination is returned when page < 1 or size <= 0.
	ErrInvalidPagination = errors.New("invalid pagination")
	// ErrIndexConflict reports that an equivalent or clashing index already exists.
	ErrIndexConflict = errors.New("index already exists")
	// ErrIndexCreation reports any other index creation failure.
	ErrIndexCreation = errors.New("index creation failed")
	// ErrQueryExecution reports a failure reaching or running a query on the engine.
	ErrQueryExecution = errors.New("query execution failed")
)

// Kind classifies catalog errors.
type Kind uint8

const (
	// KindValidation is an input rejected before any query was issued.
	KindValidation Kind = iota + 1
	// KindIndexConflict is a tolerated index creation failure.
	KindIndexConflict
	// KindIndexCreation is a fatal index creation failure.
	KindIndexCreation
	// KindQueryExecution is an engine or transport failure.
	KindQueryExecution
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindIndexConflict:
		return "index_conflict"
	case KindIndexCreation:
		return "index_creation"
	case KindQueryExecution:
		return "query_execution"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrInvalidPagination
	case KindIndexConflict:
		return ErrIndexConflict
	case KindIndexCreation:
		return ErrIndexCreation
	case KindQueryExecution:
		return ErrQueryExecution
	default:
		return nil
	}
}

// Error is the error type returned by catalog operations and Collection
// implementations. Err holds the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// NewError builds an *Error.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Err == nil {
		return fmt.Sprintf("catalog %s: %v", e.Op, e.Kind.sentinel())
	}

	return fmt.Sprintf("catalog %s: %v: %v", e.Op, e.Kind.sentinel(), e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}

	sentinel := e.Kind.sentinel()

	return sentinel != nil && target == sentinel
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var catalogErr *Error
	if errors.As(err, &catalogErr) {
		return catalogErr.Kind
	}

	return 0
}

// wrap returns err unchanged when it is already an *Error of the wanted kind,
// otherwise a new *Error carrying it.
func wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}

	var catalogErr *Error
	if errors.As(err, &catalogErr) && catalogErr.Kind == kind {
		return err
	}

	return NewError(kind, op, err)
}
