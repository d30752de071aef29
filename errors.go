package mig

import "errors"

// Package-level sentinel errors. Adapter-level failures are propagated to the
// caller unchanged and have no sentinels here.
var (
	// ErrAdapterNotSet is returned when an operation that needs adapter-backed
	// validation or execution is invoked on a table with no adapter attached.
	ErrAdapterNotSet = errors.New("mig: no adapter attached to table")
	// ErrColumnTypeNotSupported is returned when a staged column's type is not
	// in the adapter's advertised supported-type set. The returned error wraps
	// this sentinel; match with errors.Is.
	ErrColumnTypeNotSupported = errors.New("mig: column type not supported by adapter")
	// ErrIndexColumnsEmpty is returned when an index is given no columns.
	ErrIndexColumnsEmpty = errors.New("mig: index requires at least one column")
	// ErrInvalidIndexColumns is returned when the index column argument is not
	// a string, []string or *Index.
	ErrInvalidIndexColumns = errors.New("mig: index columns must be a string, []string or *Index")
)
