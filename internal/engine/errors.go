package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ListError represents a failed list operation.
//
// ListError includes structured fields for diagnostics. Err holds the
// underlying cause, so errors.Is / errors.As still reach driver errors.
type ListError struct {
	// Code identifies the error category.
	Code ListErrorCode

	// Op is the operation that failed, e.g. "move_higher".
	Op string

	// Table is the list's table.
	Table string

	// ID is the primary key of the record, 0 when not applicable.
	ID int64

	// Err is the underlying cause.
	Err error
}

// ListErrorCode categorizes list errors.
type ListErrorCode string

const (
	// ErrCodeInvalidConfig indicates a Config that does not match the table.
	ErrCodeInvalidConfig ListErrorCode = "INVALID_CONFIG"

	// ErrCodeRowNotFound indicates the record's row does not exist.
	ErrCodeRowNotFound ListErrorCode = "ROW_NOT_FOUND"

	// ErrCodeNotPersisted indicates an operation that needs a primary key
	// was given an unsaved record.
	ErrCodeNotPersisted ListErrorCode = "NOT_PERSISTED"

	// ErrCodeStore indicates the database failed.
	ErrCodeStore ListErrorCode = "STORE"
)

// Error implements the error interface.
func (e *ListError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Op != "" {
		fmt.Fprintf(&b, ": %s", e.Op)
	}
	if e.Table != "" && e.ID != 0 {
		fmt.Fprintf(&b, " (%s id=%d)", e.Table, e.ID)
	} else if e.Table != "" {
		fmt.Fprintf(&b, " (%s)", e.Table)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *ListError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ListErrorCode) bool {
	var le *ListError
	if errors.As(err, &le) {
		return le.Code == code
	}
	return false
}

// IsNotFound returns true if the record's row does not exist.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeRowNotFound)
}

// IsInvalidConfig returns true if the manager could not be built.
func IsInvalidConfig(err error) bool {
	return hasCode(err, ErrCodeInvalidConfig)
}

// IsNotPersisted returns true if an unsaved record was passed where a
// stored one is required.
func IsNotPersisted(err error) bool {
	return hasCode(err, ErrCodeNotPersisted)
}

// ValidationError rejects a field value before any row is touched.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// IsValidationError returns true if err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ValidatePosition accepts nil (not in a list) and positive values.
func ValidatePosition(p *int64) error {
	if p == nil {
		return nil
	}
	if *p <= 0 {
		return &ValidationError{Field: "position", Message: "must be greater than 0"}
	}
	return nil
}

// ContiguityError reports a list whose positions are not exactly 1..N.
type ContiguityError struct {
	Table string
	Scope string

	// Count is the number of rows in the list.
	Count int

	// Missing lists the positions in 1..Count that no row holds.
	Missing []int64

	// Duplicates lists positions held by more than one row.
	Duplicates []int64

	// OutOfRange lists positions below 1 or above Count.
	OutOfRange []int64
}

// Error implements the error interface.
func (e *ContiguityError) Error() string {
	parts := make([]string, 0, 3)
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing %v", e.Missing))
	}
	if len(e.Duplicates) > 0 {
		parts = append(parts, fmt.Sprintf("duplicates %v", e.Duplicates))
	}
	if len(e.OutOfRange) > 0 {
		parts = append(parts, fmt.Sprintf("out of range %v", e.OutOfRange))
	}
	return fmt.Sprintf("list %s where %s is not contiguous over %d rows: %s",
		e.Table, e.Scope, e.Count, strings.Join(parts, ", "))
}

// IsContiguityError returns true if err is or wraps a ContiguityError.
func IsContiguityError(err error) bool {
	var ce *ContiguityError
	return errors.As(err, &ce)
}
