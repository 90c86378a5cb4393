package evidence

import (
	"errors"
	"fmt"
)

var (
	// ErrChainBroken indicates the audit hash chain does not verify.
	ErrChainBroken = errors.New("audit hash chain broken")

	// ErrSequenceConflict indicates an append whose sequence does not follow the stored trail.
	ErrSequenceConflict = errors.New("audit sequence conflict")
)

// StorageError represents an error from the storage backend.
type StorageError struct {
	Backend   string // Storage backend type ("sqlite", "postgres", etc.)
	Operation string // Operation that failed ("append", "query", etc.)
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// QueryError represents an error during query execution or validation.
type QueryError struct {
	Query *Query // Query that failed
	Cause error  // Underlying error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return fmt.Sprintf("query error: %v", e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *QueryError) Unwrap() error {
	return e.Cause
}

// NewQueryError creates a new QueryError.
func NewQueryError(query *Query, cause error) *QueryError {
	return &QueryError{
		Query: query,
		Cause: cause,
	}
}

// RecorderError represents an error while appending to the trail.
type RecorderError struct {
	RequestID string
	Cause     error
}

// Error implements the error interface.
func (e *RecorderError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("recorder error [request_id=%s]: %v", e.RequestID, e.Cause)
	}
	return fmt.Sprintf("recorder error: %v", e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *RecorderError) Unwrap() error {
	return e.Cause
}

// NewRecorderError creates a new RecorderError.
func NewRecorderError(requestID string, cause error) *RecorderError {
	return &RecorderError{
		RequestID: requestID,
		Cause:     cause,
	}
}

// ExportError represents an error during audit export.
type ExportError struct {
	Format     string // Export format ("json", "csv", etc.)
	EntryCount int    // Number of entries being exported
	Cause      error  // Underlying error
}

// Error implements the error interface.
func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [format=%s, entry_count=%d]: %v", e.Format, e.EntryCount, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *ExportError) Unwrap() error {
	return e.Cause
}

// NewExportError creates a new ExportError.
func NewExportError(format string, entryCount int, cause error) *ExportError {
	return &ExportError{
		Format:     format,
		EntryCount: entryCount,
		Cause:      cause,
	}
}
