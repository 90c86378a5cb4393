package artifact

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedVersion is returned for documents outside SupportedVersions.
	ErrUnsupportedVersion = errors.New("unsupported format version")

	// ErrDigestMismatch is returned when a document's rules do not hash to
	// the digest recorded in its metadata.
	ErrDigestMismatch = errors.New("rule set digest mismatch")
)

// SchemaError reports a document that failed JSON Schema validation.
type SchemaError struct {
	Cause error
}

// Error returns the error message.
func (e *SchemaError) Error() string {
	return fmt.Sprintf("document does not match schema: %v", e.Cause)
}

// Unwrap returns the underlying cause.
func (e *SchemaError) Unwrap() error {
	return e.Cause
}
