package knowledge

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a document id has no stored record.
var ErrNotFound = errors.New("document not found")

// ConfigurationError reports a missing or malformed credential or connection
// setting. It is raised before any network call is attempted.
type ConfigurationError struct {
	Setting string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Setting, e.Reason)
}

// ExtractionError reports unsupported or unparseable document input.
type ExtractionError struct {
	MimeType string
	Err      error
}

func (e *ExtractionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("extraction error: unsupported file type %q", e.MimeType)
	}
	return fmt.Sprintf("extraction error (%s): %v", e.MimeType, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// EmbeddingAPIError reports an upstream embedding-service rejection. When the
// cause is a credential-class mismatch, Guidance carries remediation text
// instead of surfacing the raw upstream error verbatim.
type EmbeddingAPIError struct {
	StatusCode int
	Guidance   string
	Err        error
}

func (e *EmbeddingAPIError) Error() string {
	if e.Guidance != "" {
		return fmt.Sprintf("embedding API error: %s", e.Guidance)
	}
	return fmt.Sprintf("embedding API error: %v", e.Err)
}

func (e *EmbeddingAPIError) Unwrap() error { return e.Err }

// CredentialRejected reports whether the upstream refused the configured key.
func (e *EmbeddingAPIError) CredentialRejected() bool { return e.Guidance != "" }

// StorageError reports a vector-store or metadata-store read/write failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ValidationError reports chunk-size or search-parameter configuration out of
// bounds.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
