package errors

import (
	"errors"
	"fmt"
)

/*
Kind classifies an error so that callers at the tool boundary can decide
whether to retry, surface, or degrade without string matching.
*/
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindValidation         Kind = "validation"
	KindBackendUnavailable Kind = "backend_unavailable"
	KindEmbeddingService   Kind = "embedding_service"
	KindSynthesisService   Kind = "synthesis_service"
)

/*
Error is the typed error carried across the storage and service layers.
Every failure a caller can observe is one of these; bare errors from
drivers and HTTP clients are wrapped before they escape a package.
*/
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound reports an unknown identifier in a single-item context.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation reports input rejected before any storage mutation.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// BackendUnavailable wraps a storage connection or transaction failure.
func BackendUnavailable(err error, format string, args ...any) *Error {
	return &Error{Kind: KindBackendUnavailable, Message: fmt.Sprintf(format, args...), Err: err}
}

// EmbeddingService wraps a failed embedding call. Fatal for recall,
// deferred for remember.
func EmbeddingService(err error, format string, args ...any) *Error {
	return &Error{Kind: KindEmbeddingService, Message: fmt.Sprintf(format, args...), Err: err}
}

// SynthesisService wraps a failed summarization call. Always non-fatal.
func SynthesisService(err error, format string, args ...any) *Error {
	return &Error{Kind: KindSynthesisService, Message: fmt.Sprintf(format, args...), Err: err}
}

// IsKind reports whether err (or anything it wraps) carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the kind from err, or "" when err is untyped.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
