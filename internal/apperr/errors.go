// Package apperr classifies failures of the ingestion and query pipelines into the kinds the
// HTTP layer and callers act on. Every pipeline stage wraps its own failures with New before
// returning, so nothing leaves a stage unclassified.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind is the classification of a failure.
type Kind int

const (
	// KindInternal is an unexpected failure that fits no other kind.
	KindInternal Kind = iota
	// KindClientInput is a missing or invalid request parameter.
	KindClientInput
	// KindUnsupportedFormat is an upload whose content type is not wired to an extractor.
	KindUnsupportedFormat
	// KindNotFound is a lookup of a file or record that does not exist.
	KindNotFound
	// KindExtraction is a failure of an extraction engine (PDF, OCR, speech-to-text).
	KindExtraction
	// KindIndexUnavailable is a failure of the vector store. Retryable by the caller.
	KindIndexUnavailable
	// KindGeneration is a failure of the generation capability.
	KindGeneration
	// KindStorage is a blob or catalog write failure after a successful index write.
	KindStorage
)

var kindNames = map[Kind]string{
	KindInternal:          "internal",
	KindClientInput:       "client_input",
	KindUnsupportedFormat: "unsupported_format",
	KindNotFound:          "not_found",
	KindExtraction:        "extraction",
	KindIndexUnavailable:  "index_unavailable",
	KindGeneration:        "generation",
	KindStorage:           "storage",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrInternal          = &Error{Kind: KindInternal}
	ErrClientInput       = &Error{Kind: KindClientInput}
	ErrUnsupportedFormat = &Error{Kind: KindUnsupportedFormat}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrExtraction        = &Error{Kind: KindExtraction}
	ErrIndexUnavailable  = &Error{Kind: KindIndexUnavailable}
	ErrGeneration        = &Error{Kind: KindGeneration}
	ErrStorage           = &Error{Kind: KindStorage}
)

// Error is a classified failure. Op names the operation that failed ("extract", "index add").
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New wraps err with kind and op. If err is already an *Error it is returned unchanged, so the
// innermost classification wins. A nil err yields a message-less error of the given kind.
func New(kind Kind, op string, err error) error {
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf creates an error of kind with a formatted message.
func Newf(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "":
		return e.Op + ": " + e.Kind.String()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of err, or KindInternal when err is not classified.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// IsTimeout reports whether err was caused by a deadline expiring.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// HTTPStatus maps err to the status code the HTTP layer returns. Timeouts map to 504
// regardless of kind.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if IsTimeout(err) {
		return http.StatusGatewayTimeout
	}
	switch KindOf(err) {
	case KindClientInput, KindUnsupportedFormat:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindIndexUnavailable:
		return http.StatusServiceUnavailable
	case KindGeneration:
		return http.StatusBadGateway
	default:
		// extraction engine, storage and internal failures are server faults
		return http.StatusInternalServerError
	}
}
