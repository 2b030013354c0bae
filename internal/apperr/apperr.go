// Package apperr classifies failures so callers can map them to client or server errors.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the classification of an error.
type Kind int

const (
	// KindInternal is an unexpected failure inside the service.
	KindInternal Kind = iota
	// KindInput is a malformed request (empty query, missing doc_id). Never retried.
	KindInput
	// KindNotFound means the requested document has no stored embeddings.
	KindNotFound
	// KindProvider is a failed embedding or completion call.
	KindProvider
	// KindIndexMismatch means an embedding response did not line up with its input batch.
	KindIndexMismatch
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindNotFound:
		return "not_found"
	case KindProvider:
		return "provider"
	case KindIndexMismatch:
		return "index_mismatch"
	default:
		return "internal"
	}
}

// Error carries a Kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with kind and op. A nil err yields nil.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Input returns an input error with the given message.
func Input(op, msg string) error {
	return &Error{Kind: KindInput, Op: op, Err: errors.New(msg)}
}

// KindOf returns the Kind of the outermost *Error in err's chain,
// or KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInput:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
