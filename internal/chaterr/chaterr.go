// Package chaterr defines the error taxonomy for the chat surface. Every error
// that can reach a client is classified by Kind; kinds map to HTTP statuses and
// to safe user-facing messages. Storage detail never leaks to the client.
package chaterr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a chat error.
type Kind string

const (
	KindBadRequest   Kind = "bad_request"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindDatabase     Kind = "database"
	// KindNoAssistantOutput flags a model response containing no assistant
	// message, an invariant violation worth surfacing distinctly.
	KindNoAssistantOutput Kind = "no_assistant_output"
)

// Error is a classified chat error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from err, defaulting to KindDatabase for
// unclassified errors so nothing internal leaks.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindDatabase
}

// Status maps a kind to its HTTP status.
func (k Kind) Status() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindNoAssistantOutput:
		return http.StatusInternalServerError
	default:
		// Storage failures surface as a generic request error; detail is
		// logged server-side only.
		return http.StatusBadRequest
	}
}

// Public returns the status and client-safe message for err.
func Public(err error) (int, string) {
	kind := KindOf(err)
	switch kind {
	case KindBadRequest:
		return kind.Status(), "invalid request"
	case KindUnauthorized:
		return kind.Status(), "authentication required"
	case KindForbidden:
		return kind.Status(), "forbidden"
	case KindNotFound:
		return kind.Status(), "not found"
	case KindNoAssistantOutput:
		return kind.Status(), "the assistant produced no response"
	default:
		return kind.Status(), "something went wrong, please try again"
	}
}
