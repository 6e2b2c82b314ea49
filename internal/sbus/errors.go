package sbus

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a gateway failure. The broker's own message text is always
// preserved verbatim; the kind only decides how the caller reacts (status
// class, retry policy elsewhere).
type Kind string

const (
	// KindValidation marks malformed or missing input detected locally,
	// before any network call.
	KindValidation Kind = "validation"
	// KindConnectivity marks a session that could not be opened: bad
	// credentials, unreachable namespace, descriptor rejected by the broker.
	KindConnectivity Kind = "connectivity"
	// KindNotFound marks a referenced entity that does not exist.
	KindNotFound Kind = "not_found"
	// KindConflict marks an entity-creation collision.
	KindConflict Kind = "conflict"
	// KindBroker marks any other broker-reported failure, surfaced with the
	// broker's message text.
	KindBroker Kind = "broker"
)

// Error carries a failure kind while preserving wrapped-error compatibility
// for errors.Is/As chains.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := strings.TrimSpace(e.Message)
	if e.cause == nil {
		return msg
	}
	cause := strings.TrimSpace(e.cause.Error())
	if msg == "" {
		return cause
	}
	if cause == "" || cause == msg {
		return msg
	}
	return msg + ": " + cause
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Errorf builds a locally-originated classified error.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError classifies an underlying error without losing it.
func WrapError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, cause: cause}
}

// KindOf extracts the classification of err. Unclassified errors count as
// broker failures: the gateway performs no silent recovery, so anything
// unexpected still surfaces with its original text.
func KindOf(err error) Kind {
	var typed *Error
	if errors.As(err, &typed) && typed != nil {
		return typed.Kind
	}
	return KindBroker
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
