package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/trainhub/internal/validation"
)

// Kind classifies transport failures.
type Kind string

const (
	// KindUnreachable covers connection failures and timeouts.
	KindUnreachable Kind = "unreachable"
	// KindMalformed covers responses that are not the JSON envelope the API speaks.
	KindMalformed Kind = "malformed"
)

// User-facing messages. Raw transport and parsing failures never reach people.
const (
	MessageUnreachable = "Unable to reach the server. Check your connection and try again."
	MessageMalformed   = "The server sent an unexpected response. Please try again."
	MessageTimeout     = "The request took too long. Please try again."
	MessageUnexpected  = "Something went wrong. Please try again."
	MessageSignedOut   = "Your session has ended. Please log in again."
)

const codeUnauthorized = "auth.unauthorized"

// TransportError reports a request that never produced a usable envelope.
type TransportError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *TransportError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("transport: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("transport: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ApplicationError is a well-formed response with ok:false.
type ApplicationError struct {
	Code    string
	Message string
	Status  int
}

func (e *ApplicationError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Message
}

// Unauthorized reports whether the server rejected the session token.
func (e *ApplicationError) Unauthorized() bool {
	return e.Code == codeUnauthorized
}

// IsUnreachable reports whether err is a transport failure to reach the server.
func IsUnreachable(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr) && transportErr.Kind == KindUnreachable
}

// UserMessage translates any client-side failure into text suitable for a notification.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var validationErr *validation.ValidationError
	var applicationErr *ApplicationError
	var transportErr *TransportError
	switch {
	case errors.As(err, &validationErr):
		return validationErr.Message
	case errors.As(err, &applicationErr):
		if applicationErr.Unauthorized() {
			return MessageSignedOut
		}
		if applicationErr.Message != "" {
			return applicationErr.Message
		}
		return MessageUnexpected
	case errors.Is(err, context.DeadlineExceeded):
		return MessageTimeout
	case errors.As(err, &transportErr):
		if transportErr.Kind == KindMalformed {
			return MessageMalformed
		}
		return MessageUnreachable
	default:
		return MessageUnexpected
	}
}
