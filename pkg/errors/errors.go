// Package errors defines the structured error types returned by the SDK.
// Every failure surfaced to callers is classified into one of a small set of kinds
// so that retry and re-authentication decisions can be made without string matching.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/turtacn/contentsdk/pkg/constants"
)

// Kind classifies an error for propagation and retry decisions.
type Kind string

const (
	// KindTransport covers network failures, timeouts and unexpected HTTP statuses. Retried with delay.
	KindTransport Kind = "transport"

	// KindAuthExpired means credentials were rejected. Automatic retry must stop.
	KindAuthExpired Kind = "auth_expired"

	// KindMalformedResponse means a response lacked expected fields.
	KindMalformedResponse Kind = "malformed_response"

	// KindStore covers token store read, write and clear failures.
	KindStore Kind = "store"

	// KindConfig covers invalid construction parameters.
	KindConfig Kind = "config"
)

// Sentinel errors.
var (
	// ErrFeedClosed is returned by a destroyed event feed.
	ErrFeedClosed = stderrors.New("event feed closed")

	// ErrInvalidTokenStore is wrapped by construction errors for incomplete token stores.
	ErrInvalidTokenStore = stderrors.New("invalid token store")

	// ErrNoPrivateKey is returned when no key source yields a signing key.
	ErrNoPrivateKey = stderrors.New("no private key configured")
)

// ================================================================================
// Base Error Interface
// ================================================================================

// SDKError represents a structured error with additional metadata
type SDKError interface {
	error

	// Code returns the machine-readable error code
	Code() constants.ErrorCode

	// Kind returns the propagation class of the error
	Kind() Kind

	// HTTPStatus returns the HTTP status code, or 0 when no response was received
	HTTPStatus() int

	// Description returns a human-readable description
	Description() string

	// Unwrap returns the underlying error for error chain support
	Unwrap() error

	// WithCause adds a cause error to the error chain
	WithCause(cause error) SDKError

	// WithMetadata adds additional context metadata
	WithMetadata(key string, value interface{}) SDKError

	// Metadata returns all metadata
	Metadata() map[string]interface{}
}

// ================================================================================
// Base Error Implementation
// ================================================================================

type baseError struct {
	kind        Kind
	code        constants.ErrorCode
	httpStatus  int
	description string
	message     string
	cause       error
	metadata    map[string]interface{}
}

// Error implements the error interface
func (e *baseError) Error() string {
	msg := e.message
	if msg == "" {
		msg = e.description
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *baseError) Code() constants.ErrorCode { return e.code }

func (e *baseError) Kind() Kind { return e.kind }

func (e *baseError) HTTPStatus() int { return e.httpStatus }

func (e *baseError) Description() string { return e.description }

func (e *baseError) Unwrap() error { return e.cause }

func (e *baseError) WithCause(cause error) SDKError {
	e.cause = cause
	return e
}

func (e *baseError) WithMetadata(key string, value interface{}) SDKError {
	if e.metadata == nil {
		e.metadata = make(map[string]interface{})
	}
	e.metadata[key] = value
	return e
}

func (e *baseError) Metadata() map[string]interface{} {
	return e.metadata
}

// ================================================================================
// Error Constructors
// ================================================================================

// NewError creates a new SDKError with the specified parameters
func NewError(kind Kind, code constants.ErrorCode, httpStatus int, description string, message string) SDKError {
	return &baseError{
		kind:        kind,
		code:        code,
		httpStatus:  httpStatus,
		description: description,
		message:     message,
	}
}

// ErrTransport creates a transport error. status is 0 when no response was received.
func ErrTransport(message string, status int) SDKError {
	return NewError(
		KindTransport,
		constants.ErrCodeTransport,
		status,
		"The request could not be completed.",
		message,
	)
}

// ErrAuthExpired creates an error signalling rejected or expired credentials.
func ErrAuthExpired(message string) SDKError {
	return NewError(
		KindAuthExpired,
		constants.ErrCodeAuthExpired,
		http.StatusUnauthorized,
		"The access token or grant credentials have expired or were rejected.",
		message,
	)
}

// ErrInvalidGrant creates an auth-expired error for a grant the token endpoint refused.
func ErrInvalidGrant(message string, status int) SDKError {
	return NewError(
		KindAuthExpired,
		constants.ErrCodeInvalidGrant,
		status,
		"The token endpoint rejected the grant.",
		message,
	)
}

// ErrMalformedResponse creates an error for a response missing expected fields.
func ErrMalformedResponse(message string) SDKError {
	return NewError(
		KindMalformedResponse,
		constants.ErrCodeMalformedResponse,
		0,
		"The response did not contain the expected fields.",
		message,
	)
}

// ErrStore creates an error for a failed token store operation.
func ErrStore(op string, cause error) SDKError {
	return NewError(
		KindStore,
		constants.ErrCodeStore,
		0,
		"The token store is in an unknown state; cached tokens must not be trusted.",
		fmt.Sprintf("token store %s failed", op),
	).WithCause(cause).WithMetadata("operation", op)
}

// ErrInvalidConfig creates a configuration error.
func ErrInvalidConfig(message string) SDKError {
	return NewError(
		KindConfig,
		constants.ErrCodeInvalidConfig,
		0,
		"The SDK was configured with invalid parameters.",
		message,
	)
}

// ================================================================================
// Classification Helpers
// ================================================================================

// KindOf returns the kind of the first SDKError in err's chain, or "" if none.
func KindOf(err error) Kind {
	var sdkErr SDKError
	if stderrors.As(err, &sdkErr) {
		return sdkErr.Kind()
	}
	return ""
}

// StatusOf returns the HTTP status of the first SDKError in err's chain, or 0.
func StatusOf(err error) int {
	var sdkErr SDKError
	if stderrors.As(err, &sdkErr) {
		return sdkErr.HTTPStatus()
	}
	return 0
}

// IsAuthExpired reports whether err means credentials were rejected.
func IsAuthExpired(err error) bool { return KindOf(err) == KindAuthExpired }

// IsTransport reports whether err is a retryable transport failure.
func IsTransport(err error) bool { return KindOf(err) == KindTransport }

// IsMalformed reports whether err is a malformed response.
func IsMalformed(err error) bool { return KindOf(err) == KindMalformedResponse }

// IsStore reports whether err came from a token store.
func IsStore(err error) bool { return KindOf(err) == KindStore }

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
