// Package errors defines the typed failures surfaced by the notification core
// and their mapping onto gRPC status codes and HTTP responses.
package errors

import (
	stderrors "errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind classifies a failure.
type Kind int

const (
	// KindInternal is an unexpected infrastructure or programming failure.
	KindInternal Kind = iota
	// KindConfiguration means a caller or deployment defect: missing or invalid
	// tenant identifier, pool not initialized. Never retried.
	KindConfiguration
	// KindTenantUnavailable means the tenant could not be reached: pool
	// exhaustion, connection failure, schema-scope failure. Retryable.
	KindTenantUnavailable
	// KindNotFound means a referenced notification or user does not exist in
	// the tenant schema.
	KindNotFound
	// KindForbidden means the caller is not allowed to perform the action.
	KindForbidden
	// KindInvalidArgument means the request itself is malformed.
	KindInvalidArgument
)

// String returns the error code string for the kind.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "CONFIGURATION_ERROR"
	case KindTenantUnavailable:
		return "TENANT_UNAVAILABLE"
	case KindNotFound:
		return "NOT_FOUND"
	case KindForbidden:
		return "FORBIDDEN"
	case KindInvalidArgument:
		return "INVALID_REQUEST"
	default:
		return "INTERNAL_ERROR"
	}
}

// Error is a structured error with a kind and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// GRPCStatus lets status.FromError classify an Error.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.Kind.grpcCode(), e.Message)
}

// Retryable reports whether the caller may retry the operation as-is.
func (e *Error) Retryable() bool {
	return e.Kind == KindTenantUnavailable
}

func (k Kind) grpcCode() codes.Code {
	switch k {
	case KindConfiguration:
		return codes.FailedPrecondition
	case KindTenantUnavailable:
		return codes.Unavailable
	case KindNotFound:
		return codes.NotFound
	case KindForbidden:
		return codes.PermissionDenied
	case KindInvalidArgument:
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}

// New creates a new Error
func New(kind Kind, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

func Configuration(message string) *Error {
	return New(KindConfiguration, message, nil)
}

func TenantUnavailable(message string, cause error) *Error {
	return New(KindTenantUnavailable, message, cause)
}

func NotFound(message string) *Error {
	return New(KindNotFound, message, nil)
}

func Forbidden(message string) *Error {
	return New(KindForbidden, message, nil)
}

func InvalidArgument(message string) *Error {
	return New(KindInvalidArgument, message, nil)
}

func Internal(message string, cause error) *Error {
	return New(KindInternal, message, cause)
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
