package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies where in the intake/dispatch pipeline a failure
// originated. The kind decides the user-visible outcome: protocol errors
// are answered with 400, transport errors close the connection silently.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	KindProtocol
	KindTransport
	KindRedirect
	KindAuthentication
	KindHandler
)

// String returns the lowercase name used in logs and metric labels.
func (k ErrorKind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindTransport:
		return "transport"
	case KindRedirect:
		return "redirect"
	case KindAuthentication:
		return "authentication"
	case KindHandler:
		return "handler"
	default:
		return "unknown"
	}
}

// DomainError is a classified error with a stable code.
//
// Codes follow RM-<AREA>-<NNNN>, where the numeric part mirrors the
// HTTP status the failure maps to (or 0xxx for failures that never
// produce a response).
type DomainError struct {
	Kind    ErrorKind
	Code    string // e.g. "RM-PROT-4000"
	Message string
	Details string
	Cause   error
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches by code so that copies made by WithDetails/WithCause still
// compare equal to the sentinel they were derived from.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError.
func NewDomainError(kind ErrorKind, code, message string) *DomainError {
	return &DomainError{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	cp := *e
	cp.Details = details
	return &cp
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	cp := *e
	cp.Cause = cause
	return &cp
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// KindOf reports the kind of the outermost DomainError in err's chain.
// A nil error has KindUnknown.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// IsProtocol reports whether err is a protocol-classified failure.
func IsProtocol(err error) bool { return KindOf(err) == KindProtocol }

// IsTransport reports whether err is a transport-classified failure.
func IsTransport(err error) bool { return KindOf(err) == KindTransport }

// Protocol errors: the peer sent bytes that do not form a valid message.
var (
	ErrMalformedMessage = NewDomainError(KindProtocol, "RM-PROT-4000", "malformed http message")
	ErrMessageTooLarge  = NewDomainError(KindProtocol, "RM-PROT-4130", "message exceeds size limit")
	ErrUnsupported      = NewDomainError(KindProtocol, "RM-PROT-5050", "unsupported protocol feature")
)

// Transport errors: the byte stream itself failed.
var (
	ErrConnectionLost   = NewDomainError(KindTransport, "RM-TRAN-0001", "connection lost")
	ErrReadTimeout      = NewDomainError(KindTransport, "RM-TRAN-0002", "read timed out")
	ErrConnectionClosed = NewDomainError(KindTransport, "RM-TRAN-0003", "connection closed")
)

// Dispatch errors.
var (
	ErrMaxRedirects  = NewDomainError(KindRedirect, "RM-DISP-5001", "maximum redirects exceeded")
	ErrHandlerFailed = NewDomainError(KindHandler, "RM-HNDL-5000", "handler failed")
)

// Authentication errors, produced by authenticators for logging only.
var (
	ErrUnauthorized = NewDomainError(KindAuthentication, "RM-AUTH-4010", "authentication required")
	ErrForbidden    = NewDomainError(KindAuthentication, "RM-AUTH-4030", "access forbidden")
	ErrRateLimited  = NewDomainError(KindAuthentication, "RM-AUTH-4290", "too many authentication attempts")
)
