// Package domain defines the core domain models for sockhttp.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain error with a structured error code.
type DomainError struct {
	Code    string // Error code (e.g., "SH-PREFIX-4090")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
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

// Is implements errors.Is() support for error comparison.
// Two domain errors are equal when their codes match.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
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

// ============================================================================
// Prefix Errors (PREFIX)
// ============================================================================

var (
	// ErrInvalidPrefix indicates a prefix string could not be parsed.
	ErrInvalidPrefix = NewDomainError("SH-PREFIX-4000", "invalid prefix")

	// ErrPrefixConflict indicates the prefix is already registered to another listener.
	ErrPrefixConflict = NewDomainError("SH-PREFIX-4090", "prefix already in use")

	// ErrInvalidListener indicates a listener whose type cannot be compared for identity.
	ErrInvalidListener = NewDomainError("SH-PREFIX-4001", "listener type is not comparable")
)

// ============================================================================
// Endpoint Errors (ENDPOINT)
// ============================================================================

var (
	// ErrEndpointConflict indicates the address and port are served with the other scheme.
	ErrEndpointConflict = NewDomainError("SH-ENDPOINT-4090", "endpoint already in use with a different scheme")

	// ErrEndpointClosed indicates the endpoint has been closed.
	ErrEndpointClosed = NewDomainError("SH-ENDPOINT-4100", "endpoint closed")

	// ErrEndpointBind indicates the listening socket could not be created.
	ErrEndpointBind = NewDomainError("SH-ENDPOINT-5000", "cannot bind endpoint")

	// ErrCloseFault indicates the listening socket failed to close.
	ErrCloseFault = NewDomainError("SH-ENDPOINT-5001", "cannot close listening socket")
)

// ============================================================================
// Socket Errors (SOCKET)
// These never reach callers; they classify accept loop faults in logs.
// ============================================================================

var (
	// ErrSocketAcceptFault indicates the listening socket was reset while accepting.
	ErrSocketAcceptFault = NewDomainError("SH-SOCKET-5001", "listening socket reset")

	// ErrSocketAcceptError indicates a transient accept failure.
	ErrSocketAcceptError = NewDomainError("SH-SOCKET-5002", "accept failed")
)

// ============================================================================
// Certificate Errors (CERT)
// ============================================================================

var (
	// ErrCertificateLoad indicates the certificate or key could not be loaded.
	ErrCertificateLoad = NewDomainError("SH-CERT-5000", "cannot load certificate")
)
