package errors

import (
	"errors"
	"fmt"
)

// Code classifies call failures.
type Code string

const (
	CodeNegotiation       Code = "NEGOTIATION_FAILED"
	CodeMediaAcquisition  Code = "MEDIA_ACQUISITION_FAILED"
	CodeTransport         Code = "TRANSPORT_FAILED"
	CodeProtocolViolation Code = "PROTOCOL_VIOLATION"
	CodeSignaling         Code = "SIGNALING_FAILED"
	CodeInternal          Code = "INTERNAL_ERROR"
)

// Severity drives the session-level error policy.
type Severity int

const (
	// SeverityFatal tears down the whole session.
	SeverityFatal Severity = iota
	// SeverityDegrade keeps the session alive with the affected media
	// flags forced off.
	SeverityDegrade
	// SeverityRecoverable is logged; the failing resource stays failed
	// but nothing cascades.
	SeverityRecoverable
	// SeverityIgnore is logged and the triggering input discarded.
	SeverityIgnore
)

func (s Severity) String() string {
	switch s {
	case SeverityFatal:
		return "fatal"
	case SeverityDegrade:
		return "degrade"
	case SeverityRecoverable:
		return "recoverable"
	case SeverityIgnore:
		return "ignore"
	default:
		return "unknown"
	}
}

// CallError is a classified call failure with code, severity and cause.
type CallError struct {
	Code     Code
	Severity Severity
	Message  string
	Cause    error
	Context  map[string]interface{}
}

func (e *CallError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CallError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *CallError) WithContext(key string, value interface{}) *CallError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func newError(code Code, severity Severity, message string, cause error) *CallError {
	return &CallError{
		Code:     code,
		Severity: severity,
		Message:  message,
		Cause:    cause,
		Context:  make(map[string]interface{}),
	}
}

// NewNegotiationError marks a capability load failure; always fatal.
func NewNegotiationError(message string, cause error) *CallError {
	return newError(CodeNegotiation, SeverityFatal, message, cause)
}

// NewMediaAcquisitionError marks a local capture failure; the session
// continues with the affected kinds off.
func NewMediaAcquisitionError(message string, cause error) *CallError {
	return newError(CodeMediaAcquisition, SeverityDegrade, message, cause)
}

// NewTransportError marks a handshake failure scoped to one transport.
func NewTransportError(message string, cause error) *CallError {
	return newError(CodeTransport, SeverityRecoverable, message, cause)
}

// NewProtocolViolation marks a malformed or unexpected inbound event.
func NewProtocolViolation(message string, cause error) *CallError {
	return newError(CodeProtocolViolation, SeverityIgnore, message, cause)
}

// NewSignalingError marks an unrecoverable signaling channel failure.
func NewSignalingError(message string, cause error) *CallError {
	return newError(CodeSignaling, SeverityFatal, message, cause)
}

// GetCallError extracts a CallError from the error chain, or nil.
func GetCallError(err error) *CallError {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}

// SeverityOf returns the classified severity; unclassified errors are
// treated as fatal so nothing escapes the session policy unnoticed.
func SeverityOf(err error) Severity {
	if ce := GetCallError(err); ce != nil {
		return ce.Severity
	}
	return SeverityFatal
}
