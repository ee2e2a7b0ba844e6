package domain

import (
	"errors"
	"fmt"
)

// Error type tags used by retry policies to classify failures without
// depending on concrete types.
const (
	ErrorTypeCredentialValidation = "credential_validation"
	ErrorTypeTransientConnector   = "transient_connector"
	ErrorTypeApplication          = "application"
)

// CredentialValidationError is non-retryable and surfaces the
// adapter's reason to the tenant. No secret is ever persisted after
// one of these.
type CredentialValidationError struct {
	Kind   ConnectorKind
	Reason string
}

func (e *CredentialValidationError) Error() string {
	return fmt.Sprintf("credential validation failed for %s: %s", e.Kind, e.Reason)
}

func NewCredentialValidationError(kind ConnectorKind, reason string) error {
	return &CredentialValidationError{Kind: kind, Reason: reason}
}

// TransientConnectorError wraps a failure worth retrying, such as a
// network timeout or a rate limit.
type TransientConnectorError struct {
	Kind ConnectorKind
	Op   string
	Err  error
}

func (e *TransientConnectorError) Error() string {
	return fmt.Sprintf("transient %s failure on %s: %v", e.Kind, e.Op, e.Err)
}

func (e *TransientConnectorError) Unwrap() error {
	return e.Err
}

func NewTransientConnectorError(kind ConnectorKind, op string, err error) error {
	return &TransientConnectorError{Kind: kind, Op: op, Err: err}
}

// ApplicationError is a business-rule violation. It aborts the
// workflow immediately and is recorded verbatim in the execution's
// error message.
type ApplicationError struct {
	Code    string
	Message string
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewApplicationError(code string, message string) error {
	return &ApplicationError{Code: code, Message: message}
}

// ErrorType classifies an error for retry decisions. Unknown errors
// are treated as transient because the engine retries any ambiguous
// failure.
func ErrorType(err error) string {
	var credentialErr *CredentialValidationError
	if errors.As(err, &credentialErr) {
		return ErrorTypeCredentialValidation
	}

	var applicationErr *ApplicationError
	if errors.As(err, &applicationErr) {
		return ErrorTypeApplication
	}

	return ErrorTypeTransientConnector
}
