package acquire

import (
	"errors"
	"fmt"
)

// AcquireError represents a domain-specific error
type AcquireError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AcquireError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AcquireError) Unwrap() error {
	return e.Cause
}

// Error codes
const (
	ErrCodeInvalidIndex    = "INVALID_INDEX"
	ErrCodeUnknownNode     = "UNKNOWN_NODE"
	ErrCodeUnknownToken    = "UNKNOWN_TOKEN"
	ErrCodeTimeout         = "TIMEOUT"
	ErrCodeStopping        = "STOPPING"
	ErrCodeNotRunning      = "NOT_RUNNING"
	ErrCodeAlreadyRunning  = "ALREADY_RUNNING"
	ErrCodeUseAfterDestroy = "USE_AFTER_DESTROY"
	ErrCodeBackend         = "BACKEND_ERROR"
)

// NewAcquireError creates a new acquire error
func NewAcquireError(code, message string, cause error) *AcquireError {
	return &AcquireError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsCode reports whether err is an AcquireError with the given code.
func IsCode(err error, code string) bool {
	var ae *AcquireError
	return errors.As(err, &ae) && ae.Code == code
}

// IsTimeout reports whether err is a fetch deadline expiry. Distinguishable
// from IsStopping so callers can tell hardware stalls from intentional
// shutdown.
func IsTimeout(err error) bool { return IsCode(err, ErrCodeTimeout) }

// IsStopping reports whether err is a cooperative-shutdown abort.
func IsStopping(err error) bool { return IsCode(err, ErrCodeStopping) }
