package llm

import (
	"errors"
	"fmt"
)

// Reason classifies why a generation did not produce content.
type Reason string

const (
	// ReasonNoCredential means the pool had no credential for the category.
	ReasonNoCredential Reason = "no-credential"

	// ReasonUpstream means the host failed or returned nothing usable.
	ReasonUpstream Reason = "upstream-error"

	// ReasonTimeout means a single attempt exceeded its time bound.
	ReasonTimeout Reason = "timeout"
)

var (
	// ErrNoCredential is wrapped by failures with ReasonNoCredential.
	ErrNoCredential = errors.New("no credential configured")

	// ErrNoContent means the host answered but the output was empty or too short.
	ErrNoContent = errors.New("upstream returned no usable content")

	// ErrUnsupportedKind means the configured provider cannot produce the requested kind.
	ErrUnsupportedKind = errors.New("provider does not support this kind")
)

// Failure is the error form of an unsuccessful generation.
type Failure struct {
	Reason Reason

	// AttemptsExhausted is set when every credential in rotation was tried.
	AttemptsExhausted bool

	// Attempts is the number of upstream attempts made.
	Attempts int

	// Err is the last underlying cause.
	Err error
}

func (f *Failure) Error() string {
	switch {
	case f.AttemptsExhausted:
		return fmt.Sprintf("%s after %d attempts: %v", f.Reason, f.Attempts, f.Err)
	case f.Err != nil:
		return fmt.Sprintf("%s: %v", f.Reason, f.Err)
	default:
		return string(f.Reason)
	}
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// ReasonOf extracts the failure reason from err, defaulting to ReasonUpstream.
func ReasonOf(err error) Reason {
	var f *Failure
	if errors.As(err, &f) {
		return f.Reason
	}
	return ReasonUpstream
}

// Error types for classifying single-attempt errors.

// TransientError represents a temporary error that may succeed later or with another credential.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps an error as transient.
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// FatalError represents an error that will repeat for this request no matter how often it is sent.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// NewFatalError wraps an error as fatal.
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// IsTransient returns true if the error is transient.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal returns true if the error is fatal.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}
