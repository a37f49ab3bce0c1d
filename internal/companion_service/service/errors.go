package service

import "errors"

// Failure taxonomy for task execution. Transient failures (network,
// timeout, upstream unavailable) are retried by the Controller;
// permanent failures (bad payload, unknown user) fail immediately
// without consuming retry budget. Errors that carry no classification
// are treated as transient, since most unclassified failures here are
// infrastructure ones.

var (
	// ErrUserNotFound is returned when a task references an unknown user.
	ErrUserNotFound = errors.New("user not found")
	// ErrValidation is returned for malformed or empty task input.
	ErrValidation = errors.New("validation error")
)

// PermanentError marks a failure that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so the retry controller fails it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err is classified as permanent.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
