package errors

import "errors"

// Sentinels for relay errors.
var (
	ErrValidation    = errors.New("validation error")
	ErrMisconfigured = errors.New("service misconfigured")
	ErrProvider      = errors.New("provider failure")
	ErrConflict      = errors.New("conflict")
)

// Is reports whether err is one of the sentinels.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Error pairs a sentinel kind with a message that is safe to return to callers.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

// New builds an error of the given kind with a public message.
func New(kind error, message string) error {
	return &Error{Kind: kind, Message: message}
}

// WithCause builds an error of the given kind that also wraps cause.
func WithCause(kind error, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Kind.Error() + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Kind.Error() + ": " + e.Message
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

// PublicMessage returns the caller-facing message carried by err, or err.Error()
// when there is none.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
