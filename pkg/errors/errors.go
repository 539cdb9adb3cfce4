package errors

import (
	"errors"
	"fmt"
)

// New creates a new error with the given message. The message is formatted
// with the optional arguments.
func New(msg string, args ...interface{}) error {
	if len(args) == 0 {
		return errors.New(msg)
	}
	return fmt.Errorf(msg, args...)
}

// contextError annotates an error with a short description of what was
// being attempted when it occurred.
type contextError struct {
	context string
	err     error
}

func (err contextError) Error() string {
	return fmt.Sprintf("%s: %s", err.context, err.err)
}

func (err contextError) Unwrap() error {
	return err.err
}

// WithContext wraps err with a description of the operation that failed.
// The resulting message reads like `context: cause`.
func WithContext(err error, context string) error {
	if err == nil {
		return nil
	}
	return contextError{context: context, err: err}
}

// RootCause returns the innermost error wrapped by WithContext.
func RootCause(err error) error {
	for {
		ctxErr, ok := err.(contextError)
		if !ok {
			return err
		}
		err = ctxErr.err
	}
}

// Is and As are re-exported so that callers only need to import this
// package.
var (
	Is = errors.Is
	As = errors.As
)

// friendlyMessager is implemented by errors whose messages are meant to be
// shown directly to the user.
type friendlyMessager interface {
	FriendlyMessage() string
}

// FriendlyError is an error whose message is written for the user rather
// than for debugging.
type FriendlyError struct {
	msg string
}

// NewFriendlyError creates a FriendlyError with the formatted message.
func NewFriendlyError(msg string, args ...interface{}) error {
	return FriendlyError{msg: fmt.Sprintf(msg, args...)}
}

func (err FriendlyError) Error() string {
	return err.msg
}

// FriendlyMessage returns the user-facing message.
func (err FriendlyError) FriendlyMessage() string {
	return err.msg
}

// GetPrintableMessage returns the friendly message of the root cause if it
// has one. Otherwise, it returns the full error chain.
func GetPrintableMessage(err error) string {
	if friendly, ok := RootCause(err).(friendlyMessager); ok {
		return friendly.FriendlyMessage()
	}
	return err.Error()
}
