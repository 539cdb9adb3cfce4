package errors

import (
	"fmt"
)

// MissingFieldError represents a missing required field.
type MissingFieldError struct {
	Field string
}

func (err MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", err.Field)
}

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// FetchErrorKind classifies a FetchError.
type FetchErrorKind string

// ExhaustedRetries means every attempt allowed by the retry policy failed.
const ExhaustedRetries FetchErrorKind = "exhausted retries"

// FetchError is returned when a remote request could not be completed.
// It aborts the whole crawl.
type FetchError struct {
	Kind     FetchErrorKind
	URL      string
	Attempts int

	// Last is the failure of the final attempt.
	Last error
}

func (err FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s after %d attempts: %s",
		err.URL, err.Kind, err.Attempts, err.Last)
}

func (err FetchError) Unwrap() error {
	return err.Last
}

// SchemaErrorKind classifies a SchemaError.
type SchemaErrorKind string

const (
	// DuplicateName means two children of the same kind share a name
	// within one folder.
	DuplicateName SchemaErrorKind = "duplicate name"

	// MalformedListing means a remote response or snapshot entry could
	// not be interpreted as a folder or file.
	MalformedListing SchemaErrorKind = "malformed listing"
)

// SchemaError is returned when remote data can't be represented by the
// tree model.
type SchemaError struct {
	Kind SchemaErrorKind

	// Path is the server relative path of the folder being built.
	Path string

	// Name is the offending entry, if any.
	Name string

	Detail string
}

func (err SchemaError) Error() string {
	msg := fmt.Sprintf("%s in %q", err.Kind, err.Path)
	if err.Name != "" {
		msg += fmt.Sprintf(": %q", err.Name)
	}
	if err.Detail != "" {
		msg += fmt.Sprintf(" (%s)", err.Detail)
	}
	return msg
}

// LocalStateErrorKind classifies a LocalStateError.
type LocalStateErrorKind string

const (
	// Unreadable means the local path exists but couldn't be stat'ed.
	Unreadable LocalStateErrorKind = "unreadable"

	// NotAFile means the local path of a remote file is a directory.
	NotAFile LocalStateErrorKind = "not a regular file"
)

// LocalStateError is returned when the local copy of a remote file can't
// be inspected. Guessing its state risks skipping an update, so planning
// stops.
type LocalStateError struct {
	Kind LocalStateErrorKind
	Path string
	Err  error
}

func (err LocalStateError) Error() string {
	if err.Err == nil {
		return fmt.Sprintf("local file %q: %s", err.Path, err.Kind)
	}
	return fmt.Sprintf("local file %q: %s: %s", err.Path, err.Kind, err.Err)
}

func (err LocalStateError) Unwrap() error {
	return err.Err
}
