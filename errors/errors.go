// Package errors defines the error kinds fatmod's operations can raise.
//
// A Code is itself an error (mirroring the teacher's string-const errno
// shim), so callers can either print it directly or wrap it with a detail
// message via WithMessage/WrapError. Both builders return a value that
// still compares equal to its Code under errors.Is, so callers can branch
// on the failure kind without string matching.
package errors

import "fmt"

// Code identifies one of the error kinds spec.md §7 names.
type Code string

const (
	IOOpen           Code = "could not open backing store"
	IOShort          Code = "short read from backing store"
	IOWrite          Code = "durable write to backing store failed"
	InvalidGeometry  Code = "boot sector geometry is invalid"
	InvalidArguments Code = "invalid arguments"
	InvalidName      Code = "name is not a valid 8.3 short name"
	InvalidOffset    Code = "offset exceeds current file size"
	NotFound         Code = "file not found"
	AlreadyExists    Code = "file already exists"
	DirectoryFull    Code = "root directory is full"
	NoSpace          Code = "no free cluster available"
	BadChain         Code = "fat chain is corrupt"
)

// Error implements the error interface so a bare Code can be returned and
// printed without further wrapping.
func (c Code) Error() string {
	return string(c)
}

// WithMessage returns an error carrying both c's text and an additional
// detail message. The result still satisfies errors.Is(result, c).
func (c Code) WithMessage(message string) error {
	return &wrapped{
		code:    c,
		message: fmt.Sprintf("%s: %s", string(c), message),
	}
}

// WrapError returns an error carrying both c's text and the text of an
// underlying error. The result still satisfies errors.Is(result, c) and
// errors.Unwrap(result) == err.
func (c Code) WrapError(err error) error {
	return &wrapped{
		code:    c,
		message: fmt.Sprintf("%s: %s", string(c), err.Error()),
		cause:   err,
	}
}

type wrapped struct {
	code    Code
	message string
	cause   error
}

func (w *wrapped) Error() string {
	return w.message
}

func (w *wrapped) Unwrap() error {
	return w.cause
}

// Is lets errors.Is(err, SomeCode) succeed against a wrapped error, not
// just a bare Code.
func (w *wrapped) Is(target error) bool {
	code, ok := target.(Code)
	return ok && code == w.code
}
