// Package hostfs defines the contract shared by every backend the VFS
// dispatcher can route to, and the error taxonomy backends report through.
package hostfs

import (
	"errors"
	"fmt"
)

// Kind classifies a backend failure so the dispatcher can map it onto a
// host error code without inspecting backend-specific error types.
type Kind uint8

const (
	// KindIO covers anything else from the backing store.
	KindIO Kind = iota
	KindNotFound
	KindNotADirectory
	KindExists
	KindNotEmpty
	KindPermission
	KindBadFD
	KindInvalidArgument
	KindNoBackend
	KindInvalidName
	// KindCrossDevice is returned by Rename when the source and destination
	// straddle two physically distinct trees the backend cannot move an
	// entry between atomically (e.g. host EXDEV).
	KindCrossDevice
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not-found"
	case KindNotADirectory:
		return "not-a-directory"
	case KindExists:
		return "exists"
	case KindNotEmpty:
		return "not-empty"
	case KindPermission:
		return "permission"
	case KindBadFD:
		return "bad-fd"
	case KindInvalidArgument:
		return "invalid-argument"
	case KindNoBackend:
		return "no-backend"
	case KindInvalidName:
		return "invalid-name"
	case KindCrossDevice:
		return "cross-device"
	default:
		return "io"
	}
}

// Error is a structured backend error. It follows the teacher corpus's
// preferred shape for error categories: a typed struct per kind with
// Error()/Unwrap(), rather than bare sentinel values, so callers can recover
// the operation and path that failed.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %s: %s", e.Op, e.Path, e.Kind, e.msg())
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.msg())
}

func (e *Error) msg() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a structured backend error.
func New(kind Kind, op, path string, err error) error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// KindOf extracts the Kind from err, defaulting to KindIO for anything the
// backend did not classify itself (e.g. an unwrapped os.PathError).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindIO
}
