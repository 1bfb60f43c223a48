// Package errs defines the closed error taxonomy shared by every ndb
// subsystem. It exists so internal packages (wal, segment, hnsw, ...) can
// return the same tagged-union error the top-level ndb package re-exports,
// without importing ndb itself.
package errs

import "fmt"

// Kind enumerates the error classes named by the external error surface.
type Kind int

const (
	KindUnknown Kind = iota
	KindIO
	KindCorruption
	KindInvalidArgument
	KindNotFound
	KindWrongDimension
	KindCollectionLocked
	KindCollectionExists
	KindCollectionNotFound
	KindSerialization
	KindWAL
	KindChecksumMismatch
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindCorruption:
		return "corruption"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindWrongDimension:
		return "wrong_dimension"
	case KindCollectionLocked:
		return "collection_locked"
	case KindCollectionExists:
		return "collection_exists"
	case KindCollectionNotFound:
		return "collection_not_found"
	case KindSerialization:
		return "serialization"
	case KindWAL:
		return "wal"
	case KindChecksumMismatch:
		return "checksum_mismatch"
	default:
		return "unknown"
	}
}

// Error is the closed tagged union returned across every public operation.
// Fields beyond Kind and Message are populated selectively depending on
// Kind, mirroring the distinct variants of the reference error enum.
type Error struct {
	Kind    Kind
	Message string

	Path     string
	Offset   int64
	Field    string
	ID       string
	Expected uint64
	Got      uint64
	Seq      uint64

	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindIO:
		return fmt.Sprintf("io error at %s: %s: %v", e.Path, e.Message, e.Err)
	case KindCorruption:
		return fmt.Sprintf("corruption in %s at offset %d: %s", e.Path, e.Offset, e.Message)
	case KindInvalidArgument:
		return fmt.Sprintf("invalid argument for field %q: %s", e.Field, e.Message)
	case KindNotFound:
		return fmt.Sprintf("not found: %s", e.ID)
	case KindWrongDimension:
		return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
	case KindCollectionLocked:
		return fmt.Sprintf("collection %q is locked by another process", e.ID)
	case KindCollectionExists:
		return fmt.Sprintf("collection %q already exists", e.ID)
	case KindCollectionNotFound:
		return fmt.Sprintf("collection %q not found", e.ID)
	case KindSerialization:
		return fmt.Sprintf("serialization error: %s", e.Message)
	case KindWAL:
		return fmt.Sprintf("WAL error at sequence %d: %s", e.Seq, e.Message)
	case KindChecksumMismatch:
		return fmt.Sprintf("checksum mismatch in %s: expected %016x, got %016x", e.Path, e.Expected, e.Got)
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so
// errors.Is(err, sentinel) matches any *Error of the sentinel's Kind.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

func IO(path, context string, err error) *Error {
	return &Error{Kind: KindIO, Path: path, Message: context, Err: err}
}

func Corruption(path string, offset int64, message string) *Error {
	return &Error{Kind: KindCorruption, Path: path, Offset: offset, Message: message}
}

func InvalidArgument(field, reason string) *Error {
	return &Error{Kind: KindInvalidArgument, Field: field, Message: reason}
}

func NotFound(id string) *Error {
	return &Error{Kind: KindNotFound, ID: id}
}

func WrongDimension(expected, got int) *Error {
	return &Error{Kind: KindWrongDimension, Expected: uint64(expected), Got: uint64(got)}
}

func CollectionLocked(name string) *Error {
	return &Error{Kind: KindCollectionLocked, ID: name}
}

func CollectionExists(name string) *Error {
	return &Error{Kind: KindCollectionExists, ID: name}
}

func CollectionNotFound(name string) *Error {
	return &Error{Kind: KindCollectionNotFound, ID: name}
}

func Serialization(message string) *Error {
	return &Error{Kind: KindSerialization, Message: message}
}

func WAL(seq uint64, message string) *Error {
	return &Error{Kind: KindWAL, Seq: seq, Message: message}
}

func ChecksumMismatch(path string, expected, got uint64) *Error {
	return &Error{Kind: KindChecksumMismatch, Path: path, Expected: expected, Got: got}
}

// Of reports the Kind of err if it is (or wraps) an *Error, and ok=false
// otherwise.
func Of(err error) (Kind, bool) {
	var e *Error
	if ok := as(err, &e); ok {
		return e.Kind, true
	}
	return KindUnknown, false
}

func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
