package ndb

import "github.com/xDarkicex/ndb/internal/errs"

// Error is the tagged union returned by every operation in this
// package. It is a type alias for the internal error type so that
// callers never have to import internal/errs directly.
type Error = errs.Error

// ErrorKind enumerates the classes of Error.
type ErrorKind = errs.Kind

// Error kinds, re-exported so callers can compare against ErrorOf's
// result without importing internal/errs.
const (
	KindUnknown            = errs.KindUnknown
	KindIO                 = errs.KindIO
	KindCorruption         = errs.KindCorruption
	KindInvalidArgument    = errs.KindInvalidArgument
	KindNotFound           = errs.KindNotFound
	KindWrongDimension     = errs.KindWrongDimension
	KindCollectionLocked   = errs.KindCollectionLocked
	KindCollectionExists   = errs.KindCollectionExists
	KindCollectionNotFound = errs.KindCollectionNotFound
	KindSerialization      = errs.KindSerialization
	KindWAL                = errs.KindWAL
	KindChecksumMismatch   = errs.KindChecksumMismatch
)

// ErrorOf reports the ErrorKind of err if it is, or wraps, an *Error.
func ErrorOf(err error) (ErrorKind, bool) {
	return errs.Of(err)
}

// ErrCollectionClosed is returned by every operation on a Collection
// after Close has been called.
var ErrCollectionClosed = &Error{Kind: errs.KindInvalidArgument, Field: "collection", Message: "collection is closed"}
