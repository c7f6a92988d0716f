package pagestore

import (
	"errors"
	"fmt"

	craftErrors "github.com/craft-ec/craftsql/core/errors"
)

// Sentinel errors every store error wraps, so callers can use errors.Is
// the way core/errors' typed errors do.
var (
	// ErrNotFoundSentinel marks a page absent from a store.
	ErrNotFoundSentinel = craftErrors.ErrNotFound
	// ErrStorageSentinel marks an I/O, serialization, protocol, or
	// integrity failure.
	ErrStorageSentinel = craftErrors.ErrInternal
)

// NotFoundError reports that cid does not exist in a store.
type NotFoundError struct {
	CID CID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("page not found: %s", e.CID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFoundSentinel
}

// ErrNotFound builds a NotFoundError for cid.
func ErrNotFound(cid CID) error {
	return &NotFoundError{CID: cid}
}

// StorageError reports an I/O, serialization, protocol, or integrity
// failure. CID mismatches after a remote fetch use this kind.
type StorageError struct {
	Message string
	Err     error
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("storage error: %s", e.Message)
}

func (e *StorageError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrStorageSentinel, e.Err}
	}
	return []error{ErrStorageSentinel}
}

// ErrStorage builds a StorageError with the given message.
func ErrStorage(message string) error {
	return &StorageError{Message: message}
}

// ErrStorageWrap builds a StorageError wrapping an underlying I/O error.
func ErrStorageWrap(message string, err error) error {
	return &StorageError{Message: message, Err: err}
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
