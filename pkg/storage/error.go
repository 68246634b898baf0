package storage

import (
	"errors"
	"fmt"
)

// ErrEmptyID is returned when an operation is given an empty conversation id.
var ErrEmptyID = errors.New("empty conversation id")

// StorageError wraps an I/O failure in a storage backend.
type StorageError struct {
	Op             string
	ConversationID string
	Err            error
}

func (e *StorageError) Error() string {
	if e.ConversationID == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.ConversationID, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewError builds a *StorageError.
func NewError(op, id string, err error) error {
	return &StorageError{Op: op, ConversationID: id, Err: err}
}
