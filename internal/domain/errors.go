package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrStorage      = errors.New("storage failure")
	ErrSubscription = errors.New("subscription failed")

	ErrRoomNotFound       = errors.New("room not found")
	ErrSubscriptionClosed = errors.New("subscription closed")
	ErrSlowSubscriber     = errors.New("subscriber fell too far behind")
)

// ValidationError reports input rejected at the service boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// StorageError reports a persistence failure. No message id was consumed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// SubscriptionError reports that a live feed could not be opened for a room.
type SubscriptionError struct {
	RoomID string
	Err    error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscribe to room %s: %v", e.RoomID, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

func (e *SubscriptionError) Is(target error) bool {
	return target == ErrSubscription
}

// NewStorageError wraps err unless it is already a StorageError.
func NewStorageError(op string, err error) error {
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
