package storage

import "errors"

var (
	// ErrTrackingRecordNotFound is returned when no record exists for a request id
	ErrTrackingRecordNotFound = errors.New("tracking record not found")

	// ErrDuplicateRequestID is returned when a request id is inserted twice
	ErrDuplicateRequestID = errors.New("duplicate request id")

	// ErrRecordNotPending is returned when a write targets a record that already reached a terminal status
	ErrRecordNotPending = errors.New("tracking record is not pending")
)

// ErrEntityNotFound is returned when no registry entity matches an id
var ErrEntityNotFound = errors.New("entity not found")
