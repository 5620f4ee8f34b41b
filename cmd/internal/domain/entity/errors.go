package entity

import "errors"

// Errors returned by every repository implementation, independent of the
// backing store.
var (
	ErrSlotTaken  = errors.New("an active appointment already holds this time")
	ErrEmailTaken = errors.New("an account with this email already exists")
	ErrStaleWrite = errors.New("record changed since it was read")
)
