package model

import "errors"

var (
	// ErrNotFound is returned when a referenced conversation, message,
	// participant or queue item does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned for an illegal queue-state change,
	// most commonly any mutation of a CLOSED item.
	ErrInvalidTransition = errors.New("invalid transition")
)
