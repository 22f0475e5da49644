package domain

import "errors"

var (
	// ErrValidation is returned for drafts with an empty title or a location
	// that cannot be normalized.
	ErrValidation = errors.New("Title and URL are required.")

	// ErrNotOwner is returned when a delete targets another identity's record.
	ErrNotOwner = errors.New("bookmark belongs to another user")

	// ErrNoIdentity is returned when an operation needs an active identity.
	ErrNoIdentity = errors.New("no active identity")

	// ErrAddInFlight is returned when an add is rejected because another one
	// has not finished.
	ErrAddInFlight = errors.New("another add is in flight")
)
