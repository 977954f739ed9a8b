package domain

import "errors"

var (
	// ErrNotFound is returned by repositories when no row matches.
	ErrNotFound = errors.New("identity: not found")

	// ErrDuplicateEmail is returned when registering an email that exists.
	ErrDuplicateEmail = errors.New("identity: email already registered")
)
