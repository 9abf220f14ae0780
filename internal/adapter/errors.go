package adapter

import (
	"errors"
)

var (
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("resource not found")

	// ErrUnauthorized is returned when the remote rejects the attached token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNoToken is returned when a call is made with no token attached.
	ErrNoToken = errors.New("no access token attached")
)
