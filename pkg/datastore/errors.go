package datastore

import (
	"errors"
	"strconv"
)

var (
	// ErrConnect is matched by every ConnectError.
	ErrConnect = errors.New("backend connect failed")

	// ErrUnknownScheme is returned when no driver is registered for a connection URL.
	ErrUnknownScheme = errors.New("unknown connection scheme")

	// ErrUnsupported is returned when neither the active nor the default handle
	// exposes the requested capability.
	ErrUnsupported = errors.New("operation not supported by handle")

	// ErrNoBackend is returned when there is nothing configured to connect to.
	ErrNoBackend = errors.New("no backend configured")
)

// ConnectError reports a failed attempt to open a handle for one backend.
type ConnectError struct {
	Index int
	Err   error
}

func (e *ConnectError) Error() string {
	return "backend " + strconv.Itoa(e.Index) + ": connect failed: " + e.Err.Error()
}

func (e *ConnectError) Unwrap() []error {
	return []error{ErrConnect, e.Err}
}
