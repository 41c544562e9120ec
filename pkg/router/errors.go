package router

import "errors"

var (
	// ErrNoBackends is returned when a router is built without descriptors.
	ErrNoBackends = errors.New("no backends configured")

	// ErrIndexOutOfRange is returned for a backend index that does not exist.
	ErrIndexOutOfRange = errors.New("backend index out of range")

	// ErrNoCandidate is logged when every other backend is unavailable or full.
	ErrNoCandidate = errors.New("all backends full")

	// ErrSingleBackend is returned for multi-backend operations in pass-through mode.
	ErrSingleBackend = errors.New("router is running in single backend mode")

	// ErrProbeFailed is returned by Retry when the backend answered but its size could not be read.
	ErrProbeFailed = errors.New("backend size probe failed")
)
