package listing

import "errors"

var (
	// ErrListingNotFound is returned when the requested listing does not exist.
	ErrListingNotFound = errors.New("listing not found")

	// ErrInvalidListing is returned when listing fields fail validation.
	ErrInvalidListing = errors.New("invalid listing")

	// ErrAccessDenied is returned when the caller does not own the listing.
	ErrAccessDenied = errors.New("access denied")

	// ErrDatabaseError is returned when a database operation fails.
	ErrDatabaseError = errors.New("database error")
)
