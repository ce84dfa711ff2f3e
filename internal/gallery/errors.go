package gallery

import "errors"

var (
	// ErrRemoteUnavailable marks a failed remote list/get/put/delete. Callers degrade to the
	// local gallery rather than failing the request.
	ErrRemoteUnavailable = errors.New("remote gallery unavailable")

	// ErrPartialSync is reported when some keys could not be reconciled.
	ErrPartialSync = errors.New("gallery partially synchronized")

	// ErrInvalidName is returned when a display name sanitizes to nothing.
	ErrInvalidName = errors.New("invalid identity name")

	// ErrInvalidKey is returned for keys that are not plain file names.
	ErrInvalidKey = errors.New("invalid gallery key")

	// ErrNotFound is returned when a key is not present in the gallery.
	ErrNotFound = errors.New("gallery entry not found")
)
