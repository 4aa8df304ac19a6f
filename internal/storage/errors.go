package storage

import "errors"

var (
	// ErrNotFound means the photo does not exist (already deleted, usually).
	ErrNotFound = errors.New("photo not found")

	// ErrStorageUnavailable wraps transient transport failures; callers
	// should retry with backoff rather than surface it as fatal.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidImage means the uploaded bytes are not a decodable image.
	// Permanent: retrying the same upload cannot succeed.
	ErrInvalidImage = errors.New("invalid image data")
)
