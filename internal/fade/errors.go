package fade

import "errors"

var (
	// ErrNotFound is returned when an operation targets an entry id that does not exist.
	ErrNotFound = errors.New("entry not found")

	// ErrValidationFailed is returned for input that cannot be saved, such as an empty title.
	ErrValidationFailed = errors.New("validation failed")

	// ErrStorageUnavailable means the persistent store could not be opened or migrated.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrRemoteUnavailable wraps network, timeout and authorization failures during sync.
	ErrRemoteUnavailable = errors.New("remote unavailable")

	// ErrAttachmentIO wraps failures reading or writing attachment content.
	ErrAttachmentIO = errors.New("attachment io failed")

	// ErrSignedOut is returned by sync when no user is signed in.
	ErrSignedOut = errors.New("no signed-in user")
)
