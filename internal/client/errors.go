package client

import "errors"

// Every remote failure is mapped onto one of these sentinels at the
// point of invocation. Nothing is retried automatically; the user
// repeats the action.
var (
	// Transient connectivity or backend failure on any remote call.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// A room operation addressed a code that was never created.
	ErrRoomNotFound = errors.New("room not found")

	// The identity collaborator could not issue or refresh an identity.
	ErrAuthUnavailable = errors.New("identity service unavailable")

	// The object store rejected or failed an upload; no image placement
	// was committed.
	ErrUploadFailed = errors.New("upload failed")
)
