package domain

import "errors"

// ErrNotFound is returned by store and service functions when the requested
// record does not exist or is not visible to the caller.
// Handlers should map this to HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrValidation is returned by service functions when input fails business
// rule validation (e.g. missing title, negative cost).
// Handlers should map this to HTTP 422 Unprocessable Entity.
var ErrValidation = errors.New("validation error")

// ErrNotAuthenticated is returned when no caller id is available.
// It blocks every write. Handlers should map this to HTTP 401.
var ErrNotAuthenticated = errors.New("not authenticated")

// ErrConflict is returned when a write would break a uniqueness rule,
// such as a share code already held by another plan.
// Handlers should map this to HTTP 409.
var ErrConflict = errors.New("conflict")

// ErrImagePersistence marks a failed image side-channel write. It is never
// returned to callers of the orchestrators: the record is saved without an
// image and the failure is logged.
var ErrImagePersistence = errors.New("image persistence failed")

// ErrReplication marks a failed push or pull against the remote store.
// It is only ever logged and counted; the local write stays authoritative.
var ErrReplication = errors.New("replication failed")
