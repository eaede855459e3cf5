package engine

import "errors"

// Failure classes. Handlers and callers classify with errors.Is; lower
// layers wrap these with detail.
var (
	ErrNotFound        = errors.New("not found")
	ErrNotAuthorized   = errors.New("not authorized")
	ErrSyncFailed      = errors.New("sync failed")
	ErrDeployFailed    = errors.New("deployment failed")
	ErrUnreachable     = errors.New("instance unreachable")
	ErrServiceMismatch = errors.New("service mismatch")
)
