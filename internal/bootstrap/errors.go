package bootstrap

import "errors"

// Stage failures. Callers wrap the underlying cause as well, so errors.Is
// matches both the stage and the cause.
var (
	ErrFetchFailed       = errors.New("bootstrap fetch failed")
	ErrMappingFailed     = errors.New("bootstrap mapping failed")
	ErrPersistenceFailed = errors.New("bootstrap persistence failed")
	ErrRunInProgress     = errors.New("bootstrap run already in progress")
)
