package domain

import "errors"

// Sentinel validation errors surfaced by Job.Validate and friends. These are
// wrapped into torcerr.Kind-classified errors by the callers that know the
// request context (torcerr.InvalidArgument etc).
var (
	ErrEmptyCommand = errors.New("job command cannot be empty")
	ErrEmptyName    = errors.New("name cannot be empty")
)
