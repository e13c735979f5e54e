package ports

import "errors"

// Source-error taxonomy shared by messaging clients and the orchestrator.
// Transient errors skip the source for the current pass and retry later;
// permanent errors skip the source until registry membership changes.
var (
	ErrNotFound    = errors.New("entity not found")
	ErrRateLimited = errors.New("rate limited")
	ErrForbidden   = errors.New("access forbidden")
)

// IsTransient reports whether the source should be retried on a later pass.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsPermanent reports whether retrying is pointless until the registry changes.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden)
}
