package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrNoSnapshots       = errors.New("no snapshots fetched")
	ErrProviderError     = errors.New("provider returned error payload")
	ErrMalformedSnapshot = errors.New("malformed snapshot")
	ErrRateLimited       = errors.New("rate limited")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrLockHeld          = errors.New("lock already held")
	ErrUnavailable       = errors.New("backend not configured")
)
