package app

import "errors"

var (
	// ErrNotReady indicates the initial load has not completed in time or failed.
	ErrNotReady = errors.New("store not ready")
)
