package remote

import "errors"

// Sentinel kinds for remote source errors.
var (
	ErrUnknownCollection = errors.New("unknown collection")
	ErrNotFound          = errors.New("record not found")
	ErrConflict          = errors.New("record already exists")
	ErrMissingID         = errors.New("record has no id")
	ErrClosed            = errors.New("source closed")
)
