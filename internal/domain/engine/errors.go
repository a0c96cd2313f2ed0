package engine

import "errors"

// Sentinel kinds for replica engine errors.
var (
	ErrBootstrap         = errors.New("bootstrap failed")
	ErrWrite             = errors.New("remote write failed")
	ErrBulkPartial       = errors.New("bulk update partially failed")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrTornDown          = errors.New("replica torn down")
)
