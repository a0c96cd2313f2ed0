package service

import "errors"

var (
	// ErrNotStarted is returned by operations that need a running service.
	ErrNotStarted = errors.New("service not started")
	// ErrSubscribe wraps a failure to open the change subscription.
	ErrSubscribe = errors.New("subscribe to remote changes")
)
