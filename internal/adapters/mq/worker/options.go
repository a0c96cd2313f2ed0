package worker

import (
	"github.com/okian/rostersync/internal/domain/engine"
	"github.com/okian/rostersync/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithOutcomeHook registers fn to observe every handled event's outcome.
func WithOutcomeHook(fn func(engine.Outcome)) Option {
	return func(w *InMemoryWorker) {
		w.outcomes = fn
	}
}
