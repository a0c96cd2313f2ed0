package sqlsource

import "github.com/okian/rostersync/pkg/logger"

type config struct {
	buffer int
	log    logger.Logger
}

// Option configures a Source.
type Option func(*config)

// WithSubscriberBuffer sets the per-subscriber change buffer.
func WithSubscriberBuffer(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}
