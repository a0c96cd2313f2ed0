package engine

type mutatorConfig struct {
	newID func() string
}

// MutatorOption configures a Mutator.
type MutatorOption func(*mutatorConfig)

// WithIDGenerator sets the id source for creates without an id.
func WithIDGenerator(fn func() string) MutatorOption {
	return func(c *mutatorConfig) {
		if fn != nil {
			c.newID = fn
		}
	}
}
