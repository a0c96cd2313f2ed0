package inflight

// Option applies a configuration option to the tracker.
type Option func(*tracker)

// WithMode sets the suppression mode. Unknown modes fall back to Keyed.
func WithMode(mode Mode) Option {
	return func(t *tracker) {
		switch mode {
		case Global:
			t.mode = Global
		default:
			t.mode = Keyed
		}
	}
}
