package dedupe

type options struct {
	maxSize int
}

// Option applies a configuration option to the in-memory deduper.
type Option func(*options)

// WithMaxSize sets the maximum number of keys kept in memory.
// Zero or negative keeps every key.
func WithMaxSize(maxSize int) Option {
	return func(o *options) {
		o.maxSize = maxSize
	}
}
