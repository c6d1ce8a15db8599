package audio

// Option configures Analyze.
type Option func(*analyzer)

// WithFrameMS sets the analysis frame length in milliseconds.
func WithFrameMS(ms int) Option {
	return func(a *analyzer) {
		if ms > 0 {
			a.frameMS = ms
		}
	}
}

// WithSilenceThresholdDB sets the dBFS level below which a frame is silent.
func WithSilenceThresholdDB(db float64) Option {
	return func(a *analyzer) {
		if db < 0 {
			a.thresholdDB = db
		}
	}
}

// WithMinSilenceMS sets the shortest silent run reported as silence.
func WithMinSilenceMS(ms int) Option {
	return func(a *analyzer) {
		if ms >= 0 {
			a.minSilenceMS = ms
		}
	}
}
