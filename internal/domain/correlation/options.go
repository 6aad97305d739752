package correlation

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithMinOverlap sets how many shared grid samples a lag needs before its
// coefficient is reported.
func WithMinOverlap(n int) Option {
	return func(e *Engine) {
		if n >= 2 {
			e.minOverlap = n
		}
	}
}

// WithResolution fixes the resampling grid step instead of deriving it
// from the finest native spacing of the two inputs.
func WithResolution(step float64) Option {
	return func(e *Engine) {
		if step > 0 {
			e.resolution = step
		}
	}
}

// WithMaxGridPoints caps the grid size; the step is widened to stay under it.
func WithMaxGridPoints(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxGridPoints = n
		}
	}
}

// WithMaxLags caps the number of lags evaluated on each side of zero.
// Sweeps asking for more fail with ErrInvalidLagRange.
func WithMaxLags(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxLags = n
		}
	}
}

// MaxLags returns the per-side lag cap.
func (e *Engine) MaxLags() int { return e.maxLags }
