// Package correlation computes lagged Pearson correlation between proxy
// signals and extracts the peaks of the resulting curve.
//
// Shift convention: the coefficient reported at lag L compares
// reference(x) with target(x+L). A target that repeats the reference
// displaced by +k along the axis therefore peaks at lag +k.
package correlation

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/okian/strata/internal/domain/proxy"
)

// Default engine configuration constants.
const (
	defaultMinOverlap    = 5
	defaultMaxGridPoints = 100_000
	defaultMaxLags       = 100_000
	lagEpsilon           = 1e-9
)

// Point is one evaluated lag of a correlation curve.
type Point struct {
	Lag         float64
	Coefficient float64 // Pearson r in [-1, 1]
	Overlap     int     // shared grid samples behind the coefficient
}

// Engine evaluates correlation-vs-lag curves. It holds configuration only
// and is safe for concurrent use.
type Engine struct {
	minOverlap    int
	resolution    float64
	maxGridPoints int
	maxLags       int // per side of zero
}

// NewEngine creates an engine with configuration options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		minOverlap:    defaultMinOverlap,
		maxGridPoints: defaultMaxGridPoints,
		maxLags:       defaultMaxLags,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Correlate compares proxyKey between two series on the same axis for
// every lag in [-maxLag, +maxLag] stepped by lagStep. Lags with fewer than
// the minimum shared samples are left out of the curve.
func (e *Engine) Correlate(ctx context.Context, reference, target proxy.Series, proxyKey string, maxLag, lagStep float64) ([]Point, error) {
	if reference.Len() == 0 || target.Len() == 0 {
		return nil, proxy.ErrEmptySeries
	}
	if reference.Axis() != target.Axis() {
		return nil, fmt.Errorf("%w: %s vs %s", proxy.ErrAxisMismatch, reference.Axis(), target.Axis())
	}
	ref, err := newColumn(reference, proxyKey)
	if err != nil {
		return nil, fmt.Errorf("reference: %w", err)
	}
	tgt, err := newColumn(target, proxyKey)
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	return e.sweep(ctx, ref, tgt, maxLag, lagStep)
}

// CorrelateProxies runs the lag sweep between two proxies of one series,
// which exposes lead/lag relationships: a peak at positive lag means
// lagKey repeats leadKey's pattern further along the axis.
func (e *Engine) CorrelateProxies(ctx context.Context, s proxy.Series, leadKey, lagKey string, maxLag, lagStep float64) ([]Point, error) {
	if s.Len() == 0 {
		return nil, proxy.ErrEmptySeries
	}
	lead, err := newColumn(s, leadKey)
	if err != nil {
		return nil, err
	}
	lagging, err := newColumn(s, lagKey)
	if err != nil {
		return nil, err
	}
	return e.sweep(ctx, lead, lagging, maxLag, lagStep)
}

func (e *Engine) sweep(ctx context.Context, ref, tgt *column, maxLag, lagStep float64) ([]Point, error) {
	if !(lagStep > 0) || !(maxLag >= 0) || math.IsInf(maxLag, 0) || math.IsInf(lagStep, 0) {
		return nil, fmt.Errorf("%w: maxLag %g, lagStep %g", ErrInvalidLagRange, maxLag, lagStep)
	}
	r0, r1 := ref.span()
	t0, t1 := tgt.span()
	if r1 < t0 || t1 < r0 {
		return nil, fmt.Errorf("%w: [%g, %g] and [%g, %g] are disjoint", ErrInsufficientOverlap, r0, r1, t0, t1)
	}

	// Bound the sweep before converting to int: the ratio may be huge or +Inf.
	ratio := math.Floor(maxLag/lagStep + lagEpsilon)
	if math.IsNaN(ratio) || ratio > float64(e.maxLags) {
		return nil, fmt.Errorf("%w: maxLag %g / lagStep %g exceeds %d lags per side",
			ErrInvalidLagRange, maxLag, lagStep, e.maxLags)
	}
	n := int(ratio)

	step := e.gridStep(ref, tgt)
	curve := make([]Point, 0, 2*n+1)
	xs := make([]float64, 0, 64)
	ys := make([]float64, 0, 64)

	for i := -n; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("correlation sweep cancelled: %w", err)
		}
		lag := float64(i) * lagStep
		lo := math.Max(r0, t0-lag)
		hi := math.Min(r1, t1-lag)
		if hi < lo {
			continue
		}
		count := int(math.Floor((hi-lo)/step+lagEpsilon)) + 1
		if count < e.minOverlap {
			continue
		}

		xs, ys = xs[:0], ys[:0]
		for k := 0; k < count; k++ {
			x := lo + float64(k)*step
			rv, ok := ref.at(x)
			if !ok {
				continue
			}
			tv, ok := tgt.at(x + lag)
			if !ok {
				continue
			}
			xs = append(xs, rv)
			ys = append(ys, tv)
		}
		if len(xs) < e.minOverlap {
			continue
		}
		r := stat.Correlation(xs, ys, nil)
		if math.IsNaN(r) || math.IsInf(r, 0) {
			// Constant signal over the window: undefined, not zero.
			continue
		}
		curve = append(curve, Point{Lag: lag, Coefficient: math.Max(-1, math.Min(1, r)), Overlap: len(xs)})
	}

	if len(curve) == 0 {
		return nil, fmt.Errorf("%w: no lag reached %d shared samples", ErrInsufficientOverlap, e.minOverlap)
	}
	return curve, nil
}

// gridStep picks the finer native spacing of the two inputs unless a
// resolution is configured, then widens it to respect maxGridPoints.
func (e *Engine) gridStep(ref, tgt *column) float64 {
	step := e.resolution
	if step <= 0 {
		step = math.Min(ref.spacing(), tgt.spacing())
	}
	r0, r1 := ref.span()
	t0, t1 := tgt.span()
	span := math.Max(r1, t1) - math.Min(r0, t0)
	if span/step > float64(e.maxGridPoints) {
		step = span / float64(e.maxGridPoints)
	}
	return step
}
