package suggest

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/okian/strata/internal/domain/correlation"
	"github.com/okian/strata/internal/domain/model"
)

// Default suggester configuration constants.
const (
	defaultTopK           = 3
	defaultAnchors        = 5
	defaultSharpnessScale = 10.0
)

// CorrelationOption applies a configuration option to the CorrelationSuggester.
type CorrelationOption func(*CorrelationSuggester)

// WithEngine sets the correlation engine.
func WithEngine(e *correlation.Engine) CorrelationOption {
	return func(s *CorrelationSuggester) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithTopK sets how many correlation peaks are turned into suggestions.
func WithTopK(k int) CorrelationOption {
	return func(s *CorrelationSuggester) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithAnchors sets how many anchor depths are proposed per peak.
func WithAnchors(n int) CorrelationOption {
	return func(s *CorrelationSuggester) {
		if n > 0 {
			s.anchors = n
		}
	}
}

// WithMaxLag fixes the lag sweep half-width. Zero derives it from the data.
func WithMaxLag(maxLag float64) CorrelationOption {
	return func(s *CorrelationSuggester) {
		if maxLag > 0 {
			s.maxLag = maxLag
		}
	}
}

// WithLagStep fixes the lag increment. Zero uses the reference's finest spacing.
func WithLagStep(step float64) CorrelationOption {
	return func(s *CorrelationSuggester) {
		if step > 0 {
			s.lagStep = step
		}
	}
}

// CorrelationSuggester derives suggestions from the peaks of the
// depth-to-depth correlation curve of two sections.
type CorrelationSuggester struct {
	engine         *correlation.Engine
	topK           int
	anchors        int
	maxLag         float64
	lagStep        float64
	sharpnessScale float64
}

// NewCorrelationSuggester creates a suggester with configuration options.
func NewCorrelationSuggester(opts ...CorrelationOption) *CorrelationSuggester {
	s := &CorrelationSuggester{
		engine:         correlation.NewEngine(),
		topK:           defaultTopK,
		anchors:        defaultAnchors,
		sharpnessScale: defaultSharpnessScale,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Suggest implements Suggester. For a peak at lag L, reference depth d is
// paired with target depth d+L at the reference's most prominent local
// extrema inside the shifted overlap.
func (s *CorrelationSuggester) Suggest(ctx context.Context, reference, target model.Section, proxyKey string) ([]Suggestion, error) {
	refPos, refVal := reference.Series.Column(proxyKey)
	tgtPos, _ := target.Series.Column(proxyKey)
	if len(refPos) < 2 || len(tgtPos) < 2 {
		return nil, fmt.Errorf("suggest %s vs %s: %w", reference.ID, target.ID, correlation.ErrInsufficientOverlap)
	}
	r0, r1 := refPos[0], refPos[len(refPos)-1]
	t0, t1 := tgtPos[0], tgtPos[len(tgtPos)-1]

	maxLag := s.maxLag
	if maxLag <= 0 {
		maxLag = math.Max(r1-r0, t1-t0) / 2
	}
	lagStep := s.lagStep
	if lagStep <= 0 {
		lagStep = minSpacing(refPos)
		// Widen a derived step so the sweep stays inside the engine's lag cap.
		if limit := float64(s.engine.MaxLags()); maxLag/lagStep > limit {
			lagStep = maxLag / limit
		}
	}

	curve, err := s.engine.Correlate(ctx, reference.Series, target.Series, proxyKey, maxLag, lagStep)
	if err != nil {
		return nil, fmt.Errorf("suggest %s vs %s: %w", reference.ID, target.ID, err)
	}
	peaks := correlation.Peaks(curve)
	if len(peaks) > s.topK {
		peaks = peaks[:s.topK]
	}
	lo, hi := magnitudeRange(curve)
	landmarks := extrema(refPos, refVal)

	var out []Suggestion
	for _, pk := range peaks {
		conf := s.confidence(pk, lo, hi, 2*maxLag)
		depths := s.anchorsFor(landmarks, pk.Lag, r0, r1, t0, t1)
		for _, d := range depths {
			out = append(out, Suggestion{
				RefPosition:    d,
				TargetPosition: d + pk.Lag,
				Confidence:     conf,
				Lag:            pk.Lag,
				Coefficient:    pk.Coefficient,
				Source:         SourceCorrelation,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].RefPosition < out[j].RefPosition
	})
	return out, nil
}

// confidence scales |r| by where the peak sits in the curve's magnitude
// range and by its sharpness. Edge peaks count as flat.
func (s *CorrelationSuggester) confidence(pk correlation.Peak, lo, hi, span float64) float64 {
	rel := 1.0
	if hi > lo {
		rel = (pk.Magnitude - lo) / (hi - lo)
	}
	sharp := 0.0
	if !pk.Edge {
		k := pk.Curvature * span * span
		sharp = k / (k + s.sharpnessScale)
	}
	c := pk.Magnitude * (0.5 + 0.5*rel) * (0.5 + 0.5*sharp)
	return math.Max(0, math.Min(1, c))
}

// anchorsFor picks up to s.anchors landmark depths whose partner d+lag
// lies inside the target, then returns them in depth order. Without any
// usable landmark it falls back to the middle of the shifted overlap.
func (s *CorrelationSuggester) anchorsFor(landmarks []landmark, lag, r0, r1, t0, t1 float64) []float64 {
	lo := math.Max(r0, t0-lag)
	hi := math.Min(r1, t1-lag)
	if hi < lo {
		return nil
	}
	var depths []float64
	for _, lm := range landmarks {
		if lm.depth < lo || lm.depth > hi {
			continue
		}
		depths = append(depths, lm.depth)
		if len(depths) == s.anchors {
			break
		}
	}
	if len(depths) == 0 {
		return []float64{(lo + hi) / 2}
	}
	sort.Float64s(depths)
	return depths
}

type landmark struct {
	depth      float64
	prominence float64
}

// extrema returns strict local minima and maxima, most prominent first.
func extrema(pos, val []float64) []landmark {
	if len(val) < 3 {
		return nil
	}
	mean := stat.Mean(val, nil)
	var out []landmark
	for i := 1; i < len(val)-1; i++ {
		isMax := val[i] > val[i-1] && val[i] > val[i+1]
		isMin := val[i] < val[i-1] && val[i] < val[i+1]
		if isMax || isMin {
			out = append(out, landmark{depth: pos[i], prominence: math.Abs(val[i] - mean)})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].prominence > out[j].prominence })
	return out
}

func magnitudeRange(curve []correlation.Point) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, p := range curve {
		m := math.Abs(p.Coefficient)
		lo = math.Min(lo, m)
		hi = math.Max(hi, m)
	}
	return lo, hi
}

func minSpacing(pos []float64) float64 {
	d := make([]float64, len(pos)-1)
	floats.SubTo(d, pos[1:], pos[:len(pos)-1])
	return floats.Min(d)
}
