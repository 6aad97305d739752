// Package proxy defines the depth- or age-indexed proxy series shared by
// calibration, correlation and splicing.
//
// A Series is a value: every accessor returns copies, and transformation
// stages build new series rather than editing existing ones.
package proxy

import (
	"math"
	"sort"
)

// Sample is one measurement row. Missing proxies are absent from Values;
// NaN is treated as absent too.
type Sample struct {
	Position float64
	Values   map[string]float64

	// Extrapolated marks ages computed outside the tie-point range.
	Extrapolated bool
	// Source names the section a composite sample came from.
	Source string
}

// Value returns the proxy value for key and whether it is present.
func (s Sample) Value(key string) (float64, bool) {
	v, ok := s.Values[key]
	if !ok || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

func (s Sample) clone() Sample {
	c := s
	if s.Values != nil {
		c.Values = make(map[string]float64, len(s.Values))
		for k, v := range s.Values {
			c.Values[k] = v
		}
	}
	return c
}

// WarningKind classifies non-fatal conditions attached to a series.
type WarningKind string

const (
	// WarnReversal flags calibrated ages that are not increasing in depth order.
	WarnReversal WarningKind = "reversal_detected"
	// WarnOverlap flags composite windows from two sections that overlap.
	WarnOverlap WarningKind = "overlapping_intervals"
)

// Warning is a non-fatal condition consumers must render distinctly.
type Warning struct {
	Kind    WarningKind
	Index   int // sample index, -1 when not tied to one sample
	Message string
}

// Series is an ordered sequence of samples along one axis.
type Series struct {
	axis     Axis
	samples  []Sample
	warnings []Warning
}

// New builds a raw series. Positions must be finite and strictly increasing.
func New(axis Axis, samples []Sample) (Series, error) {
	if !axis.Valid() {
		return Series{}, ErrInvalidAxis
	}
	s := Assemble(axis, samples)
	if err := s.Validate(); err != nil {
		return Series{}, err
	}
	return s, nil
}

// Assemble builds a derived series without ordering checks. Stages that
// may legitimately produce equal or reversed positions (calibration with a
// reversal, composites with age collisions) use it and report the
// condition through warnings.
func Assemble(axis Axis, samples []Sample, warnings ...Warning) Series {
	out := Series{axis: axis, samples: make([]Sample, len(samples))}
	for i, smp := range samples {
		out.samples[i] = smp.clone()
	}
	if len(warnings) > 0 {
		out.warnings = append([]Warning(nil), warnings...)
	}
	return out
}

// Validate checks that positions are finite and strictly increasing.
func (s Series) Validate() error {
	for i, smp := range s.samples {
		if math.IsNaN(smp.Position) || math.IsInf(smp.Position, 0) {
			return &PositionError{Kind: ErrInvalidPosition, Index: i, Position: smp.Position}
		}
		if i == 0 {
			continue
		}
		prev := s.samples[i-1].Position
		switch {
		case smp.Position == prev:
			return &PositionError{Kind: ErrDuplicatePosition, Index: i, Position: smp.Position}
		case smp.Position < prev:
			return &PositionError{Kind: ErrUnorderedPositions, Index: i, Position: smp.Position}
		}
	}
	return nil
}

// Axis returns the axis tag.
func (s Series) Axis() Axis { return s.axis }

// Len returns the number of samples.
func (s Series) Len() int { return len(s.samples) }

// At returns a copy of sample i.
func (s Series) At(i int) Sample { return s.samples[i].clone() }

// Samples returns a copy of all samples.
func (s Series) Samples() []Sample {
	out := make([]Sample, len(s.samples))
	for i, smp := range s.samples {
		out[i] = smp.clone()
	}
	return out
}

// Positions returns every sample position in series order.
func (s Series) Positions() []float64 {
	out := make([]float64, len(s.samples))
	for i, smp := range s.samples {
		out[i] = smp.Position
	}
	return out
}

// Column returns positions and values of the samples where key is present.
func (s Series) Column(key string) (positions, values []float64) {
	for _, smp := range s.samples {
		if v, ok := smp.Value(key); ok {
			positions = append(positions, smp.Position)
			values = append(values, v)
		}
	}
	return positions, values
}

// Keys returns the sorted set of proxy keys present anywhere in the series.
func (s Series) Keys() []string {
	seen := make(map[string]struct{})
	for _, smp := range s.samples {
		for k := range smp.Values {
			seen[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Warnings returns a copy of the attached warnings.
func (s Series) Warnings() []Warning {
	return append([]Warning(nil), s.warnings...)
}

// HasWarning reports whether a warning of kind is attached.
func (s Series) HasWarning(kind WarningKind) bool {
	for _, w := range s.warnings {
		if w.Kind == kind {
			return true
		}
	}
	return false
}
