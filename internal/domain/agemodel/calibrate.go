package agemodel

import (
	"fmt"

	"github.com/okian/strata/internal/domain/proxy"
)

// Calibrate re-keys a depth series on age using piecewise-linear
// interpolation between tie points and linear extrapolation beyond them.
//
// The output keeps the input sample order (depth order is ground truth),
// sample count and proxy values. Extrapolated samples are flagged. If the
// resulting ages do not increase, a WarnReversal warning is attached for
// each offending sample instead of reordering.
func Calibrate(series proxy.Series, m Model) (proxy.Series, error) {
	if series.Axis() != proxy.AxisDepth {
		return proxy.Series{}, fmt.Errorf("%w: calibrate expects a depth series, got %s", proxy.ErrAxisMismatch, series.Axis())
	}
	if err := series.Validate(); err != nil {
		return proxy.Series{}, err
	}
	if err := m.Validate(); err != nil {
		return proxy.Series{}, err
	}

	samples := series.Samples()
	var warnings []proxy.Warning
	for i := range samples {
		depth := samples[i].Position
		age, extrapolated := m.ageAt(depth)
		samples[i].Position = age
		samples[i].Extrapolated = extrapolated
		if i > 0 && age <= samples[i-1].Position {
			warnings = append(warnings, proxy.Warning{
				Kind:    proxy.WarnReversal,
				Index:   i,
				Message: fmt.Sprintf("age %g at depth %g does not exceed previous age %g", age, depth, samples[i-1].Position),
			})
		}
	}
	return proxy.Assemble(proxy.AxisAge, samples, warnings...), nil
}
