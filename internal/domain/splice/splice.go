// Package splice assembles a composite age record from user-chosen windows
// of several calibrated sections.
package splice

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/okian/strata/internal/domain/model"
	"github.com/okian/strata/internal/domain/proxy"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrUnknownSection   = errors.New("interval for unknown section")
	ErrDuplicateSection = errors.New("duplicate section")
	ErrInvalidInterval  = errors.New("invalid splice interval")
)

// Interval is the inclusion window of one section. A nil bound means the
// section contributes nothing. Bounds may be given in either order.
type Interval struct {
	SectionID string
	StartAge  *float64
	EndAge    *float64
}

// NewInterval returns a closed window [start, end] for sectionID.
func NewInterval(sectionID string, start, end float64) Interval {
	return Interval{SectionID: sectionID, StartAge: &start, EndAge: &end}
}

// Bounds returns the normalized window and whether it selects anything.
func (iv Interval) Bounds() (lo, hi float64, ok bool) {
	if iv.StartAge == nil || iv.EndAge == nil {
		return 0, 0, false
	}
	lo, hi = *iv.StartAge, *iv.EndAge
	if math.IsNaN(lo) || math.IsNaN(hi) {
		return 0, 0, false
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo, hi, true
}

// CalibrationError names the section whose age model blocked splicing.
type CalibrationError struct {
	SectionID string
	Err       error
}

func (e *CalibrationError) Error() string {
	return fmt.Sprintf("calibrate section %s: %v", e.SectionID, e.Err)
}

func (e *CalibrationError) Unwrap() error { return e.Err }

type window struct {
	sectionID string
	lo, hi    float64
}

// Splice calibrates every section that has a non-null interval, keeps the
// samples whose age falls inside the window (inclusive), and returns them
// as one age series. The sort is stable, so equal ages keep section order.
// Samples are neither interpolated nor averaged, and overlapping windows
// are kept as-is with a WarnOverlap warning.
func Splice(sections []model.Section, intervals map[string]Interval) (proxy.Series, error) {
	known := make(map[string]struct{}, len(sections))
	for _, s := range sections {
		if _, dup := known[s.ID]; dup {
			return proxy.Series{}, fmt.Errorf("%w: %s", ErrDuplicateSection, s.ID)
		}
		known[s.ID] = struct{}{}
	}
	for id, iv := range intervals {
		if _, ok := known[id]; !ok {
			return proxy.Series{}, fmt.Errorf("%w: %s", ErrUnknownSection, id)
		}
		if iv.SectionID != "" && iv.SectionID != id {
			return proxy.Series{}, fmt.Errorf("%w: keyed %s but names %s", ErrInvalidInterval, id, iv.SectionID)
		}
	}

	var (
		pool     []proxy.Sample
		windows  []window
		warnings []proxy.Warning
	)
	for _, s := range sections {
		lo, hi, ok := intervals[s.ID].Bounds()
		if !ok {
			continue
		}
		calibrated, err := s.Calibrated()
		if err != nil {
			return proxy.Series{}, &CalibrationError{SectionID: s.ID, Err: err}
		}
		for _, w := range calibrated.Warnings() {
			warnings = append(warnings, proxy.Warning{
				Kind:    w.Kind,
				Index:   -1,
				Message: fmt.Sprintf("section %s: %s", s.ID, w.Message),
			})
		}
		for _, smp := range calibrated.Samples() {
			if smp.Position < lo || smp.Position > hi {
				continue
			}
			smp.Source = s.ID
			pool = append(pool, smp)
		}
		for _, w := range windows {
			if lo <= w.hi && w.lo <= hi {
				warnings = append(warnings, proxy.Warning{
					Kind:    proxy.WarnOverlap,
					Index:   -1,
					Message: fmt.Sprintf("sections %s [%g, %g] and %s [%g, %g] overlap", w.sectionID, w.lo, w.hi, s.ID, lo, hi),
				})
			}
		}
		windows = append(windows, window{sectionID: s.ID, lo: lo, hi: hi})
	}

	sort.SliceStable(pool, func(i, j int) bool { return pool[i].Position < pool[j].Position })
	return proxy.Assemble(proxy.AxisAge, pool, warnings...), nil
}
