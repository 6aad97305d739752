// Package agemodel maps section depths to absolute ages from a sparse set
// of tie points and resamples depth series onto the age axis.
//
// A Model is an immutable snapshot. Every edit returns a new snapshot with
// a higher Version, so anything derived from a model can tell whether it
// was computed against the current tie points.
package agemodel

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
)

// TiePoint anchors one depth of one section to an absolute age (ka).
type TiePoint struct {
	ID        string
	SectionID string
	Depth     float64
	Age       float64
}

// NewTiePoint creates a tie point with a fresh identifier.
func NewTiePoint(sectionID string, depth, age float64) TiePoint {
	return TiePoint{ID: uuid.NewString(), SectionID: sectionID, Depth: depth, Age: age}
}

func (tp TiePoint) validate() error {
	if tp.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidTiePoint)
	}
	for _, v := range []float64{tp.Depth, tp.Age} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s has non-finite depth or age", ErrInvalidTiePoint, tp.ID)
		}
	}
	return nil
}

// Model is the tie-point set of one section, ordered by depth.
type Model struct {
	sectionID string
	version   uint64
	points    []TiePoint
}

// New returns an initial snapshot (version 0) for sectionID.
func New(sectionID string, points ...TiePoint) (Model, error) {
	return Restore(sectionID, 0, points)
}

// Restore rebuilds a snapshot at a known version, e.g. from storage.
func Restore(sectionID string, version uint64, points []TiePoint) (Model, error) {
	m := Model{sectionID: sectionID, version: version, points: make([]TiePoint, 0, len(points))}
	for _, tp := range points {
		if tp.SectionID == "" {
			tp.SectionID = sectionID
		}
		if tp.SectionID != sectionID {
			return Model{}, fmt.Errorf("%w: %s", ErrForeignTiePoint, tp.ID)
		}
		if err := tp.validate(); err != nil {
			return Model{}, err
		}
		m.points = append(m.points, tp)
	}
	m.sort()
	return m, nil
}

func (m *Model) sort() {
	sort.SliceStable(m.points, func(i, j int) bool { return m.points[i].Depth < m.points[j].Depth })
}

// SectionID returns the owning section.
func (m Model) SectionID() string { return m.sectionID }

// Version increases by one with every edit.
func (m Model) Version() uint64 { return m.version }

// Len returns the number of tie points.
func (m Model) Len() int { return len(m.points) }

// TiePoints returns a copy of the tie points in depth order.
func (m Model) TiePoints() []TiePoint {
	return append([]TiePoint(nil), m.points...)
}

// With returns a new snapshot containing tp. A tie point with the same ID
// is replaced.
func (m Model) With(tp TiePoint) (Model, error) {
	if tp.SectionID == "" {
		tp.SectionID = m.sectionID
	}
	if tp.SectionID != m.sectionID {
		return Model{}, fmt.Errorf("%w: %s", ErrForeignTiePoint, tp.ID)
	}
	if err := tp.validate(); err != nil {
		return Model{}, err
	}
	next := Model{sectionID: m.sectionID, version: m.version + 1, points: make([]TiePoint, 0, len(m.points)+1)}
	for _, p := range m.points {
		if p.ID != tp.ID {
			next.points = append(next.points, p)
		}
	}
	next.points = append(next.points, tp)
	next.sort()
	return next, nil
}

// Without returns a new snapshot lacking the tie point with id.
func (m Model) Without(id string) (Model, error) {
	next := Model{sectionID: m.sectionID, version: m.version + 1, points: make([]TiePoint, 0, len(m.points))}
	found := false
	for _, p := range m.points {
		if p.ID == id {
			found = true
			continue
		}
		next.points = append(next.points, p)
	}
	if !found {
		return Model{}, fmt.Errorf("%w: %s", ErrTiePointNotFound, id)
	}
	return next, nil
}

// Validate checks that the model can calibrate: at least two tie points,
// strictly increasing depth and strictly increasing age with depth.
func (m Model) Validate() error {
	if len(m.points) < 2 {
		return fmt.Errorf("%w: section %s has %d", ErrInsufficientTiePoints, m.sectionID, len(m.points))
	}
	for i := 1; i < len(m.points); i++ {
		prev, next := m.points[i-1], m.points[i]
		if next.Depth == prev.Depth || next.Age <= prev.Age {
			return &NonMonotonicError{Prev: prev, Next: next}
		}
	}
	return nil
}

// DepthRange returns the shallowest and deepest tie-point depths.
func (m Model) DepthRange() (lo, hi float64, ok bool) {
	if len(m.points) == 0 {
		return 0, 0, false
	}
	return m.points[0].Depth, m.points[len(m.points)-1].Depth, true
}

// AgeAt evaluates the age model at one depth.
func (m Model) AgeAt(depth float64) (age float64, extrapolated bool, err error) {
	if err := m.Validate(); err != nil {
		return 0, false, err
	}
	age, extrapolated = m.ageAt(depth)
	return age, extrapolated, nil
}

// ageAt assumes a validated model.
func (m Model) ageAt(depth float64) (float64, bool) {
	n := len(m.points)
	i := sort.Search(n, func(i int) bool { return m.points[i].Depth >= depth })
	switch {
	case i < n && m.points[i].Depth == depth:
		return m.points[i].Age, false
	case i == 0:
		return linear(m.points[0], m.points[1], depth), true
	case i == n:
		return linear(m.points[n-2], m.points[n-1], depth), true
	default:
		return linear(m.points[i-1], m.points[i], depth), false
	}
}

func linear(p1, p2 TiePoint, depth float64) float64 {
	return p1.Age + (depth-p1.Depth)*(p2.Age-p1.Age)/(p2.Depth-p1.Depth)
}
