// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/okian/strata/internal/domain/agemodel"
	"github.com/okian/strata/internal/domain/proxy"
)

// ErrInvalidSection reports a section that cannot be constructed.
var ErrInvalidSection = errors.New("invalid section")

// Section is one physically recovered core segment: its raw depth series
// and the age model snapshot derived from its tie points.
type Section struct {
	ID       string
	Name     string
	Series   proxy.Series   // depth axis
	AgeModel agemodel.Model // tie points of this section only
}

// NewSection builds a section with an empty age model.
func NewSection(id, name string, series proxy.Series) (Section, error) {
	if strings.TrimSpace(id) == "" {
		return Section{}, fmt.Errorf("%w: missing id", ErrInvalidSection)
	}
	if series.Axis() != proxy.AxisDepth {
		return Section{}, fmt.Errorf("%w: series must be depth-indexed, got %s", ErrInvalidSection, series.Axis())
	}
	if err := series.Validate(); err != nil {
		return Section{}, fmt.Errorf("%w: %w", ErrInvalidSection, err)
	}
	m, err := agemodel.New(id)
	if err != nil {
		return Section{}, err
	}
	return Section{ID: id, Name: name, Series: series, AgeModel: m}, nil
}

// WithAgeModel returns a copy of the section using snapshot m.
func (s Section) WithAgeModel(m agemodel.Model) Section {
	s.AgeModel = m
	return s
}

// Calibrated returns the section's series on the age axis.
func (s Section) Calibrated() (proxy.Series, error) {
	return agemodel.Calibrate(s.Series, s.AgeModel)
}
