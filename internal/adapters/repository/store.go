// Package repository persists sections and their tie points.
package repository

import (
	"context"
	"fmt"

	"github.com/okian/strata/internal/domain/agemodel"
	"github.com/okian/strata/internal/domain/model"
)

// Store provides read/write access to sections and tie points.
//
// Tie-point mutations never edit a model in place: each returns the new
// AgeModel snapshot with a higher version. When expectedVersion is non-nil
// and differs from the stored version the edit fails with ErrStaleVersion.
type Store interface {
	// CreateSection stores a new section. Its age model is stored as given.
	// Returns ErrAlreadyExists if the ID is taken.
	CreateSection(ctx context.Context, s model.Section) error

	// Section returns one section with its current age model.
	// Returns ErrNotFound if the section is unknown.
	Section(ctx context.Context, id string) (model.Section, error)

	// Sections returns every section ordered by ID.
	Sections(ctx context.Context) ([]model.Section, error)

	// DeleteSection removes a section and its tie points.
	DeleteSection(ctx context.Context, id string) error

	// AddTiePoint inserts tp, or replaces the tie point with the same ID.
	AddTiePoint(ctx context.Context, tp agemodel.TiePoint, expectedVersion *uint64) (agemodel.Model, error)

	// RemoveTiePoint deletes one tie point of a section.
	RemoveTiePoint(ctx context.Context, sectionID, tiePointID string, expectedVersion *uint64) (agemodel.Model, error)

	// Count returns the number of stored sections.
	Count(ctx context.Context) int

	Close() error
}

// edit applies fn to m after the optimistic version check.
func edit(m agemodel.Model, expected *uint64, fn func(agemodel.Model) (agemodel.Model, error)) (agemodel.Model, error) {
	if expected != nil && *expected != m.Version() {
		return agemodel.Model{}, fmt.Errorf("%w: section %s is at version %d, expected %d",
			ErrStaleVersion, m.SectionID(), m.Version(), *expected)
	}
	return fn(m)
}

func addFn(tp agemodel.TiePoint) func(agemodel.Model) (agemodel.Model, error) {
	return func(m agemodel.Model) (agemodel.Model, error) { return m.With(tp) }
}

func removeFn(id string) func(agemodel.Model) (agemodel.Model, error) {
	return func(m agemodel.Model) (agemodel.Model, error) { return m.Without(id) }
}
