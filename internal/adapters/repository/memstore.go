package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/strata/internal/domain/agemodel"
	"github.com/okian/strata/internal/domain/model"
	"github.com/okian/strata/pkg/metrics"
)

// MemStore is an in-memory Store. Sections are immutable values, so reads
// hand out copies without further locking.
type MemStore struct {
	mu       sync.RWMutex
	sections map[string]model.Section
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{sections: make(map[string]model.Section)}
}

// CreateSection implements Store.
func (s *MemStore) CreateSection(_ context.Context, sec model.Section) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sections[sec.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, sec.ID)
	}
	s.sections[sec.ID] = sec
	metrics.UpdateSectionCount(len(s.sections))
	return nil
}

// Section implements Store.
func (s *MemStore) Section(_ context.Context, id string) (model.Section, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec, ok := s.sections[id]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return model.Section{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sec, nil
}

// Sections implements Store.
func (s *MemStore) Sections(_ context.Context) ([]model.Section, error) {
	s.mu.RLock()
	out := make([]model.Section, 0, len(s.sections))
	for _, sec := range s.sections {
		out = append(out, sec)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteSection implements Store.
func (s *MemStore) DeleteSection(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sections[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.sections, id)
	metrics.UpdateSectionCount(len(s.sections))
	return nil
}

// AddTiePoint implements Store.
func (s *MemStore) AddTiePoint(_ context.Context, tp agemodel.TiePoint, expected *uint64) (agemodel.Model, error) {
	return s.update(tp.SectionID, expected, addFn(tp))
}

// RemoveTiePoint implements Store.
func (s *MemStore) RemoveTiePoint(_ context.Context, sectionID, tiePointID string, expected *uint64) (agemodel.Model, error) {
	return s.update(sectionID, expected, removeFn(tiePointID))
}

func (s *MemStore) update(sectionID string, expected *uint64, fn func(agemodel.Model) (agemodel.Model, error)) (agemodel.Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.sections[sectionID]
	if !ok {
		return agemodel.Model{}, fmt.Errorf("%w: %s", ErrNotFound, sectionID)
	}
	next, err := edit(sec.AgeModel, expected, fn)
	if err != nil {
		return agemodel.Model{}, err
	}
	s.sections[sectionID] = sec.WithAgeModel(next)
	return next, nil
}

// Count implements Store.
func (s *MemStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sections)
}

// Close implements Store.
func (s *MemStore) Close() error { return nil }
