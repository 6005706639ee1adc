package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"glassmon/internal/model"
)

// MemoryStore is an in-process DefectStore used by tests and local runs
// without a database.
type MemoryStore struct {
	mu          sync.RWMutex
	defectsByID map[string]model.Defect
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{defectsByID: make(map[string]model.Defect)}
}

func (s *MemoryStore) Insert(d model.Defect) error {
	if d.ID == "" {
		return errors.New("missing defect id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.defectsByID[d.ID] = d
	return nil
}

func (s *MemoryStore) Get(id string) (model.Defect, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.defectsByID[id]
	return d, ok
}

func (s *MemoryStore) List() []model.Defect {
	s.mu.RLock()
	result := make([]model.Defect, 0, len(s.defectsByID))
	for _, d := range s.defectsByID {
		result = append(result, d)
	}
	s.mu.RUnlock()

	sortByDetection(result)
	return result
}

func (s *MemoryStore) ListUntagged(_ context.Context, limit int) ([]model.Defect, error) {
	s.mu.RLock()
	result := make([]model.Defect, 0)
	for _, d := range s.defectsByID {
		if !d.Tagged() {
			result = append(result, d)
		}
	}
	s.mu.RUnlock()

	sortByDetection(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *MemoryStore) MaxTagNumber(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var maxTag int64
	for _, d := range s.defectsByID {
		if d.TagNumber != nil && *d.TagNumber > maxTag {
			maxTag = *d.TagNumber
		}
	}
	return maxTag, nil
}

func (s *MemoryStore) UpdateTag(_ context.Context, id string, tag int64, taggedImageURL *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.defectsByID[id]
	if !ok {
		return ErrNotFound
	}
	if d.Tagged() {
		return ErrAlreadyTagged
	}
	d.TagNumber = &tag
	d.TaggedImageURL = taggedImageURL
	s.defectsByID[id] = d
	return nil
}

func sortByDetection(defects []model.Defect) {
	sort.Slice(defects, func(i, j int) bool {
		if !defects[i].DetectedAt.Equal(defects[j].DetectedAt) {
			return defects[i].DetectedAt.Before(defects[j].DetectedAt)
		}
		return defects[i].ID < defects[j].ID
	})
}
