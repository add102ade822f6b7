package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"getrader/internal/registry"
)

func (s *Store) SaveModel(_ context.Context, m registry.ModelMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.models[m.ModelID]; ok {
		return fmt.Errorf("%w: %s", registry.ErrModelExists, m.ModelID)
	}
	s.models[m.ModelID] = m
	return nil
}

func (s *Store) GetModel(_ context.Context, id string) (registry.ModelMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.models[id]
	if !ok {
		return registry.ModelMetadata{}, fmt.Errorf("%w: %s", registry.ErrModelNotFound, id)
	}
	return m, nil
}

// UpdateModel replaces the descriptive fields of an existing model. Status,
// PromotedAt and ArchivedAt keep their stored values.
func (s *Store) UpdateModel(_ context.Context, m registry.ModelMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.models[m.ModelID]
	if !ok {
		return fmt.Errorf("%w: %s", registry.ErrModelNotFound, m.ModelID)
	}
	m.Status = cur.Status
	m.PromotedAt = cur.PromotedAt
	m.ArchivedAt = cur.ArchivedAt
	s.models[m.ModelID] = m
	return nil
}

func (s *Store) IncrementUsage(_ context.Context, id string, predictions int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.models[id]
	if !ok {
		return fmt.Errorf("%w: %s", registry.ErrModelNotFound, id)
	}
	used := at
	m.Usage.Predictions += predictions
	m.Usage.Sessions++
	m.Usage.LastUsedAt = &used
	m.UpdatedAt = at
	s.models[id] = m
	return nil
}

func (s *Store) ArchiveModel(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.models[id]
	if !ok {
		return fmt.Errorf("%w: %s", registry.ErrModelNotFound, id)
	}
	archived := at
	m.Status = registry.StatusArchived
	m.ArchivedAt = &archived
	m.UpdatedAt = at
	s.models[id] = m
	return nil
}

func (s *Store) DeleteModel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.models[id]; !ok {
		return fmt.Errorf("%w: %s", registry.ErrModelNotFound, id)
	}
	delete(s.models, id)
	return nil
}

func (s *Store) GetProductionModel(_ context.Context) (registry.ModelMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.models {
		if m.Status == registry.StatusProduction {
			return m, nil
		}
	}
	return registry.ModelMetadata{}, fmt.Errorf("%w: no production model", registry.ErrModelNotFound)
}

func (s *Store) GetRecentModels(_ context.Context, limit int) ([]registry.ModelMetadata, error) {
	out := s.allModels()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ModelID < out[j].ModelID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetModelsByPerformance(_ context.Context, minROI float64) ([]registry.ModelMetadata, error) {
	var out []registry.ModelMetadata
	for _, m := range s.allModels() {
		if m.Performance.ROI >= minROI {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Performance.ROI > out[j].Performance.ROI })
	return out, nil
}

// PromoteModel archives the current production model and promotes id under
// one lock.
func (s *Store) PromoteModel(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.models[id]
	if !ok {
		return fmt.Errorf("%w: %s", registry.ErrModelNotFound, id)
	}
	for mid, m := range s.models {
		if mid == id || m.Status != registry.StatusProduction {
			continue
		}
		archived := at
		m.Status = registry.StatusArchived
		m.ArchivedAt = &archived
		m.UpdatedAt = at
		s.models[mid] = m
	}
	promoted := at
	target.Status = registry.StatusProduction
	target.PromotedAt = &promoted
	target.ArchivedAt = nil
	target.UpdatedAt = at
	s.models[id] = target
	return nil
}

func (s *Store) allModels() []registry.ModelMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]registry.ModelMetadata, 0, len(s.models))
	for _, m := range s.models {
		out = append(out, m)
	}
	return out
}
