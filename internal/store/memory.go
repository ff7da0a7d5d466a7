package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/exposechain/exposechain/internal/model"
)

// MemoryStore is an in-memory, thread-safe Store. It is used in tests and
// when no database URL is configured.
type MemoryStore struct {
	mu        sync.RWMutex
	scans     map[uuid.UUID]*model.ScanRecord
	exposures map[uuid.UUID][]*model.Exposure
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		scans:     make(map[uuid.UUID]*model.ScanRecord),
		exposures: make(map[uuid.UUID][]*model.Exposure),
	}
}

// CreateScan implements Store.
func (m *MemoryStore) CreateScan(_ context.Context, s *model.ScanRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.ID = uuid.New()
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now().UTC()
	}
	cp := *s
	m.scans[s.ID] = &cp
	return nil
}

// UpdateScan implements Store.
func (m *MemoryStore) UpdateScan(_ context.Context, s *model.ScanRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.scans[s.ID]; !ok {
		return ErrNotFound
	}
	cp := *s
	m.scans[s.ID] = &cp
	return nil
}

// GetScan implements Store.
func (m *MemoryStore) GetScan(_ context.Context, id uuid.UUID) (*model.ScanRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.scans[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// ListScans implements Store.
func (m *MemoryStore) ListScans(_ context.Context, f model.ScanFilter) ([]*model.ScanRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*model.ScanRecord
	for _, s := range m.scans {
		if f.Kind != "" && s.Kind != f.Kind {
			continue
		}
		if f.Target != "" && s.Target != f.Target {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return page(out, f.Limit, f.Offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

// AddExposures implements Store.
func (m *MemoryStore) AddExposures(_ context.Context, scanID uuid.UUID, exposures []*model.Exposure) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.scans[scanID]; !ok {
		return fmt.Errorf("add exposures: %w", ErrNotFound)
	}
	now := time.Now().UTC()
	for _, e := range exposures {
		e.ID = uuid.New()
		e.ScanID = scanID
		if e.DiscoveredAt.IsZero() {
			e.DiscoveredAt = now
		}
		cp := *e
		m.exposures[scanID] = append(m.exposures[scanID], &cp)
	}
	return nil
}

// ListExposures implements Store.
func (m *MemoryStore) ListExposures(_ context.Context, scanID uuid.UUID) ([]*model.Exposure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.scans[scanID]; !ok {
		return nil, ErrNotFound
	}
	return copyExposures(m.exposures[scanID]), nil
}

// LatestExposures implements Store.
func (m *MemoryStore) LatestExposures(_ context.Context) ([]*model.Exposure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *model.ScanRecord
	for _, s := range m.scans {
		if s.Kind != model.ScanKindExposure || s.Status != model.ScanStatusCompleted {
			continue
		}
		if latest == nil || s.StartedAt.After(latest.StartedAt) {
			latest = s
		}
	}
	if latest == nil {
		return []*model.Exposure{}, nil
	}
	return copyExposures(m.exposures[latest.ID]), nil
}

func copyExposures(in []*model.Exposure) []*model.Exposure {
	out := make([]*model.Exposure, len(in))
	for i, e := range in {
		cp := *e
		out[i] = &cp
	}
	return out
}
