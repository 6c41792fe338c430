package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrSnakeDoc/urlguard/internal/domain"
)

// Memory keeps both lists in maps guarded by one lock, so a move between
// lists is atomic. Records are copied in and out.
type Memory struct {
	mu    sync.RWMutex
	lists map[domain.List]map[string]*domain.ReputationRecord
}

func NewMemory() *Memory {
	m := &Memory{lists: make(map[domain.List]map[string]*domain.ReputationRecord, len(domain.Lists))}
	for _, l := range domain.Lists {
		m.lists[l] = make(map[string]*domain.ReputationRecord)
	}
	return m
}

func (m *Memory) Get(_ context.Context, url string) (*domain.ReputationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, l := range domain.Lists {
		if rec, ok := m.lists[l][url]; ok {
			return clone(rec), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) Touch(_ context.Context, url string, now time.Time) (*domain.ReputationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, l := range domain.Lists {
		if rec, ok := m.lists[l][url]; ok {
			rec.HitCount++
			rec.LastSeen = now
			return clone(rec), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) Put(_ context.Context, rec *domain.ReputationRecord) error {
	if err := checkRecord(rec); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := stamped(rec)
	opposite := m.lists[rec.List.Opposite()]
	if prev, ok := opposite[rec.URL]; ok {
		next.CreatedAt, next.HitCount = prev.CreatedAt, prev.HitCount
		delete(opposite, rec.URL)
	}
	if prev, ok := m.lists[rec.List][rec.URL]; ok {
		next.CreatedAt, next.HitCount = prev.CreatedAt, prev.HitCount
	}
	m.lists[rec.List][rec.URL] = next
	return nil
}

func (m *Memory) Delete(_ context.Context, url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := false
	for _, l := range domain.Lists {
		if _, ok := m.lists[l][url]; ok {
			delete(m.lists[l], url)
			removed = true
		}
	}
	return removed, nil
}

func (m *Memory) List(_ context.Context, list domain.List, limit int) ([]*domain.ReputationRecord, error) {
	if err := checkList(list); err != nil {
		return nil, err
	}

	m.mu.RLock()
	out := make([]*domain.ReputationRecord, 0, len(m.lists[list]))
	for _, rec := range m.lists[list] {
		out = append(out, clone(rec))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].URL < out[j].URL
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Clear(_ context.Context, list domain.List) (int64, error) {
	if err := checkList(list); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := int64(len(m.lists[list]))
	m.lists[list] = make(map[string]*domain.ReputationRecord)
	return n, nil
}

func (m *Memory) Counts(_ context.Context) (map[domain.List]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[domain.List]int64, len(domain.Lists))
	for _, l := range domain.Lists {
		out[l] = int64(len(m.lists[l]))
	}
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }
func (m *Memory) Close() error               { return nil }
func (m *Memory) Backend() string            { return BackendMemory }

func clone(rec *domain.ReputationRecord) *domain.ReputationRecord {
	c := *rec
	return &c
}
