package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/spec-kit/activity-tracker/internal/domain"
)

type memorySessionStore struct {
	mu      sync.RWMutex
	entries map[domain.EntryKey]domain.ActiveTimeEntry
}

// NewMemorySessionStore returns a SessionStore that lives only in process.
func NewMemorySessionStore() SessionStore {
	return &memorySessionStore{entries: make(map[domain.EntryKey]domain.ActiveTimeEntry)}
}

func (s *memorySessionStore) LoadEntry(_ context.Context, userID, date string) (domain.ActiveTimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[domain.EntryKey{UserID: userID, Date: date}]
	if !ok {
		return domain.NewActiveTimeEntry(userID, date), nil
	}
	return entry.Clone(), nil
}

func (s *memorySessionStore) ListEntries(_ context.Context, date string) ([]domain.ActiveTimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ActiveTimeEntry
	for key, entry := range s.entries {
		if key.Date == date {
			out = append(out, entry.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *memorySessionStore) SaveEntries(_ context.Context, entries []domain.ActiveTimeEntry) error {
	if err := validateEntries(entries); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range entries {
		stored := entry.Clone()
		stored.RecomputeTotal()
		s.entries[entry.Key()] = stored
	}
	return nil
}

func (s *memorySessionStore) SaveLiveDuration(_ context.Context, userID, date, sessionID string, seconds int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := domain.EntryKey{UserID: userID, Date: date}
	entry, ok := s.entries[key]
	if !ok {
		return nil
	}
	entry = entry.Clone()
	if setLiveDuration(&entry, sessionID, seconds) {
		s.entries[key] = entry
	}
	return nil
}
