package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/activity-tracker/internal/domain"
)

type memoryStatusRepository struct {
	mu      sync.RWMutex
	path    string
	logger  *zap.Logger
	latest  map[string]domain.StatusSnapshot
	history []domain.StatusHistoryEntry
}

type statusFile struct {
	Latest  map[string]statusRecord `json:"latest"`
	History []statusRecord          `json:"history"`
}

type statusRecord struct {
	UserID    string            `json:"user_id"`
	Status    domain.UserStatus `json:"status"`
	Memo      string            `json:"memo,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewMemoryStatusRepository keeps statuses in process. When path is not empty
// the state is loaded from and written back to that JSON file; an unreadable
// file starts the store empty.
func NewMemoryStatusRepository(path string, logger *zap.Logger) StatusRepository {
	r := &memoryStatusRepository{
		path:   path,
		logger: logger,
		latest: make(map[string]domain.StatusSnapshot),
	}
	if path != "" {
		r.load()
	}
	return r
}

func (r *memoryStatusRepository) Latest(_ context.Context, userID string) (*domain.StatusSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap, ok := r.latest[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &snap, nil
}

func (r *memoryStatusRepository) Append(_ context.Context, snapshot domain.StatusSnapshot) error {
	// Callers may hand in strings backed by reused request buffers.
	snapshot.UserID = strings.Clone(snapshot.UserID)
	snapshot.Memo = strings.Clone(snapshot.Memo)

	r.mu.Lock()
	defer r.mu.Unlock()

	prevLatest, hadLatest := r.latest[snapshot.UserID]
	r.latest[snapshot.UserID] = snapshot
	r.history = append(r.history, domain.StatusHistoryEntry(snapshot))

	if err := r.persistLocked(); err != nil {
		r.history = r.history[:len(r.history)-1]
		if hadLatest {
			r.latest[snapshot.UserID] = prevLatest
		} else {
			delete(r.latest, snapshot.UserID)
		}
		return err
	}
	return nil
}

func (r *memoryStatusRepository) History(_ context.Context, userID string, from, to time.Time) ([]domain.StatusHistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.StatusHistoryEntry
	for _, h := range r.history {
		if h.UserID != userID {
			continue
		}
		if !from.IsZero() && h.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && !h.Timestamp.Before(to) {
			continue
		}
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (r *memoryStatusRepository) load() {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.logger.Warn("unable to read status file", zap.String("path", r.path), zap.Error(err))
		}
		return
	}
	var file statusFile
	if err := json.Unmarshal(data, &file); err != nil {
		r.logger.Warn("malformed status file; starting empty", zap.String("path", r.path), zap.Error(err))
		return
	}
	for userID, rec := range file.Latest {
		r.latest[userID] = domain.StatusSnapshot(rec)
	}
	for _, rec := range file.History {
		r.history = append(r.history, domain.StatusHistoryEntry(rec))
	}
}

func (r *memoryStatusRepository) persistLocked() error {
	if r.path == "" {
		return nil
	}
	file := statusFile{
		Latest:  make(map[string]statusRecord, len(r.latest)),
		History: make([]statusRecord, 0, len(r.history)),
	}
	for userID, snap := range r.latest {
		file.Latest[userID] = statusRecord(snap)
	}
	for _, h := range r.history {
		file.History = append(file.History, statusRecord(h))
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileAtomic(r.path, data); err != nil {
		return fmt.Errorf("write status file: %w", err)
	}
	return nil
}

// writeFileAtomic replaces path with data via a temp file in the same directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
