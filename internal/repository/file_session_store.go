package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/activity-tracker/internal/domain"
)

type fileSessionStore struct {
	mu      sync.Mutex
	baseDir string
	logger  *zap.Logger
}

type fileEntry struct {
	UserID       string        `json:"user_id"`
	Date         string        `json:"date"`
	Sessions     []fileSession `json:"sessions"`
	TotalSeconds int64         `json:"total_seconds"`
}

type fileSession struct {
	ID              string     `json:"id"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationSeconds int64      `json:"duration_seconds"`
	Memo            string     `json:"memo,omitempty"`
}

// NewFileSessionStore stores one JSON document per calendar day under
// baseDir/active_time.
func NewFileSessionStore(baseDir string, logger *zap.Logger) (SessionStore, error) {
	dir := filepath.Join(baseDir, "active_time")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &fileSessionStore{baseDir: dir, logger: logger}, nil
}

func (s *fileSessionStore) dayPath(date string) (string, error) {
	if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return "", fmt.Errorf("invalid date %q: %w", date, err)
	}
	return filepath.Join(s.baseDir, date+".json"), nil
}

func (s *fileSessionStore) LoadEntry(_ context.Context, userID, date string) (domain.ActiveTimeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day, err := s.readDayLocked(date)
	if err != nil {
		return domain.ActiveTimeEntry{}, err
	}
	for _, e := range day {
		if e.UserID == userID {
			return e, nil
		}
	}
	return domain.NewActiveTimeEntry(userID, date), nil
}

func (s *fileSessionStore) ListEntries(_ context.Context, date string) ([]domain.ActiveTimeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.readDayLocked(date)
}

func (s *fileSessionStore) SaveEntries(_ context.Context, entries []domain.ActiveTimeEntry) error {
	if err := validateEntries(entries); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byDate := make(map[string][]domain.ActiveTimeEntry)
	for _, e := range entries {
		byDate[e.Date] = append(byDate[e.Date], e)
	}

	dates := make([]string, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	for _, date := range dates {
		day, err := s.readDayLocked(date)
		if err != nil {
			return err
		}
		for _, e := range byDate[date] {
			day = replaceEntry(day, e)
		}
		if err := s.writeDayLocked(date, day); err != nil {
			return err
		}
	}
	return nil
}

// SaveLiveDuration rewrites the day file only when the open session's
// duration actually moved.
func (s *fileSessionStore) SaveLiveDuration(_ context.Context, userID, date, sessionID string, seconds int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	day, err := s.readDayLocked(date)
	if err != nil {
		return err
	}
	for i := range day {
		if day[i].UserID != userID {
			continue
		}
		if !setLiveDuration(&day[i], sessionID, seconds) {
			return nil
		}
		return s.writeDayLocked(date, day)
	}
	return nil
}

// readDayLocked returns the entries of one day. A missing file is an empty
// day; a malformed one is logged and treated as empty.
func (s *fileSessionStore) readDayLocked(date string) ([]domain.ActiveTimeEntry, error) {
	path, err := s.dayPath(date)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []domain.ActiveTimeEntry{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var raw []fileEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("malformed active time file; treating as empty",
			zap.String("path", path), zap.Error(err))
		return []domain.ActiveTimeEntry{}, nil
	}

	out := make([]domain.ActiveTimeEntry, 0, len(raw))
	for _, fe := range raw {
		entry := domain.NewActiveTimeEntry(fe.UserID, date)
		for _, fs := range fe.Sessions {
			entry.Sessions = append(entry.Sessions, domain.ActiveTimeSession(fs))
		}
		entry.RecomputeTotal()
		out = append(out, entry)
	}
	return out, nil
}

func (s *fileSessionStore) writeDayLocked(date string, day []domain.ActiveTimeEntry) error {
	sort.Slice(day, func(i, j int) bool { return day[i].UserID < day[j].UserID })

	raw := make([]fileEntry, 0, len(day))
	for _, e := range day {
		fe := fileEntry{
			UserID:       e.UserID,
			Date:         date,
			Sessions:     make([]fileSession, 0, len(e.Sessions)),
			TotalSeconds: e.ClosedSeconds(),
		}
		for _, sess := range e.Sessions {
			fe.Sessions = append(fe.Sessions, fileSession(sess))
		}
		raw = append(raw, fe)
	}

	path, err := s.dayPath(date)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

func replaceEntry(day []domain.ActiveTimeEntry, entry domain.ActiveTimeEntry) []domain.ActiveTimeEntry {
	stored := entry.Clone()
	stored.RecomputeTotal()
	for i := range day {
		if day[i].UserID == entry.UserID {
			day[i] = stored
			return day
		}
	}
	return append(day, stored)
}
