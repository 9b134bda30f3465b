// Package favorites persists per-session favorite movies. Adds are
// idempotent so tool retries never create duplicates.
package favorites

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/DarioTortorici/cinetech/core"
)

// Store keeps favorites in memory and mirrors them to a JSON file.
// Mutation is serialized per store; entries are partitioned by session id
// and survive session expiry.
type Store struct {
	mu      sync.RWMutex
	path    string
	entries map[string]map[string]core.FavoriteEntry // session id -> movie id -> entry
	logger  *zap.Logger
	now     func() time.Time
}

// Open loads the favorites file if it exists.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		path:    path,
		entries: make(map[string]map[string]core.FavoriteEntry),
		logger:  logger,
		now:     time.Now,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read favorites file: %w", err)
	}

	var flat []core.FavoriteEntry
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, fmt.Errorf("decode favorites file: %w", err)
	}
	for _, entry := range flat {
		if s.entries[entry.SessionID] == nil {
			s.entries[entry.SessionID] = make(map[string]core.FavoriteEntry)
		}
		s.entries[entry.SessionID][entry.MovieID] = entry
	}
	return s, nil
}

// Add records a favorite. Adding the same (session, movie) pair again is
// a no-op and reports added=false.
func (s *Store) Add(sessionID, movieID, title string) (added bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries[sessionID] == nil {
		s.entries[sessionID] = make(map[string]core.FavoriteEntry)
	}
	if _, exists := s.entries[sessionID][movieID]; exists {
		return false, nil
	}

	s.entries[sessionID][movieID] = core.FavoriteEntry{
		SessionID: sessionID,
		MovieID:   movieID,
		Title:     title,
		AddedAt:   s.now(),
	}
	if err := s.flushLocked(); err != nil {
		delete(s.entries[sessionID], movieID)
		return false, err
	}
	return true, nil
}

// Remove deletes a favorite; removing an absent entry is a no-op.
func (s *Store) Remove(sessionID, movieID string) (removed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.entries[sessionID]
	if !ok {
		return false, nil
	}
	entry, ok := session[movieID]
	if !ok {
		return false, nil
	}

	delete(session, movieID)
	if err := s.flushLocked(); err != nil {
		session[movieID] = entry
		return false, err
	}
	return true, nil
}

// List returns the session's favorites ordered by time added.
func (s *Store) List(sessionID string) []core.FavoriteEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session := s.entries[sessionID]
	out := make([]core.FavoriteEntry, 0, len(session))
	for _, entry := range session {
		out = append(out, entry)
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].AddedAt.Equal(out[b].AddedAt) {
			return out[a].AddedAt.Before(out[b].AddedAt)
		}
		return out[a].MovieID < out[b].MovieID
	})
	return out
}

// flushLocked writes the whole store atomically via a temp file rename.
func (s *Store) flushLocked() error {
	if s.path == "" {
		return nil
	}

	var flat []core.FavoriteEntry
	for _, session := range s.entries {
		for _, entry := range session {
			flat = append(flat, entry)
		}
	}
	sort.Slice(flat, func(a, b int) bool {
		if flat[a].SessionID != flat[b].SessionID {
			return flat[a].SessionID < flat[b].SessionID
		}
		return flat[a].MovieID < flat[b].MovieID
	})

	data, err := json.MarshalIndent(flat, "", "  ")
	if err != nil {
		return fmt.Errorf("encode favorites: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create favorites dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write favorites: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace favorites file: %w", err)
	}
	return nil
}
