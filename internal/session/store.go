package session

import (
	"errors"
	"sync"
	"time"

	"github.com/Sternrassler/artsel/pkg/logging"
	"github.com/Sternrassler/artsel/pkg/metrics"
	"github.com/Sternrassler/artsel/pkg/pagination"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session not found")

// Store holds the live sessions of a server process. Sessions live in memory
// only and are gone after a restart.
type Store struct {
	fetcher  pagination.PageFetcher
	pageSize int
	logger   zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates a store whose sessions fetch through fetcher.
func NewStore(fetcher pagination.PageFetcher, pageSize int) *Store {
	return &Store{
		fetcher:  fetcher,
		pageSize: pageSize,
		logger:   logging.NewLogger("session-store"),
		sessions: make(map[string]*Session),
	}
}

// Create starts a new empty session.
func (st *Store) Create() *Session {
	s := New(st.fetcher, st.pageSize)

	st.mu.Lock()
	st.sessions[s.ID()] = s
	st.mu.Unlock()

	metrics.SessionsActive.Inc()
	st.logger.Info().Str("session_id", s.ID()).Msg("Session created")
	return s
}

// Get returns the session with id.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete removes the session with id.
func (st *Store) Delete(id string) error {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	s.release()
	metrics.SessionsActive.Dec()
	st.logger.Info().Str("session_id", id).Msg("Session deleted")
	return nil
}

// Len is the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep deletes sessions idle for longer than maxIdle and returns how many went.
func (st *Store) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	st.mu.Lock()
	var expired []*Session
	for id, s := range st.sessions {
		if s.LastUsed().Before(cutoff) {
			expired = append(expired, s)
			delete(st.sessions, id)
		}
	}
	st.mu.Unlock()

	for _, s := range expired {
		s.release()
		metrics.SessionsActive.Dec()
	}
	if len(expired) > 0 {
		st.logger.Info().Int("expired", len(expired)).Msg("Idle sessions swept")
	}
	return len(expired)
}
