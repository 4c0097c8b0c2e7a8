package mapview

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rrweller/finn-apartment-finder/internal/infrastructure/monitoring/logging"
	"github.com/rrweller/finn-apartment-finder/internal/infrastructure/monitoring/prometheus"
	apperrors "github.com/rrweller/finn-apartment-finder/pkg/errors"
)

// Store defaults.
const (
	DefaultIdleTTL       = 2 * time.Hour
	DefaultSweepInterval = 5 * time.Minute
	DefaultMaxSessions   = 10000
)

// ErrSessionNotFound is returned for unknown or evicted session ids.
var ErrSessionNotFound = apperrors.New(apperrors.ErrCodeSessionNotFound, "session not found")

// StoreConfig bounds the session population.
type StoreConfig struct {
	IdleTTL       time.Duration
	SweepInterval time.Duration
	MaxSessions   int
}

// Store owns every live session, keyed by a random uuid.
type Store struct {
	cfg     StoreConfig
	deps    Deps
	logger  logging.Logger
	metrics *prometheus.AppMetrics
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore creates an empty store. deps is handed to every new session.
func NewStore(cfg StoreConfig, deps Deps) *Store {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	deps = deps.withDefaults()
	return &Store{
		cfg:      cfg,
		deps:     deps,
		logger:   deps.Logger.Named("sessions"),
		metrics:  deps.Metrics,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session.
func (st *Store) Create() (*Session, error) {
	st.mu.Lock()
	if len(st.sessions) >= st.cfg.MaxSessions {
		st.mu.Unlock()
		return nil, apperrors.New(apperrors.ErrCodeServiceUnavailable, "too many active sessions").
			WithDetail(fmt.Sprintf("max=%d", st.cfg.MaxSessions))
	}
	id := uuid.NewString()
	s := NewSession(id, st.deps)
	s.Touch(st.now())
	st.sessions[id] = s
	n := len(st.sessions)
	st.mu.Unlock()

	prometheus.RecordSessionCreated(st.metrics)
	st.logger.Debug("session created", logging.String("session_id", id), logging.Int("active", n))
	return s, nil
}

// Get returns the session and marks it active.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound.WithDetail(id)
	}
	s.Touch(st.now())
	return s, nil
}

// Delete removes a session.
func (st *Store) Delete(id string) error {
	st.mu.Lock()
	_, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	if !ok {
		return ErrSessionNotFound.WithDetail(id)
	}
	prometheus.RecordSessionRemoved(st.metrics, "deleted")
	st.logger.Debug("session deleted", logging.String("session_id", id))
	return nil
}

// Sweep evicts sessions idle for longer than the TTL as of now and returns
// how many were removed.
func (st *Store) Sweep(now time.Time) int {
	cutoff := now.Add(-st.cfg.IdleTTL)

	st.mu.Lock()
	var evicted []string
	for id, s := range st.sessions {
		if s.LastSeen().Before(cutoff) {
			delete(st.sessions, id)
			evicted = append(evicted, id)
		}
	}
	remaining := len(st.sessions)
	st.mu.Unlock()

	for range evicted {
		prometheus.RecordSessionRemoved(st.metrics, "idle")
	}
	if len(evicted) > 0 {
		st.logger.Info("evicted idle sessions", logging.Int("evicted", len(evicted)), logging.Int("remaining", remaining))
	}
	return len(evicted)
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Run sweeps on every interval until ctx is done.
func (st *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(st.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.Sweep(st.now())
		}
	}
}
