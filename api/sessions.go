package api

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/saquibalam09/kanban/board"
)

// viewerSession is the per-browser state: one controller and the notification
// broker its event streams read from.
type viewerSession struct {
	id       string
	ctrl     *board.Controller
	notes    *notificationBroker
	lastSeen atomic.Int64
}

func (s *viewerSession) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// Sessions tracks viewer sessions and expires the idle ones.
type Sessions struct {
	store   board.TaskStore
	queries board.TaskQueries
	idle    time.Duration
	logger  *log.Logger
	now     func() time.Time

	mu   sync.Mutex
	byID map[string]*viewerSession
}

// NewSessions creates a registry whose controllers share store and queries.
func NewSessions(store board.TaskStore, queries board.TaskQueries, idle time.Duration, logger *log.Logger) *Sessions {
	if logger == nil {
		logger = log.New()
	}
	return &Sessions{
		store:   store,
		queries: queries,
		idle:    idle,
		logger:  logger,
		now:     time.Now,
		byID:    make(map[string]*viewerSession),
	}
}

// acquire returns the session for id, creating it on first use.
func (s *Sessions) acquire(id string) *viewerSession {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	vs, ok := s.byID[id]
	if !ok {
		notes := newNotificationBroker()
		vs = &viewerSession{
			id:    id,
			ctrl:  board.New(s.store, s.queries, notes, s.logger),
			notes: notes,
		}
		s.byID[id] = vs
		s.logger.WithField("session", id).Debug("session started")
	}
	vs.touch(now)
	return vs
}

// Len reports the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// Reap closes sessions idle for longer than the idle timeout. Sessions with
// an open event stream are never idle.
func (s *Sessions) Reap() int {
	cutoff := s.now().Add(-s.idle).UnixNano()
	var expired []*viewerSession
	s.mu.Lock()
	for id, vs := range s.byID {
		if vs.notes.active() > 0 || vs.lastSeen.Load() > cutoff {
			continue
		}
		delete(s.byID, id)
		expired = append(expired, vs)
	}
	s.mu.Unlock()

	for _, vs := range expired {
		vs.ctrl.Close()
		vs.notes.close()
		s.logger.WithField("session", vs.id).Debug("session expired")
	}
	return len(expired)
}

// Run reaps idle sessions until ctx is done, then closes the rest.
func (s *Sessions) Run(ctx context.Context) {
	interval := s.idle / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-ticker.C:
			if n := s.Reap(); n > 0 {
				s.logger.WithField("expired", n).Info("reaped idle sessions")
			}
		}
	}
}

// Close tears down every session.
func (s *Sessions) Close() {
	s.mu.Lock()
	all := s.byID
	s.byID = make(map[string]*viewerSession)
	s.mu.Unlock()
	for _, vs := range all {
		vs.ctrl.Close()
		vs.notes.close()
	}
}
