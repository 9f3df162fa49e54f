package core

// scheduler.go expires idle import sessions.
//
// Sessions live only in memory and are normally discarded when the operator
// closes the import. Sessions abandoned without that call are removed once
// idle for longer than the configured TTL. An open session is cancelled
// first so its result records why it ended.

import (
	"context"
	"log/slog"
	"time"

	"github.com/JonMunkholm/foodops/internal/metrics"
)

// StartSessionJanitor removes idle sessions every interval until ctx is done.
func (s *Service) StartSessionJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	slog.Info("session janitor started", "interval", interval, "ttl", s.opts.SessionTTL)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session janitor stopped")
			return
		case now := <-ticker.C:
			s.ExpireSessions(now)
		}
	}
}

// ExpireSessions removes sessions idle since before now minus the TTL and
// returns how many were removed. A session busy in an upload holds its own
// lock, so activity is read without holding the service lock.
func (s *Service) ExpireSessions(now time.Time) int {
	cutoff := now.Add(-s.opts.SessionTTL)

	s.mu.RLock()
	open := make(map[string]*Session, len(s.sessions))
	for id, sess := range s.sessions {
		open[id] = sess
	}
	s.mu.RUnlock()

	var idle []string
	for id, sess := range open {
		if sess.LastActivity().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	if len(idle) == 0 {
		return 0
	}

	s.mu.Lock()
	var expired []*Session
	for _, id := range idle {
		// Skip ids discarded or replaced while unlocked.
		if sess, ok := s.sessions[id]; ok && sess == open[id] {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()

	for _, sess := range expired {
		if !sess.Stage().Terminal() {
			_, _ = sess.Cancel()
		}
	}
	if len(expired) > 0 {
		metrics.ActiveSessions.Set(float64(n))
		slog.Info("expired idle import sessions", "count", len(expired), "remaining", n)
	}
	return len(expired)
}
