package core

// scheduler.go runs the background sweep that drops idle import sessions.
//
// Sessions live in memory only. A session that has not been touched for
// Upload.SessionTTL is reset and removed. The sweep is context-aware and
// stops on shutdown.

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is used when the caller passes a non-positive interval.
const DefaultSweepInterval = time.Minute

// StartSessionJanitor periodically expires idle sessions until ctx is cancelled.
func (s *Service) StartSessionJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	slog.Info("session janitor started",
		"interval", interval,
		"session_ttl", s.cfg.Upload.SessionTTL,
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session janitor stopped")
			return
		case <-ticker.C:
			if removed := s.ExpireIdle(); removed > 0 {
				slog.Info("expired idle import sessions",
					"removed", removed,
					"remaining", s.ActiveSessions(),
				)
			}
		}
	}
}
