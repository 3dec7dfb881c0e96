package services

import (
	"context"
	"time"

	"vpn-shop-bot/internal/logger"
)

// StateCleaner drops conversation state older than maxAge
type StateCleaner interface {
	CleanupExpiredStates(maxAge time.Duration) error
}

// Cleaner forgets idle per-user bookkeeping
type Cleaner interface {
	Cleanup()
}

// StateCleanupJob clears stale conversation state and idle rate limiters
func StateCleanupJob(states StateCleaner, limiter Cleaner, maxAge time.Duration, log *logger.Logger) Job {
	return func(_ context.Context) error {
		if limiter != nil {
			limiter.Cleanup()
		}
		if err := states.CleanupExpiredStates(maxAge); err != nil {
			return err
		}
		log.Debug("Expired states cleaned up")
		return nil
	}
}
