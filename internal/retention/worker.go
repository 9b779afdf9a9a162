// Package retention purges anonymous users that have been inactive for too
// long.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go"

	"github.com/ashureev/tranquili/internal/domain"
	"github.com/ashureev/tranquili/internal/shared"
)

// Store is the subset of the repository the worker needs.
type Store interface {
	ListInactiveUsers(ctx context.Context, before time.Time) ([]*domain.User, error)
	DeleteUser(ctx context.Context, userID string) error
}

// CleanupCallback is called after a user has been deleted.
type CleanupCallback func(userID string)

// deleteUserWithRetry deletes a user with exponential backoff to ride out
// SQLITE_BUSY while request handlers are writing.
func deleteUserWithRetry(ctx context.Context, repo Store, userID string) error {
	err := retry.Do(
		func() error { return repo.DeleteUser(ctx, userID) },
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(shared.IsRetryableDBError),
		retry.OnRetry(func(n uint, err error) {
			slog.Debug("Retention worker: database busy during delete, retrying",
				"user_id", userID, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return fmt.Errorf("delete user %s: %w", userID, err)
	}
	return nil
}

// StartWorker runs a background goroutine that periodically deletes users
// not seen within retention. A zero retention disables the worker.
func StartWorker(ctx context.Context, repo Store, retention, interval time.Duration, onCleanup CleanupCallback) {
	if retention <= 0 {
		slog.Info("Retention worker disabled")
		return
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", interval, "retention", retention)

		for {
			select {
			case <-ticker.C:
				Sweep(ctx, repo, retention, time.Now(), onCleanup)
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep deletes every user last seen before now minus retention and returns
// the number deleted.
func Sweep(ctx context.Context, repo Store, retention time.Duration, now time.Time, onCleanup CleanupCallback) int {
	inactive, err := repo.ListInactiveUsers(ctx, now.Add(-retention))
	if err != nil {
		slog.Error("Retention worker failed to list inactive users", "error", err)
		return 0
	}
	if len(inactive) == 0 {
		return 0
	}

	slog.Info("Retention worker found inactive users", "count", len(inactive))

	deleted := 0
	for _, user := range inactive {
		if ctx.Err() != nil {
			break
		}
		if !user.InactiveFor(retention, now) {
			continue
		}
		if err := deleteUserWithRetry(ctx, repo, user.UserID); err != nil {
			slog.Warn("Retention worker failed to delete user after retries",
				"error", err, "user_id", user.UserID)
			continue
		}
		deleted++
		if onCleanup != nil {
			onCleanup(user.UserID)
		}
	}

	slog.Info("Retention worker cleanup completed", "deleted", deleted)
	return deleted
}
