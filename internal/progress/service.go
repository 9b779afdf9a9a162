// Package progress re-evaluates achievements after journal changes and
// forwards newly unlocked ones to the notifier.
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/tranquili/internal/achievement"
	"github.com/ashureev/tranquili/internal/domain"
	"github.com/ashureev/tranquili/internal/shared"
)

// Store is the subset of the repository the service reads and writes.
type Store interface {
	ListMoods(ctx context.Context, userID string) ([]domain.MoodEntry, error)
	CountChatMessages(ctx context.Context, userID string) (int, error)
	GetBaseline(ctx context.Context, userID string) (*domain.AchievementBaseline, error)
	SaveBaseline(ctx context.Context, baseline *domain.AchievementBaseline) error
}

// Notifier receives achievements that became unlocked since the last refresh.
type Notifier interface {
	Publish(ctx context.Context, userID string, defs []achievement.Definition)
}

// Result is the outcome of a refresh.
type Result struct {
	Statuses      []achievement.Status
	NewlyUnlocked []achievement.Definition
	// Baselined is true when this refresh was the user's first and only
	// recorded the unlock set without notifying.
	Baselined bool
}

// Service evaluates achievements on behalf of a user.
type Service struct {
	store    Store
	notifier Notifier
	locks    shared.KeyedMutex
	now      func() time.Time
}

// NewService creates a progress service. notifier may be nil.
func NewService(store Store, notifier Notifier) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		now:      time.Now,
	}
}

// Forget drops the per-user lock after a user is purged. A lock still held
// by a running refresh is left in place.
func (s *Service) Forget(userID string) {
	s.locks.Forget(userID)
}

func (s *Service) evaluate(ctx context.Context, userID string) ([]achievement.Status, error) {
	moods, err := s.store.ListMoods(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load mood log: %w", err)
	}
	chats, err := s.store.CountChatMessages(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count chat messages: %w", err)
	}
	return achievement.Evaluate(moods, chats), nil
}

// Statuses returns the current achievement statuses without touching the
// baseline.
func (s *Service) Statuses(ctx context.Context, userID string) ([]achievement.Status, error) {
	return s.evaluate(ctx, userID)
}

// Refresh re-evaluates a user's achievements and publishes only those that
// were not unlocked at the previous refresh. The first refresh for a user
// stores the baseline silently, so historical unlocks never notify.
func (s *Service) Refresh(ctx context.Context, userID string) (Result, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	statuses, err := s.evaluate(ctx, userID)
	if err != nil {
		return Result{}, err
	}
	result := Result{Statuses: statuses}

	baseline, err := s.store.GetBaseline(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("load baseline: %w", err)
	}

	if baseline == nil {
		if err := s.save(ctx, userID, statuses); err != nil {
			return Result{}, err
		}
		slog.Debug("achievement baseline synced", "user_id", userID, "unlocked", len(achievement.UnlockedIDs(statuses)))
		result.Baselined = true
		return result, nil
	}

	fresh := achievement.NewlyUnlocked(baseline.Unlocked, statuses)
	if len(fresh) == 0 {
		return result, nil
	}

	if err := s.save(ctx, userID, statuses); err != nil {
		return Result{}, err
	}
	result.NewlyUnlocked = fresh

	ids := make([]string, 0, len(fresh))
	for _, d := range fresh {
		ids = append(ids, d.ID)
	}
	slog.Info("achievements unlocked", "user_id", userID, "achievements", ids)

	if s.notifier != nil {
		s.notifier.Publish(ctx, userID, fresh)
	}
	return result, nil
}

func (s *Service) save(ctx context.Context, userID string, statuses []achievement.Status) error {
	err := s.store.SaveBaseline(ctx, &domain.AchievementBaseline{
		UserID:   userID,
		Unlocked: achievement.UnlockedIDs(statuses),
		SyncedAt: s.now(),
	})
	if err != nil {
		return fmt.Errorf("save baseline: %w", err)
	}
	return nil
}
