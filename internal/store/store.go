// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/tranquili/internal/domain"
)

// Repository defines the interface for persisting users and their journals.
type Repository interface {
	// GetUser retrieves a user by their user ID. Returns nil, nil when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// UpsertUser creates or updates a user record.
	UpsertUser(ctx context.Context, user *domain.User) error

	// UpdateLastSeen updates the last_seen_at timestamp for a user.
	UpdateLastSeen(ctx context.Context, userID string, lastSeen time.Time) error

	// ListInactiveUsers returns users last seen before the given time.
	ListInactiveUsers(ctx context.Context, before time.Time) ([]*domain.User, error)

	// DeleteUser removes a user together with every journal row they own.
	DeleteUser(ctx context.Context, userID string) error

	// AppendMood stores a new mood check-in.
	AppendMood(ctx context.Context, entry *domain.MoodEntry) error

	// ListMoods returns the complete mood log of a user ordered by date.
	ListMoods(ctx context.Context, userID string) ([]domain.MoodEntry, error)

	// ListMoodsInRange returns mood entries with from <= date <= to.
	ListMoodsInRange(ctx context.Context, userID, from, to string) ([]domain.MoodEntry, error)

	// AppendChatMessage stores a conversation turn.
	AppendChatMessage(ctx context.Context, msg *domain.ChatMessage) error

	// ListChatMessages returns the last limit messages, oldest first.
	// A limit <= 0 returns every message.
	ListChatMessages(ctx context.Context, userID string, limit int) ([]domain.ChatMessage, error)

	// CountChatMessages returns the number of stored turns for a user.
	CountChatMessages(ctx context.Context, userID string) (int, error)

	// AppendGratitude stores a gratitude diary entry.
	AppendGratitude(ctx context.Context, entry *domain.GratitudeEntry) error

	// ListGratitude returns the newest limit gratitude entries, newest first.
	ListGratitude(ctx context.Context, userID string, limit int) ([]domain.GratitudeEntry, error)

	// GetBaseline returns the last notified unlock set. Returns nil, nil when
	// the user has never been synced.
	GetBaseline(ctx context.Context, userID string) (*domain.AchievementBaseline, error)

	// SaveBaseline creates or replaces the unlock baseline of a user.
	SaveBaseline(ctx context.Context, baseline *domain.AchievementBaseline) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
