package domain

import "time"

// AchievementBaseline is the unlocked set a user was last notified about.
// A user without a baseline has never been synced.
type AchievementBaseline struct {
	UserID   string
	Unlocked []string
	SyncedAt time.Time
}
