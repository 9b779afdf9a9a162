// Package domain contains core domain types for the Tranquili+ backend.
package domain

import (
	"time"
)

// User represents an anonymous per-device user.
type User struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// InactiveFor reports whether the user has not been seen for at least d.
func (u *User) InactiveFor(d time.Duration, now time.Time) bool {
	return now.Sub(u.LastSeenAt) >= d
}
