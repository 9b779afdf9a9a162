package domain

import "time"

// GratitudeEntry is a diary line the user is thankful for on a given day.
type GratitudeEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Date      string    `json:"date"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
