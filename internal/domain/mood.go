package domain

import "time"

// Mood is one of the fixed check-in categories.
type Mood string

const (
	MoodHappy   Mood = "happy"
	MoodCalm    Mood = "calm"
	MoodNeutral Mood = "neutral"
	MoodSad     Mood = "sad"
	MoodAnxious Mood = "anxious"
)

// DateLayout is the day-granularity layout used for every date field.
const DateLayout = "2006-01-02"

// Moods returns the closed set of check-in moods in display order.
func Moods() []Mood {
	return []Mood{MoodHappy, MoodCalm, MoodNeutral, MoodSad, MoodAnxious}
}

// Valid reports whether m belongs to the closed mood set.
func (m Mood) Valid() bool {
	for _, known := range Moods() {
		if m == known {
			return true
		}
	}
	return false
}

// MoodEntry is one self-reported emotional state on one calendar day.
// Entries are immutable once stored.
type MoodEntry struct {
	ID        string    `json:"id" yaml:"id,omitempty"`
	UserID    string    `json:"user_id" yaml:"-"`
	Date      string    `json:"date" yaml:"date"`
	Mood      Mood      `json:"mood" yaml:"mood"`
	Note      string    `json:"note,omitempty" yaml:"note,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
}
