// Package achievement derives unlockable milestones from a user's mood log and
// chat activity. Evaluation is a pure recomputation over the full history: no
// state is cached between calls.
package achievement

import "github.com/ashureev/tranquili/internal/domain"

// Catalog ids.
const (
	FirstEntry = "first_entry"
	Streak3    = "streak_3"
	Streak7    = "streak_7"
	FirstHappy = "first_happy"
	FirstCalm  = "first_calm"
	FirstChat  = "first_chat"
)

// Definition describes a single unlockable milestone.
type Definition struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`

	// condition reports whether the milestone is earned for a snapshot.
	condition func(*snapshot) bool
}

// Status is a definition together with its derived unlock state.
type Status struct {
	Definition
	Unlocked bool `json:"unlocked"`
}

// snapshot holds the facts every predicate reads, computed once per call.
type snapshot struct {
	entries       int
	longestStreak int
	moods         map[domain.Mood]bool
	chatCount     int
}

// The greeting seeded into every conversation is counted as a stored turn,
// so engagement starts at the second message.
const chatEngagementThreshold = 1

var catalog = []Definition{
	{
		ID: FirstEntry, Title: "First Step",
		Description: "Log your first mood check-in",
		condition:   func(s *snapshot) bool { return s.entries >= 1 },
	},
	{
		ID: Streak3, Title: "Three-Day Streak",
		Description: "Check in three days in a row",
		condition:   func(s *snapshot) bool { return s.entries >= 3 && s.longestStreak >= 3 },
	},
	{
		ID: Streak7, Title: "Week of Reflection",
		Description: "Check in seven days in a row",
		condition:   func(s *snapshot) bool { return s.longestStreak >= 7 },
	},
	{
		ID: FirstHappy, Title: "Sunshine",
		Description: "Log a happy day",
		condition:   func(s *snapshot) bool { return s.moods[domain.MoodHappy] },
	},
	{
		ID: FirstCalm, Title: "Inner Peace",
		Description: "Log a calm day",
		condition:   func(s *snapshot) bool { return s.moods[domain.MoodCalm] },
	},
	{
		ID: FirstChat, Title: "Opening Up",
		Description: "Start a conversation with your companion",
		condition:   func(s *snapshot) bool { return s.chatCount > chatEngagementThreshold },
	},
}

// Catalog returns a copy of every definition in catalog order.
func Catalog() []Definition {
	out := make([]Definition, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the definition with the given id.
func Lookup(id string) (Definition, bool) {
	for _, d := range catalog {
		if d.ID == id {
			return d, true
		}
	}
	return Definition{}, false
}
