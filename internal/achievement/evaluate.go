package achievement

import "github.com/ashureev/tranquili/internal/domain"

// Evaluate computes the unlock state of every catalog achievement from the
// complete mood log and the stored chat message count. It is total over its
// input: entries may be unordered, duplicated, or malformed, and the slice is
// never modified. Results are in catalog order.
func Evaluate(moodLog []domain.MoodEntry, chatActivityCount int) []Status {
	if chatActivityCount < 0 {
		chatActivityCount = 0
	}

	snap := &snapshot{
		entries:       len(moodLog),
		longestStreak: LongestStreak(moodLog),
		moods:         make(map[domain.Mood]bool, len(domain.Moods())),
		chatCount:     chatActivityCount,
	}
	for _, e := range moodLog {
		if e.Mood.Valid() {
			snap.moods[e.Mood] = true
		}
	}

	out := make([]Status, 0, len(catalog))
	for _, d := range catalog {
		out = append(out, Status{Definition: d, Unlocked: d.condition(snap)})
	}
	return out
}
