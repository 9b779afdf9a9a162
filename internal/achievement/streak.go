package achievement

import (
	"sort"
	"time"

	"github.com/ashureev/tranquili/internal/domain"
)

const secondsPerDay = 24 * 60 * 60

// DayIndex converts a YYYY-MM-DD date to days since the Unix epoch. The date
// is parsed in UTC so offsets and daylight saving never shift the index.
func DayIndex(date string) (int64, bool) {
	t, err := time.ParseInLocation(domain.DateLayout, date, time.UTC)
	if err != nil {
		return 0, false
	}
	return floorDiv(t.Unix(), secondsPerDay), true
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// LongestStreak returns the longest run of consecutive calendar days in the
// log. Input order does not matter, same-day duplicates never extend a run,
// and unparseable dates are skipped. The historical maximum is returned, not
// the trailing run.
func LongestStreak(entries []domain.MoodEntry) int {
	days := make([]int64, 0, len(entries))
	for _, e := range entries {
		if d, ok := DayIndex(e.Date); ok {
			days = append(days, d)
		}
	}
	if len(days) == 0 {
		return 0
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	longest, current := 1, 1
	for i := 1; i < len(days); i++ {
		switch gap := days[i] - days[i-1]; {
		case gap == 0:
		case gap == 1:
			current++
		default:
			current = 1
		}
		if current > longest {
			longest = current
		}
	}
	return longest
}
