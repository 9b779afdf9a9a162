package achievement

// UnlockedIDs returns the ids of unlocked statuses in catalog order.
func UnlockedIDs(statuses []Status) []string {
	ids := make([]string, 0, len(statuses))
	for _, s := range statuses {
		if s.Unlocked {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// NewlyUnlocked returns the definitions unlocked in statuses but absent from
// previous. Diffing identical states yields nothing, so callers may evaluate
// as often as they like without producing duplicate notifications.
func NewlyUnlocked(previous []string, statuses []Status) []Definition {
	seen := make(map[string]struct{}, len(previous))
	for _, id := range previous {
		seen[id] = struct{}{}
	}

	var fresh []Definition
	for _, s := range statuses {
		if !s.Unlocked {
			continue
		}
		if _, ok := seen[s.ID]; ok {
			continue
		}
		fresh = append(fresh, s.Definition)
	}
	return fresh
}
