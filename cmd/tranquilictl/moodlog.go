package main

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ashureev/tranquili/internal/domain"
)

// loadMoodLog reads a list of mood entries from a YAML or JSON file.
// Entries with an unknown mood are rejected; dates are left to the
// evaluator, which skips the ones it cannot parse.
func loadMoodLog(path string) ([]domain.MoodEntry, error) {
	if path == "" {
		return nil, fmt.Errorf("--file is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("os.ReadFile(%s) > %w", path, err)
	}

	var entries []domain.MoodEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("yaml.Unmarshal(%s) > %w", path, err)
	}

	for i, e := range entries {
		if !e.Mood.Valid() {
			return nil, fmt.Errorf("entry %d (%s): unknown mood %q", i, e.Date, e.Mood)
		}
	}
	slog.Debug("loaded mood log", "path", path, "entries", len(entries))
	return entries, nil
}
