package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ashureev/tranquili/internal/achievement"
)

func newAchievementsCommand() *cobra.Command {
	var (
		file      string
		chatCount int
		asJSON    bool
	)

	command := &cobra.Command{
		Use:   "achievements",
		Short: "Evaluate every achievement against a mood log",
		RunE: func(cmd *cobra.Command, args []string) error {
			if chatCount < 0 {
				return fmt.Errorf("--chat-count must not be negative")
			}
			entries, err := loadMoodLog(file)
			if err != nil {
				return err
			}

			statuses := achievement.Evaluate(entries, chatCount)
			if asJSON {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(statuses)
			}
			return displayStatuses(cmd.OutOrStdout(), statuses)
		},
	}

	command.Flags().StringVar(&file, "file", "", "Mood log file (YAML or JSON)")
	command.Flags().IntVar(&chatCount, "chat-count", 0, "Number of stored chat messages")
	command.Flags().BoolVar(&asJSON, "json", false, "Print statuses as JSON")

	return command
}

func displayStatuses(w io.Writer, statuses []achievement.Status) error {
	unlockedMark := color.New(color.FgGreen, color.Bold)
	lockedMark := color.New(color.FgHiBlack)

	unlocked := 0
	for _, s := range statuses {
		mark := lockedMark.Sprint("locked  ")
		if s.Unlocked {
			unlocked++
			mark = unlockedMark.Sprint("unlocked")
		}
		if _, err := fmt.Fprintf(w, "%s  %-12s %s: %s\n", mark, s.ID, s.Title, s.Description); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "\n%d of %d unlocked\n", unlocked, len(statuses))
	return err
}

func newStreakCommand() *cobra.Command {
	var file string

	command := &cobra.Command{
		Use:   "streak",
		Short: "Print the longest run of consecutive check-in days",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := loadMoodLog(file)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), achievement.LongestStreak(entries))
			return err
		},
	}

	command.Flags().StringVar(&file, "file", "", "Mood log file (YAML or JSON)")

	return command
}

func newDiffCommand() *cobra.Command {
	var (
		file      string
		chatCount int
		previous  []string
	)

	command := &cobra.Command{
		Use:   "diff",
		Short: "Show achievements that would notify given a previously unlocked set",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := loadMoodLog(file)
			if err != nil {
				return err
			}
			known := make([]string, 0, len(previous))
			for _, id := range previous {
				id = strings.TrimSpace(id)
				if _, ok := achievement.Lookup(id); !ok {
					return fmt.Errorf("unknown achievement id %q", id)
				}
				known = append(known, id)
			}

			fresh := achievement.NewlyUnlocked(known, achievement.Evaluate(entries, chatCount))
			out := cmd.OutOrStdout()
			if len(fresh) == 0 {
				_, err = fmt.Fprintln(out, "nothing new")
				return err
			}
			highlight := color.New(color.FgYellow, color.Bold)
			for _, d := range fresh {
				if _, err := fmt.Fprintf(out, "%s %s: %s\n", highlight.Sprint("new"), d.ID, d.Title); err != nil {
					return err
				}
			}
			return nil
		},
	}

	command.Flags().StringVar(&file, "file", "", "Mood log file (YAML or JSON)")
	command.Flags().IntVar(&chatCount, "chat-count", 0, "Number of stored chat messages")
	command.Flags().StringSliceVar(&previous, "previous", nil, "Comma-separated ids already unlocked")

	return command
}
