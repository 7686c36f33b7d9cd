package coach

import (
	"context"
	"fmt"
	"strings"

	"github.com/julianstephens/habitcoach/internal/models"
)

// RuleBased answers from the habit context alone. It never fails and is
// the last link of the fallback chain.
type RuleBased struct{}

func (RuleBased) Name() string { return "rules" }

func (RuleBased) SendMessage(_ context.Context, hc models.HabitContext, message string) (string, error) {
	message, err := validateMessage(message)
	if err != nil {
		return "", err
	}
	msg := strings.ToLower(message)

	if hc.TotalHabits == 0 {
		return "You are not tracking any habits yet. Start with one small habit you can do every day.", nil
	}

	switch {
	case strings.Contains(msg, "streak"):
		if len(hc.TopHabits) == 0 || hc.TopHabits[0].Streak == 0 {
			return "No streaks running yet. Complete a habit today to start one.", nil
		}
		best := hc.TopHabits[0]
		return fmt.Sprintf("Your longest running streak is %q at %d %s. Keep it going today.",
			best.Name, best.Streak, plural(best.Streak, "day", "days")), nil
	case strings.Contains(msg, "today"), strings.Contains(msg, "progress"):
		return progressReply(hc), nil
	}

	if hc.ProgressPercentage >= 100 {
		return "Everything is done for today. Nice work.", nil
	}
	for _, h := range hc.TopHabits {
		if !h.CompletedToday && h.Streak > 0 {
			return fmt.Sprintf("%s Don't break your %d-day %q streak.", progressReply(hc), h.Streak, h.Name), nil
		}
	}
	return progressReply(hc), nil
}

func progressReply(hc models.HabitContext) string {
	left := hc.TotalHabits - hc.CompletedToday
	if left <= 0 {
		return "Everything is done for today. Nice work."
	}
	return fmt.Sprintf("You have completed %d of %d habits today (%d%%). %d %s left.",
		hc.CompletedToday, hc.TotalHabits, hc.ProgressPercentage, left, plural(left, "habit", "habits"))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
