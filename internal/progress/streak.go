package progress

import (
	"time"

	"github.com/calmbackend/internal/models"
)

const dayLayout = "2006-01-02"

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

// Advance applies one activity on day to p. Repeat activity on the same day
// only counts the session; the next day extends the streak; any gap resets it.
func Advance(p models.Progress, day string) models.Progress {
	p.TotalSessions++
	switch {
	case p.LastActiveDay == day:
		if p.CurrentStreak == 0 {
			p.CurrentStreak = 1
		}
	case p.LastActiveDay != "" && nextDay(p.LastActiveDay) == day:
		p.CurrentStreak++
	case p.LastActiveDay != "" && day < p.LastActiveDay:
		// late-arriving activity for an earlier day does not move the streak
		return p
	default:
		p.CurrentStreak = 1
	}
	p.LastActiveDay = day
	if p.CurrentStreak > p.LongestStreak {
		p.LongestStreak = p.CurrentStreak
	}
	return p
}

func nextDay(day string) string {
	t, err := time.Parse(dayLayout, day)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, 1).Format(dayLayout)
}
