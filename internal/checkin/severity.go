package checkin

import (
	"strings"

	"github.com/calmbackend/internal/crisis"
)

const (
	MaxSeverity = 3

	// CrisisSeverity and above route to crisis resources.
	CrisisSeverity = 2
)

var acuteTags = map[string]bool{
	"panic":           true,
	"panic_attack":    true,
	"cant_breathe":    true,
	"chest_pain":      true,
	"overwhelmed":     true,
	"dissociating":    true,
	"racing_thoughts": true,
}

// LocalSeverity scores a check-in without the remote classifier. Mood is the
// self-reported distress level, 0 (calm) to 10 (worst).
func LocalSeverity(mood int, tags []string, note string) int {
	if crisis.Tagged(tags) || crisis.Mentions(note) {
		return MaxSeverity
	}

	severity := 0
	switch {
	case mood >= 8:
		severity = 2
	case mood >= 5:
		severity = 1
	}

	for _, t := range tags {
		if acuteTags[strings.ToLower(strings.TrimSpace(t))] {
			severity++
			break
		}
	}
	if severity > MaxSeverity {
		severity = MaxSeverity
	}
	return severity
}
