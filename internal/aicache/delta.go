package aicache

import "strings"

const (
	intensityDeltaThreshold = 3
	tagSimilarityThreshold  = 0.5
)

// Snapshot is the user state an AI response was generated for.
type Snapshot struct {
	Emotion   string
	Intensity int
	Tags      []string
}

// ShouldRegenerate reports whether next differs enough from prev to be worth a
// new AI call instead of reusing the previous content.
func ShouldRegenerate(prev, next Snapshot) bool {
	if !strings.EqualFold(strings.TrimSpace(prev.Emotion), strings.TrimSpace(next.Emotion)) {
		return true
	}
	if MoodBucket(prev.Intensity) != MoodBucket(next.Intensity) {
		return true
	}
	delta := next.Intensity - prev.Intensity
	if delta < 0 {
		delta = -delta
	}
	if delta >= intensityDeltaThreshold {
		return true
	}
	return Jaccard(prev.Tags, next.Tags) < tagSimilarityThreshold
}
