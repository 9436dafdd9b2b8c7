package aicache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldRegenerate(t *testing.T) {
	base := Snapshot{Emotion: "anxious", Intensity: 5, Tags: []string{"work", "chest"}}

	tests := []struct {
		name string
		next Snapshot
		want bool
	}{
		{"unchanged", base, false},
		{"emotion case only", Snapshot{Emotion: "Anxious", Intensity: 5, Tags: []string{"chest", "work"}}, false},
		{"small intensity move in bucket", Snapshot{Emotion: "anxious", Intensity: 6, Tags: base.Tags}, false},
		{"bucket change", Snapshot{Emotion: "anxious", Intensity: 7, Tags: base.Tags}, true},
		{"emotion change", Snapshot{Emotion: "sad", Intensity: 5, Tags: base.Tags}, true},
		{"tags mostly replaced", Snapshot{Emotion: "anxious", Intensity: 5, Tags: []string{"sleep", "family", "work"}}, true},
		{"one tag added", Snapshot{Emotion: "anxious", Intensity: 5, Tags: []string{"work", "chest", "dizzy"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldRegenerate(base, tt.next))
		})
	}

	// a 3-point jump that stays in the same bucket still regenerates
	assert.True(t, ShouldRegenerate(Snapshot{Intensity: 7}, Snapshot{Intensity: 10}))
}

func TestJaccard(t *testing.T) {
	assert.Equal(t, 1.0, Jaccard(nil, nil))
	assert.Equal(t, 1.0, Jaccard([]string{"A", "b"}, []string{"b", "a"}))
	assert.InDelta(t, 1.0/3.0, Jaccard([]string{"a", "b"}, []string{"b", "c"}), 1e-9)
	assert.Equal(t, 0.0, Jaccard([]string{"a"}, []string{"b"}))
}
