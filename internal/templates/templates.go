package templates

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/calmbackend/internal/aicache"
	"github.com/calmbackend/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed exercises.yaml
var builtin []byte

const anyEmotion = "any"

type catalogue struct {
	Exercises map[string]map[string]models.PanicPlan `yaml:"exercises"`
}

// Library serves pre-written exercises for common emotion/intensity pairs.
type Library struct {
	exercises map[string]map[string]models.PanicPlan
}

// Default parses the embedded catalogue.
func Default() (*Library, error) {
	return Parse(builtin)
}

func Parse(data []byte) (*Library, error) {
	var c catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse exercise templates: %w", err)
	}
	if len(c.Exercises) == 0 {
		return nil, fmt.Errorf("exercise templates are empty")
	}
	for emotion, buckets := range c.Exercises {
		for bucket, plan := range buckets {
			if len(plan.Steps) == 0 {
				return nil, fmt.Errorf("template %s/%s has no steps", emotion, bucket)
			}
		}
	}
	return &Library{exercises: c.Exercises}, nil
}

// Lookup returns the exercise for emotion and bucket. ok is false when neither
// the emotion nor the catch-all has an entry for the bucket.
func (l *Library) Lookup(emotion, bucket string) (models.PanicPlan, bool) {
	emotion = strings.ToLower(strings.TrimSpace(emotion))
	if plan, ok := l.exercises[emotion][bucket]; ok {
		return withSource(plan), true
	}
	return models.PanicPlan{}, false
}

// LookupOrAny falls back to the catch-all exercises.
func (l *Library) LookupOrAny(emotion, bucket string) (models.PanicPlan, bool) {
	if plan, ok := l.Lookup(emotion, bucket); ok {
		return plan, true
	}
	return l.Lookup(anyEmotion, bucket)
}

// ForIntensity is LookupOrAny with the bucket derived from intensity.
func (l *Library) ForIntensity(emotion string, intensity int) (models.PanicPlan, bool) {
	return l.LookupOrAny(emotion, aicache.MoodBucket(intensity))
}

func withSource(plan models.PanicPlan) models.PanicPlan {
	plan.Steps = append([]string(nil), plan.Steps...)
	plan.Techniques = append([]string(nil), plan.Techniques...)
	plan.Source = models.PlanSourceTemplate
	return plan
}
