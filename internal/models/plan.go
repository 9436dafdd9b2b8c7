package models

import "time"

type PlanSource string

const (
	PlanSourceDefault  PlanSource = "default"
	PlanSourceTemplate PlanSource = "template"
	PlanSourceAI       PlanSource = "ai"
	PlanSourceCache    PlanSource = "cache"
)

type PanicPlan struct {
	Title           string     `json:"title" yaml:"title"`
	Description     string     `json:"description" yaml:"description"`
	Steps           []string   `json:"steps" yaml:"steps"`
	DurationSeconds int        `json:"duration_seconds" yaml:"duration_seconds"`
	Techniques      []string   `json:"techniques" yaml:"techniques"`
	Phrase          string     `json:"personalized_phrase" yaml:"phrase"`
	Source          PlanSource `json:"source" yaml:"-"`
	GeneratedAt     time.Time  `json:"generated_at" yaml:"-"`

	// Inputs the plan was generated for; used by the delta-update check.
	Emotion   string   `json:"emotion,omitempty" yaml:"-"`
	Intensity int      `json:"intensity,omitempty" yaml:"-"`
	Tags      []string `json:"tags,omitempty" yaml:"-"`
}
