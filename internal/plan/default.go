package plan

import "github.com/calmbackend/internal/models"

// DefaultPlan is served whenever nothing better is available.
func DefaultPlan() models.PanicPlan {
	return models.PanicPlan{
		Title:       "Calm Down Plan",
		Description: "A simple plan to help you through a panic attack.",
		Steps: []string{
			"Find a comfortable place to sit or stand.",
			"Breathe in slowly through your nose for 4 counts.",
			"Hold your breath for 4 counts.",
			"Breathe out slowly through your mouth for 6 counts.",
			"Name 5 things you can see around you.",
			"Remind yourself: this feeling will pass.",
		},
		DurationSeconds: 300,
		Techniques:      []string{"breathing", "grounding"},
		Phrase:          "I am safe. This feeling will pass.",
		Source:          models.PlanSourceDefault,
	}
}
