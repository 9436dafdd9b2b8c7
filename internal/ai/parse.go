package ai

import (
	"fmt"
	"strings"

	"github.com/calmbackend/internal/models"
	"github.com/tidwall/gjson"
)

const maxSeverity = 3

// extractJSON trims code fences and prose around the first JSON object.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}

func parsePlan(content string) (models.PanicPlan, error) {
	raw := extractJSON(content)
	if raw == "" || !gjson.Valid(raw) {
		return models.PanicPlan{}, fmt.Errorf("%w: plan is not JSON", ErrInvalidResponse)
	}
	doc := gjson.Parse(raw)

	plan := models.PanicPlan{
		Title:           strings.TrimSpace(doc.Get("title").String()),
		Description:     strings.TrimSpace(doc.Get("description").String()),
		DurationSeconds: int(doc.Get("duration_seconds").Int()),
		Phrase:          strings.TrimSpace(firstString(doc, "personalized_phrase", "phrase", "affirmation")),
	}

	for _, step := range doc.Get("steps").Array() {
		text := step.String()
		if step.IsObject() {
			text = firstString(step, "text", "instruction", "step")
		}
		if text = strings.TrimSpace(text); text != "" {
			plan.Steps = append(plan.Steps, text)
		}
	}
	for _, tech := range doc.Get("techniques").Array() {
		if t := strings.TrimSpace(tech.String()); t != "" {
			plan.Techniques = append(plan.Techniques, t)
		}
	}

	if plan.Title == "" || len(plan.Steps) == 0 {
		return models.PanicPlan{}, fmt.Errorf("%w: plan missing title or steps", ErrInvalidResponse)
	}
	if plan.DurationSeconds <= 0 {
		plan.DurationSeconds = 60 * len(plan.Steps)
	}
	return plan, nil
}

func parseClassification(content string) (Classification, error) {
	raw := extractJSON(content)
	if raw == "" || !gjson.Valid(raw) {
		return Classification{}, fmt.Errorf("%w: classification is not JSON", ErrInvalidResponse)
	}
	doc := gjson.Parse(raw)

	sev := doc.Get("severity")
	if !sev.Exists() {
		return Classification{}, fmt.Errorf("%w: classification missing severity", ErrInvalidResponse)
	}
	severity := int(sev.Int())
	if severity < 0 {
		severity = 0
	}
	if severity > maxSeverity {
		severity = maxSeverity
	}

	return Classification{
		Severity: severity,
		Message:  strings.TrimSpace(doc.Get("message").String()),
		Exercise: strings.TrimSpace(doc.Get("exercise").String()),
	}, nil
}

func firstString(doc gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := doc.Get(p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
