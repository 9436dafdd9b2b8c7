package ai

import (
	"fmt"
	"strings"
)

const planSystemPrompt = `You are a calm, warm panic-support coach. Reply with a single JSON object:
{"title": string, "description": string, "steps": [string], "duration_seconds": number,
"techniques": [string], "personalized_phrase": string}
Use 3 to 6 short, concrete steps (breathing, grounding, reassurance). Never give medical advice.`

const checkInSystemPrompt = `You triage a daily wellbeing check-in. Mood is distress from 0 (calm) to 10 (overwhelmed).
Reply with a single JSON object: {"severity": 0-3, "message": string, "exercise": string}
severity 0 = fine, 1 = mild, 2 = concerning, 3 = possible crisis. Be kind and brief.`

const companionSystemPrompt = `You are a gentle companion for someone having a panic attack or a hard moment.
Keep replies under 80 words. Guide slow breathing and grounding, validate feelings, and never
diagnose. If the person mentions harming themselves, urge them to contact local emergency services.`

func renderPlanPrompt(req PlanRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Emotion: %s\n", fallback(req.Emotion, "unspecified"))
	fmt.Fprintf(&b, "Intensity (0-10): %d\n", req.Intensity)
	if len(req.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(req.Tags, ", "))
	}
	if req.Context != "" {
		fmt.Fprintf(&b, "What is happening: %s\n", req.Context)
	}
	fmt.Fprintf(&b, "Language: %s\n", fallback(req.Language, "en"))
	return b.String()
}

func renderCheckInPrompt(req CheckInRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Mood: %d\n", req.Mood)
	if len(req.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(req.Tags, ", "))
	}
	if req.Note != "" {
		fmt.Fprintf(&b, "Note: %s\n", req.Note)
	}
	return b.String()
}

func fallback(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
