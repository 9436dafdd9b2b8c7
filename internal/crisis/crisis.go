// Package crisis holds the escalation resources shown when a user may be in
// danger, and the keyword screen that triggers them.
package crisis

import "strings"

type Resource struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Details string `json:"details,omitempty"`
}

const Message = "It sounds like you're going through a lot right now. You don't have to face this alone. " +
	"Please reach out to one of these people who can help right away."

func Resources() []Resource {
	return []Resource{
		{Name: "988 Suicide & Crisis Lifeline", Contact: "988", Details: "Call or text, 24/7 (US)"},
		{Name: "Crisis Text Line", Contact: "741741", Details: "Text HOME"},
		{Name: "Emergency services", Contact: "911", Details: "If you are in immediate danger"},
		{Name: "International directory", Contact: "https://findahelpline.com"},
	}
}

var phrases = []string{
	"suicide",
	"suicidal",
	"kill myself",
	"end my life",
	"want to die",
	"self harm",
	"self-harm",
	"hurt myself",
	"no reason to live",
	"can't go on",
	"cant go on",
}

var tags = map[string]bool{
	"suicidal":  true,
	"self_harm": true,
	"self-harm": true,
	"hopeless":  true,
}

// Mentions reports whether text contains a self-harm phrase.
func Mentions(text string) bool {
	text = strings.ToLower(text)
	text = strings.ReplaceAll(text, "’", "'")
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// Tagged reports whether any tag is a self-harm marker.
func Tagged(list []string) bool {
	for _, t := range list {
		if tags[strings.ToLower(strings.TrimSpace(t))] {
			return true
		}
	}
	return false
}
