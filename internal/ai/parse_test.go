package ai

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlan(t *testing.T) {
	content := "```json\n" + `{
		"title": "Steady Breath",
		"description": "Slow down together.",
		"steps": ["Breathe in for 4", {"instruction": "Breathe out for 6"}, ""],
		"techniques": ["paced_breathing"],
		"personalized_phrase": "You are safe."
	}` + "\n```"

	plan, err := parsePlan(content)
	require.NoError(t, err)
	assert.Equal(t, "Steady Breath", plan.Title)
	assert.Equal(t, []string{"Breathe in for 4", "Breathe out for 6"}, plan.Steps)
	assert.Equal(t, []string{"paced_breathing"}, plan.Techniques)
	assert.Equal(t, "You are safe.", plan.Phrase)
	assert.Equal(t, 120, plan.DurationSeconds, "defaults to a minute per step")
}

func TestParsePlan_Invalid(t *testing.T) {
	for _, content := range []string{
		"not json at all",
		`{"title": "No steps", "steps": []}`,
		`{"steps": ["only steps"]}`,
		`{"title": "broken", `,
	} {
		_, err := parsePlan(content)
		assert.ErrorIs(t, err, ErrInvalidResponse, content)
	}
}

func TestParseClassification(t *testing.T) {
	cls, err := parseClassification(`{"severity": 7, "message": " Please reach out. "}`)
	require.NoError(t, err)
	assert.Equal(t, 3, cls.Severity)
	assert.Equal(t, "Please reach out.", cls.Message)

	cls, err = parseClassification(`Sure! {"severity": -1, "message": "ok", "exercise": "box breathing"}`)
	require.NoError(t, err)
	assert.Equal(t, 0, cls.Severity)
	assert.Equal(t, "box breathing", cls.Exercise)

	_, err = parseClassification(`{"message": "no severity"}`)
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want *Error
	}{
		{"unauthorized", &openai.APIError{HTTPStatusCode: http.StatusUnauthorized}, ErrAuthentication},
		{"rate limited", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}, ErrRateLimited},
		{"quota", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Type: "insufficient_quota"}, ErrQuotaExceeded},
		{"server", &openai.APIError{HTTPStatusCode: http.StatusInternalServerError}, ErrNetwork},
		{"request error", &openai.RequestError{HTTPStatusCode: http.StatusForbidden, Err: errors.New("forbidden")}, ErrAuthentication},
		{"transport", fmt.Errorf("dial tcp: connection refused"), ErrNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			assert.ErrorIs(t, got, tt.want)

			var ue *Error
			require.ErrorAs(t, got, &ue)
			assert.Equal(t, tt.want.StatusCode(), ue.StatusCode())
			assert.NotEmpty(t, ue.UserMessage())
		})
	}
	assert.NoError(t, classify(nil))
	assert.True(t, retryable(classify(errors.New("reset"))))
	assert.False(t, retryable(classify(&openai.APIError{HTTPStatusCode: http.StatusUnauthorized})))
}
