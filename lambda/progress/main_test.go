package main

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/calmbackend/internal/auth"
	"github.com/calmbackend/internal/logging"
	"github.com/calmbackend/internal/models"
	"github.com/calmbackend/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUsers map[string]*models.User

func (s stubUsers) Get(_ context.Context, id string) (*models.User, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, auth.ErrUserNotFound
}

type memTracker struct {
	state models.Progress
	day   string
}

func (m *memTracker) Get(context.Context, string) (*models.Progress, error) {
	p := m.state
	return &p, nil
}

func (m *memTracker) RecordActivity(context.Context, string) (*models.Progress, error) {
	m.state = progress.Advance(m.state, m.day)
	p := m.state
	return &p, nil
}

func TestProgress_RecordAndRead(t *testing.T) {
	tokens, err := auth.NewTokens("test-secret", "calm-backend", time.Hour)
	require.NoError(t, err)
	tok, _, err := tokens.GenerateToken("u1", true)
	require.NoError(t, err)

	tr := &memTracker{day: "2026-02-01"}
	h := &handler{tokens: tokens, users: stubUsers{"u1": {ID: "u1"}}, progress: tr, log: logging.Discard()}
	call := func(method string) models.Progress {
		resp, err := h.handle(context.Background(), events.APIGatewayProxyRequest{
			HTTPMethod: method,
			Headers:    map[string]string{"Authorization": "Bearer " + tok},
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var p models.Progress
		require.NoError(t, json.Unmarshal([]byte(resp.Body), &p))
		return p
	}

	call(http.MethodPost)
	tr.day = "2026-02-02"
	call(http.MethodPost)
	p := call(http.MethodGet)

	assert.Equal(t, 2, p.CurrentStreak)
	assert.Equal(t, 2, p.TotalSessions)
	assert.Equal(t, "2026-02-02", p.LastActiveDay)
}
