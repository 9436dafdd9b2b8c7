package main

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/calmbackend/internal/auth"
	"github.com/calmbackend/internal/checkin"
	"github.com/calmbackend/internal/entitlement"
	"github.com/calmbackend/internal/logging"
	"github.com/calmbackend/internal/models"
	"github.com/calmbackend/internal/templates"
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

type memHistory struct {
	saved []models.CheckIn
}

func (m *memHistory) Save(_ context.Context, c *models.CheckIn) error {
	c.ID = "c" + string(rune('0'+len(m.saved)))
	m.saved = append(m.saved, *c)
	return nil
}

func (m *memHistory) Recent(_ context.Context, _ string, _ int) ([]models.CheckIn, error) {
	return m.saved, nil
}

// replay stores the first response per client key, like the DynamoDB-backed
// service. Keyless calls always run.
type replay struct {
	seen map[string]json.RawMessage
}

func (r *replay) Do(_ context.Context, _, _, clientKey, _ string, fn func() (any, error)) (json.RawMessage, bool, error) {
	if raw, ok := r.seen[clientKey]; ok && clientKey != "" {
		return raw, true, nil
	}
	out, err := fn()
	if err != nil {
		return nil, false, err
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, false, err
	}
	if clientKey != "" {
		r.seen[clientKey] = raw
	}
	return raw, false, nil
}

func setup(t *testing.T) (*handler, *memHistory, string) {
	t.Helper()
	tokens, err := auth.NewTokens("test-secret", "calm-backend", time.Hour)
	require.NoError(t, err)
	tok, _, err := tokens.GenerateToken("u1", true)
	require.NoError(t, err)
	lib, err := templates.Default()
	require.NoError(t, err)

	hist := &memHistory{}
	h := &handler{
		tokens: tokens,
		users:  stubUsers{"u1": {ID: "u1", Tier: models.TierFree}},
		gate:   entitlement.NewGate(),
		service: &checkin.Service{
			Templates: lib,
			Store:     hist,
			Log:       logging.Discard(),
		},
		history:     hist,
		idempotency: &replay{seen: map[string]json.RawMessage{}},
		log:         logging.Discard(),
	}
	return h, hist, "Bearer " + tok
}

func submit(t *testing.T, h *handler, token, body string) checkin.Result {
	t.Helper()
	return submitWithKey(t, h, token, "", body)
}

func submitWithKey(t *testing.T, h *handler, token, key, body string) checkin.Result {
	t.Helper()
	headers := map[string]string{"Authorization": token}
	if key != "" {
		headers["Idempotency-Key"] = key
	}
	resp, err := h.handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Headers:    headers,
		Body:       body,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Body)

	var res checkin.Result
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &res))
	return res
}

func TestCheckIn_SevereRoutesToCrisis(t *testing.T) {
	h, _, token := setup(t)

	res := submit(t, h, token, `{"mood":9,"tags":["panic"]}`)
	assert.Equal(t, models.RouteCrisis, res.CheckIn.Route)
	assert.NotEmpty(t, res.Resources)
}

func TestCheckIn_MildRoutesToMicroExercise(t *testing.T) {
	h, _, token := setup(t)

	res := submit(t, h, token, `{"mood":2,"tags":["tired"]}`)
	assert.Equal(t, models.RouteMicroExercise, res.CheckIn.Route)
	require.NotNil(t, res.Exercise)
	assert.NotEmpty(t, res.Exercise.Steps)
}

func TestCheckIn_RetryIsReplayed(t *testing.T) {
	h, hist, token := setup(t)

	first := submitWithKey(t, h, token, "ci-1", `{"mood":4,"tags":["work"]}`)
	second := submitWithKey(t, h, token, "ci-1", `{"mood":4,"tags":["work"]}`)
	assert.Equal(t, first.CheckIn.ID, second.CheckIn.ID)
	assert.Len(t, hist.saved, 1)
}

func TestCheckIn_RepeatWithoutKeyIsSaved(t *testing.T) {
	h, hist, token := setup(t)

	first := submit(t, h, token, `{"mood":4,"tags":["work"]}`)
	second := submit(t, h, token, `{"mood":4,"tags":["work"]}`)
	assert.NotEqual(t, first.CheckIn.ID, second.CheckIn.ID)
	assert.Len(t, hist.saved, 2)
}

func TestCheckIn_ListAndValidation(t *testing.T) {
	h, _, token := setup(t)
	submit(t, h, token, `{"mood":1}`)

	resp, err := h.handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodGet,
		Headers:    map[string]string{"Authorization": token},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Body, `"check_ins"`)

	resp, err = h.handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Headers:    map[string]string{"Authorization": token},
		Body:       `{"mood":11}`,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
