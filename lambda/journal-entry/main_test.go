package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/calmbackend/internal/auth"
	"github.com/calmbackend/internal/entitlement"
	"github.com/calmbackend/internal/journal"
	"github.com/calmbackend/internal/logging"
	"github.com/calmbackend/internal/models"
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

type memEntries struct {
	items map[string]*models.JournalEntry
	clock time.Time
}

func (m *memEntries) Create(_ context.Context, userID string, req journal.CreateRequest) (*models.JournalEntry, error) {
	m.clock = m.clock.Add(time.Minute)
	e := &models.JournalEntry{
		ID:        fmt.Sprintf("e%02d", len(m.items)+1),
		UserID:    userID,
		Text:      req.Text,
		Emotion:   req.Emotion,
		Intensity: req.Intensity,
		Factors:   req.Factors,
		CreatedAt: m.clock,
	}
	m.items[e.ID] = e
	return e, nil
}

func newer(a, b journal.Cursor) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func (m *memEntries) List(_ context.Context, userID string, limit int, after journal.Cursor) ([]models.JournalEntry, error) {
	out := []models.JournalEntry{}
	for _, e := range m.items {
		if e.UserID != userID {
			continue
		}
		if !after.IsZero() && !newer(after, journal.CursorOf(*e)) {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return newer(journal.CursorOf(out[i]), journal.CursorOf(out[j])) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memEntries) Get(_ context.Context, userID, id string) (*models.JournalEntry, error) {
	e, ok := m.items[id]
	if !ok || e.UserID != userID {
		return nil, journal.ErrNotFound
	}
	return e, nil
}

func (m *memEntries) SetLocked(ctx context.Context, userID, id string, locked bool) error {
	e, err := m.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	e.Locked = locked
	return nil
}

func (m *memEntries) Delete(ctx context.Context, userID, id string) error {
	if _, err := m.Get(ctx, userID, id); err != nil {
		return err
	}
	delete(m.items, id)
	return nil
}

type passthrough struct{}

func (passthrough) Do(_ context.Context, _, _, _, _ string, fn func() (any, error)) (json.RawMessage, bool, error) {
	out, err := fn()
	if err != nil {
		return nil, false, err
	}
	raw, err := json.Marshal(out)
	return raw, false, err
}

type client struct {
	t     *testing.T
	h     *handler
	token string
}

func (c client) do(method, path string, params map[string]string, body string) events.APIGatewayProxyResponse {
	c.t.Helper()
	resp, err := c.h.handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:     method,
		Path:           path,
		PathParameters: params,
		Headers:        map[string]string{"Authorization": c.token},
		Body:           body,
	})
	require.NoError(c.t, err)
	return resp
}

func setup(t *testing.T) (client, client) {
	t.Helper()
	tokens, err := auth.NewTokens("test-secret", "calm-backend", time.Hour)
	require.NoError(t, err)

	h := &handler{
		tokens: tokens,
		users: stubUsers{
			"u1": {ID: "u1", Tier: models.TierFree},
			"u2": {ID: "u2", Tier: models.TierFree},
		},
		gate:        entitlement.NewGate(),
		entries:     &memEntries{items: map[string]*models.JournalEntry{}, clock: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)},
		idempotency: passthrough{},
		log:         logging.Discard(),
	}
	t1, _, err := tokens.GenerateToken("u1", true)
	require.NoError(t, err)
	t2, _, err := tokens.GenerateToken("u2", true)
	require.NoError(t, err)
	return client{t, h, "Bearer " + t1}, client{t, h, "Bearer " + t2}
}

func TestJournal_CreateListNewestFirst(t *testing.T) {
	alice, _ := setup(t)

	resp := alice.do(http.MethodPost, "/journal-entries", nil, `{"text":"first","emotion":"sad","intensity":3}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, resp.Body)
	resp = alice.do(http.MethodPost, "/journal-entries", nil, `{"text":"second","factors":["sleep"]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = alice.do(http.MethodGet, "/journal-entries", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list ListResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &list))
	require.Len(t, list.Entries, 2)
	assert.Equal(t, "second", list.Entries[0].Text)
	assert.Equal(t, "first", list.Entries[1].Text)
}

func TestJournal_PagesWithCursor(t *testing.T) {
	alice, _ := setup(t)
	entries := alice.h.entries.(*memEntries)
	for i := 0; i < 3; i++ {
		alice.do(http.MethodPost, "/journal-entries", nil, fmt.Sprintf(`{"text":"note %d"}`, i))
	}
	// two entries written in the same instant
	entries.items["e01"].CreatedAt = entries.items["e02"].CreatedAt

	page := func(before string) ListResponse {
		params := map[string]string{"limit": "2"}
		if before != "" {
			params["before"] = before
		}
		resp, err := alice.h.handle(context.Background(), events.APIGatewayProxyRequest{
			HTTPMethod:            http.MethodGet,
			Path:                  "/journal-entries",
			Headers:               map[string]string{"Authorization": alice.token},
			QueryStringParameters: params,
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)
		var list ListResponse
		require.NoError(t, json.Unmarshal([]byte(resp.Body), &list))
		return list
	}

	first := page("")
	require.Len(t, first.Entries, 2)
	assert.Equal(t, "e03", first.Entries[0].ID)
	assert.Equal(t, "e02", first.Entries[1].ID)
	require.NotEmpty(t, first.NextCursor)

	second := page(first.NextCursor)
	require.Len(t, second.Entries, 1)
	assert.Equal(t, "e01", second.Entries[0].ID)
	assert.Empty(t, second.NextCursor)
}

func TestJournal_LockAndImmutability(t *testing.T) {
	alice, _ := setup(t)
	alice.do(http.MethodPost, "/journal-entries", nil, `{"text":"private"}`)
	params := map[string]string{"id": "e01"}

	resp := alice.do(http.MethodPatch, "/journal-entries/e01/lock", params, `{"locked":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, resp.Body)

	resp = alice.do(http.MethodGet, "/journal-entries/e01", params, "")
	var entry models.JournalEntry
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &entry))
	assert.True(t, entry.Locked)
	assert.Equal(t, "private", entry.Text)

	resp = alice.do(http.MethodPatch, "/journal-entries/e01", params, `{"text":"rewritten"}`)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp = alice.do(http.MethodPatch, "/journal-entries/e01/lock", params, `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestJournal_OwnershipAndDelete(t *testing.T) {
	alice, bob := setup(t)
	alice.do(http.MethodPost, "/journal-entries", nil, `{"text":"mine"}`)
	params := map[string]string{"id": "e01"}

	assert.Equal(t, http.StatusNotFound, bob.do(http.MethodGet, "/journal-entries/e01", params, "").StatusCode)
	assert.Equal(t, http.StatusNotFound, bob.do(http.MethodDelete, "/journal-entries/e01", params, "").StatusCode)

	assert.Equal(t, http.StatusNoContent, alice.do(http.MethodDelete, "/journal-entries/e01", params, "").StatusCode)
	assert.Equal(t, http.StatusNotFound, alice.do(http.MethodGet, "/journal-entries/e01", params, "").StatusCode)
}

func TestJournal_Validation(t *testing.T) {
	alice, _ := setup(t)

	assert.Equal(t, http.StatusBadRequest, alice.do(http.MethodPost, "/journal-entries", nil, `{"text":""}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, alice.do(http.MethodPost, "/journal-entries", nil, `{"text":"x","intensity":11}`).StatusCode)

	resp, err := alice.h.handle(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:            http.MethodGet,
		Path:                  "/journal-entries",
		Headers:               map[string]string{"Authorization": alice.token},
		QueryStringParameters: map[string]string{"before": "yesterday"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
