package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/calmbackend/internal/apigw"
	"github.com/calmbackend/internal/app"
	"github.com/calmbackend/internal/auth"
	"github.com/calmbackend/internal/entitlement"
	"github.com/calmbackend/internal/journal"
	"github.com/calmbackend/internal/models"
	"github.com/sirupsen/logrus"
)

const operation = "POST /journal-entries"

type idempotent interface {
	Do(ctx context.Context, userID, operation, clientKey, body string, fn func() (any, error)) (json.RawMessage, bool, error)
}

type entries interface {
	Create(ctx context.Context, userID string, req journal.CreateRequest) (*models.JournalEntry, error)
	List(ctx context.Context, userID string, limit int, after journal.Cursor) ([]models.JournalEntry, error)
	Get(ctx context.Context, userID, id string) (*models.JournalEntry, error)
	SetLocked(ctx context.Context, userID, id string, locked bool) error
	Delete(ctx context.Context, userID, id string) error
}

type LockRequest struct {
	Locked *bool `json:"locked" validate:"required"`
}

type LockResponse struct {
	ID     string `json:"id"`
	Locked bool   `json:"locked"`
}

type ListResponse struct {
	Entries    []models.JournalEntry `json:"entries"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

type handler struct {
	tokens      *auth.Tokens
	users       app.UserGetter
	gate        *entitlement.Gate
	entries     entries
	idempotency idempotent
	log         *logrus.Entry
}

func (h *handler) handle(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user, err := app.Authenticate(ctx, request, h.tokens, h.users)
	if err != nil {
		return apigw.FromError(err, "AUTH_ERROR", "Failed to authenticate"), nil
	}
	if err := h.gate.Allow(user, entitlement.FeatureJournal); err != nil {
		return apigw.FromError(err, "FORBIDDEN", "Feature not available"), nil
	}

	id := request.PathParameters["id"]
	log := h.log.WithField("user_id", user.ID)

	switch {
	case request.HTTPMethod == http.MethodPost && id == "":
		return h.create(ctx, request, user.ID), nil
	case request.HTTPMethod == http.MethodGet && id == "":
		return h.list(ctx, request, user.ID, log), nil
	case request.HTTPMethod == http.MethodGet:
		entry, err := h.entries.Get(ctx, user.ID, id)
		if err != nil {
			return h.failure(err, log, "Failed to load journal entry"), nil
		}
		return apigw.JSON(http.StatusOK, entry), nil
	case request.HTTPMethod == http.MethodPatch && strings.HasSuffix(request.Path, "/lock"):
		var req LockRequest
		if err := apigw.DecodeBody(request, &req); err != nil {
			return apigw.CreateErrorResponse(http.StatusBadRequest, "INVALID_REQUEST", "Invalid lock request", err.Error()), nil
		}
		if err := h.entries.SetLocked(ctx, user.ID, id, *req.Locked); err != nil {
			return h.failure(err, log, "Failed to update journal entry"), nil
		}
		return apigw.JSON(http.StatusOK, LockResponse{ID: id, Locked: *req.Locked}), nil
	case request.HTTPMethod == http.MethodDelete:
		if err := h.entries.Delete(ctx, user.ID, id); err != nil {
			return h.failure(err, log, "Failed to delete journal entry"), nil
		}
		return events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}, nil
	case request.HTTPMethod == http.MethodPatch || request.HTTPMethod == http.MethodPut:
		return apigw.CreateErrorResponse(http.StatusMethodNotAllowed, "IMMUTABLE_ENTRY", "Journal entries cannot be edited", ""), nil
	default:
		return apigw.CreateErrorResponse(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", request.HTTPMethod), nil
	}
}

func (h *handler) create(ctx context.Context, request events.APIGatewayProxyRequest, userID string) events.APIGatewayProxyResponse {
	var req journal.CreateRequest
	if err := apigw.DecodeBody(request, &req); err != nil {
		return apigw.CreateErrorResponse(http.StatusBadRequest, "INVALID_REQUEST", "Invalid journal entry", err.Error())
	}

	body, _, err := h.idempotency.Do(ctx, userID, operation, apigw.Header(request, "Idempotency-Key"), request.Body,
		func() (any, error) {
			return h.entries.Create(ctx, userID, req)
		})
	if err != nil {
		return apigw.FromError(err, "PROCESSING_ERROR", "Failed to process journal entry")
	}
	return apigw.Raw(http.StatusCreated, body)
}

func (h *handler) list(ctx context.Context, request events.APIGatewayProxyRequest, userID string, log *logrus.Entry) events.APIGatewayProxyResponse {
	limit, _ := strconv.Atoi(request.QueryStringParameters["limit"])
	limit = journal.PageSize(limit)

	var after journal.Cursor
	if raw := request.QueryStringParameters["before"]; raw != "" {
		c, err := journal.ParseCursor(raw)
		if err != nil {
			return apigw.CreateErrorResponse(http.StatusBadRequest, "INVALID_REQUEST", "before must be a cursor or an RFC 3339 timestamp", err.Error())
		}
		after = c
	}

	list, err := h.entries.List(ctx, userID, limit, after)
	if err != nil {
		return h.failure(err, log, "Failed to list journal entries")
	}
	resp := ListResponse{Entries: list}
	if len(list) == limit {
		resp.NextCursor = journal.CursorOf(list[len(list)-1]).String()
	}
	return apigw.JSON(http.StatusOK, resp)
}

func (h *handler) failure(err error, log *logrus.Entry, message string) events.APIGatewayProxyResponse {
	if errors.Is(err, journal.ErrNotFound) {
		return apigw.CreateErrorResponse(http.StatusNotFound, "NOT_FOUND", "Journal entry not found", "")
	}
	log.WithError(err).Error(message)
	return apigw.CreateErrorResponse(http.StatusInternalServerError, "DATABASE_ERROR", message, err.Error())
}

func main() {
	rt := app.MustBootstrap("journal-entry")
	ctx := context.Background()

	cipher, err := rt.Cipher(ctx)
	if err != nil {
		rt.Log.WithError(err).Fatal("failed to initialize encryption")
	}
	if err := cipher.Validate(ctx); err != nil {
		rt.Log.WithError(err).Fatal("KMS key is not usable")
	}
	idem, err := rt.Idempotency(ctx)
	if err != nil {
		rt.Log.WithError(err).Fatal("failed to initialize idempotency")
	}

	h := &handler{
		tokens:      rt.Tokens,
		users:       rt.Users,
		gate:        entitlement.NewGate(),
		entries:     journal.NewRepository(rt.DB, cipher),
		idempotency: idem,
		log:         rt.Log,
	}
	lambda.Start(h.handle)
}
