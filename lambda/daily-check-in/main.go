package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/calmbackend/internal/apigw"
	"github.com/calmbackend/internal/app"
	"github.com/calmbackend/internal/auth"
	"github.com/calmbackend/internal/checkin"
	"github.com/calmbackend/internal/entitlement"
	"github.com/calmbackend/internal/models"
	"github.com/calmbackend/internal/progress"
	"github.com/sirupsen/logrus"
)

const operation = "POST /check-ins"

type idempotent interface {
	Do(ctx context.Context, userID, operation, clientKey, body string, fn func() (any, error)) (json.RawMessage, bool, error)
}

type submitter interface {
	Submit(ctx context.Context, userID string, req checkin.Request) (*checkin.Result, error)
}

type history interface {
	Recent(ctx context.Context, userID string, limit int) ([]models.CheckIn, error)
}

type handler struct {
	tokens      *auth.Tokens
	users       app.UserGetter
	gate        *entitlement.Gate
	service     submitter
	history     history
	idempotency idempotent
	log         *logrus.Entry
}

func (h *handler) handle(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user, err := app.Authenticate(ctx, request, h.tokens, h.users)
	if err != nil {
		return apigw.FromError(err, "AUTH_ERROR", "Failed to authenticate"), nil
	}
	if err := h.gate.Allow(user, entitlement.FeatureDailyCheckIn); err != nil {
		return apigw.FromError(err, "FORBIDDEN", "Feature not available"), nil
	}

	switch request.HTTPMethod {
	case http.MethodPost:
		return h.submit(ctx, request, user), nil
	case http.MethodGet:
		limit, _ := strconv.Atoi(request.QueryStringParameters["limit"])
		list, err := h.history.Recent(ctx, user.ID, limit)
		if err != nil {
			h.log.WithError(err).WithField("user_id", user.ID).Error("failed to list check-ins")
			return apigw.CreateErrorResponse(http.StatusInternalServerError, "DATABASE_ERROR", "Failed to list check-ins", err.Error()), nil
		}
		if list == nil {
			list = []models.CheckIn{}
		}
		return apigw.JSON(http.StatusOK, map[string]any{"check_ins": list}), nil
	default:
		return apigw.CreateErrorResponse(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", request.HTTPMethod), nil
	}
}

func (h *handler) submit(ctx context.Context, request events.APIGatewayProxyRequest, user *models.User) events.APIGatewayProxyResponse {
	var req checkin.Request
	if err := apigw.DecodeBody(request, &req); err != nil {
		return apigw.CreateErrorResponse(http.StatusBadRequest, "INVALID_REQUEST", "Invalid check-in", err.Error())
	}

	body, _, err := h.idempotency.Do(ctx, user.ID, operation, apigw.Header(request, "Idempotency-Key"), request.Body,
		func() (any, error) {
			return h.service.Submit(ctx, user.ID, req)
		})
	if err != nil {
		return apigw.FromError(err, "PROCESSING_ERROR", "Failed to process check-in")
	}
	return apigw.Raw(http.StatusCreated, body)
}

func main() {
	rt := app.MustBootstrap("daily-check-in")
	ctx := context.Background()

	budget, err := rt.Budget(ctx)
	if err != nil {
		rt.Log.WithError(err).Fatal("failed to initialize budget")
	}
	lib, err := rt.Templates()
	if err != nil {
		rt.Log.WithError(err).Fatal("failed to initialize templates")
	}
	idem, err := rt.Idempotency(ctx)
	if err != nil {
		rt.Log.WithError(err).Fatal("failed to initialize idempotency")
	}

	repo := checkin.NewRepository(rt.DB)
	h := &handler{
		tokens: rt.Tokens,
		users:  rt.Users,
		gate:   entitlement.NewGate(),
		service: &checkin.Service{
			Classifier: rt.AI(),
			Budget:     budget,
			Templates:  lib,
			Store:      repo,
			Progress:   progress.NewRepository(rt.DB),
			Log:        rt.Log,
		},
		history:     repo,
		idempotency: idem,
		log:         rt.Log,
	}
	lambda.Start(h.handle)
}
