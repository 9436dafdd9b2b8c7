package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/calmbackend/internal/apigw"
	"github.com/calmbackend/internal/app"
	"github.com/calmbackend/internal/auth"
	"github.com/calmbackend/internal/entitlement"
	"github.com/calmbackend/internal/models"
	"github.com/calmbackend/internal/plan"
	"github.com/sirupsen/logrus"
)

const operation = "POST /plans/generate"

type idempotent interface {
	Do(ctx context.Context, userID, operation, clientKey, body string, fn func() (any, error)) (json.RawMessage, bool, error)
}

type planGenerator interface {
	Generate(ctx context.Context, userID string, req plan.Request) (*plan.Result, error)
}

type CurrentPlanResponse struct {
	Plan    models.PanicPlan `json:"plan"`
	Default bool             `json:"default"`
}

type handler struct {
	tokens      *auth.Tokens
	users       app.UserGetter
	gate        *entitlement.Gate
	generator   planGenerator
	store       plan.CurrentStore
	idempotency idempotent
	afterWrite  func()
	log         *logrus.Entry
}

func (h *handler) handle(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user, err := app.Authenticate(ctx, request, h.tokens, h.users)
	if err != nil {
		return apigw.FromError(err, "AUTH_ERROR", "Failed to authenticate"), nil
	}
	if err := h.gate.Allow(user, entitlement.FeaturePanicPlan); err != nil {
		return apigw.FromError(err, "FORBIDDEN", "Feature not available"), nil
	}

	switch request.HTTPMethod {
	case http.MethodGet:
		return h.current(ctx, user), nil
	case http.MethodPost:
		return h.generate(ctx, request, user), nil
	default:
		return apigw.CreateErrorResponse(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", request.HTTPMethod), nil
	}
}

func (h *handler) current(ctx context.Context, user *models.User) events.APIGatewayProxyResponse {
	p, err := h.store.Current(ctx, user.ID)
	if err != nil {
		h.log.WithError(err).WithField("user_id", user.ID).Warn("failed to load current plan, serving default")
	}
	if p == nil {
		return apigw.JSON(http.StatusOK, CurrentPlanResponse{Plan: plan.DefaultPlan(), Default: true})
	}
	return apigw.JSON(http.StatusOK, CurrentPlanResponse{Plan: *p})
}

func (h *handler) generate(ctx context.Context, request events.APIGatewayProxyRequest, user *models.User) events.APIGatewayProxyResponse {
	var req plan.Request
	if err := apigw.DecodeBody(request, &req); err != nil {
		return apigw.CreateErrorResponse(http.StatusBadRequest, "INVALID_REQUEST", "Invalid plan request", err.Error())
	}

	// Personalization is premium; free users still get a plan.
	if req.Personalized && !h.gate.Allowed(user, entitlement.FeaturePersonalPlan) {
		req.Personalized = false
	}

	body, replayed, err := h.idempotency.Do(ctx, user.ID, operation, apigw.Header(request, "Idempotency-Key"), request.Body,
		func() (any, error) {
			return h.generator.Generate(ctx, user.ID, req)
		})
	if err != nil {
		return apigw.FromError(err, "PROCESSING_ERROR", "Failed to generate plan")
	}
	if !replayed && h.afterWrite != nil {
		h.afterWrite()
	}
	return apigw.Raw(http.StatusOK, body)
}

func main() {
	rt := app.MustBootstrap("generate-panic-plan")
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

	cache := rt.Cache()
	store := plan.NewStore(rt.DB)
	h := &handler{
		tokens: rt.Tokens,
		users:  rt.Users,
		gate:   entitlement.NewGate(),
		generator: &plan.Generator{
			AI:         rt.AI(),
			Cache:      cache,
			Templates:  lib,
			Budget:     budget,
			Store:      store,
			Counter:    rt.Tokenizer(),
			Log:        rt.Log,
			Similarity: rt.Config.SimilarityThreshold,
		},
		store:       store,
		idempotency: idem,
		afterWrite:  func() { rt.SaveCache(cache) },
		log:         rt.Log,
	}
	lambda.Start(h.handle)
}
