package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/calmbackend/internal/apigw"
	"github.com/calmbackend/internal/app"
	"github.com/calmbackend/internal/auth"
	"github.com/calmbackend/internal/entitlement"
	"github.com/calmbackend/internal/models"
	"github.com/sirupsen/logrus"
)

const secretHeader = "X-Webhook-Secret"

type subscriptions interface {
	app.UserGetter
	SetSubscription(ctx context.Context, userID string, tier models.Tier, expiresAt *time.Time) error
}

// WebhookRequest is sent by the billing provider when a subscription changes.
type WebhookRequest struct {
	UserID    string     `json:"user_id" validate:"required"`
	Tier      string     `json:"tier" validate:"required,oneof=free premium"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type StatusResponse struct {
	Tier          models.Tier           `json:"tier"`
	EffectiveTier models.Tier           `json:"effective_tier"`
	ExpiresAt     *time.Time            `json:"expires_at,omitempty"`
	Features      []entitlement.Feature `json:"features"`
}

type handler struct {
	tokens *auth.Tokens
	users  subscriptions
	gate   *entitlement.Gate
	secret string
	log    *logrus.Entry
}

func (h *handler) handle(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	switch request.HTTPMethod {
	case http.MethodGet:
		return h.status(ctx, request), nil
	case http.MethodPost:
		return h.webhook(ctx, request), nil
	default:
		return apigw.CreateErrorResponse(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", request.HTTPMethod), nil
	}
}

func (h *handler) status(ctx context.Context, request events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	user, err := app.Authenticate(ctx, request, h.tokens, h.users)
	if err != nil {
		return apigw.FromError(err, "AUTH_ERROR", "Failed to authenticate")
	}
	return apigw.JSON(http.StatusOK, StatusResponse{
		Tier:          user.Tier,
		EffectiveTier: h.gate.EffectiveTier(user),
		ExpiresAt:     user.SubscriptionExpiresAt,
		Features:      h.gate.Features(user),
	})
}

func (h *handler) webhook(ctx context.Context, request events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	got := apigw.Header(request, secretHeader)
	if h.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		return apigw.CreateErrorResponse(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid webhook secret", "")
	}

	var req WebhookRequest
	if err := apigw.DecodeBody(request, &req); err != nil {
		return apigw.CreateErrorResponse(http.StatusBadRequest, "INVALID_REQUEST", "Invalid subscription update", err.Error())
	}

	tier := models.Tier(req.Tier)
	expires := req.ExpiresAt
	if tier == models.TierFree {
		expires = nil
	}

	log := h.log.WithFields(logrus.Fields{"user_id": req.UserID, "tier": tier})
	err := h.users.SetSubscription(ctx, req.UserID, tier, expires)
	if errors.Is(err, auth.ErrUserNotFound) {
		return apigw.CreateErrorResponse(http.StatusNotFound, "NOT_FOUND", "User not found", "")
	}
	if err != nil {
		log.WithError(err).Error("failed to update subscription")
		return apigw.CreateErrorResponse(http.StatusInternalServerError, "DATABASE_ERROR", "Failed to update subscription", err.Error())
	}

	log.Info("subscription updated")
	return apigw.JSON(http.StatusOK, map[string]string{"status": "updated"})
}

func main() {
	rt := app.MustBootstrap("subscription-status")
	if rt.Config.SubscriptionSecret == "" {
		rt.Log.Warn("SUBSCRIPTION_WEBHOOK_SECRET is not set; webhook calls will be rejected")
	}
	h := &handler{
		tokens: rt.Tokens,
		users:  rt.Users,
		gate:   entitlement.NewGate(),
		secret: rt.Config.SubscriptionSecret,
		log:    rt.Log,
	}
	lambda.Start(h.handle)
}
