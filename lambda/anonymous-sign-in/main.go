package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/calmbackend/internal/apigw"
	"github.com/calmbackend/internal/app"
	"github.com/calmbackend/internal/auth"
	"github.com/sirupsen/logrus"
)

type SignInRequest struct {
	DeviceID     string `json:"device_id" validate:"required,max=255"`
	DeviceSecret string `json:"device_secret" validate:"required,min=16,max=128"`
}

type handler struct {
	store  auth.UserStore
	tokens *auth.Tokens
	log    *logrus.Entry
}

func (h *handler) handle(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	var req SignInRequest
	if err := apigw.DecodeBody(request, &req); err != nil {
		return apigw.CreateErrorResponse(http.StatusBadRequest, "INVALID_REQUEST", "Invalid sign-in request", err.Error()), nil
	}

	session, err := auth.AnonymousSignIn(ctx, h.store, h.tokens, req.DeviceID, req.DeviceSecret)
	switch {
	case errors.Is(err, auth.ErrInvalidDevice):
		return apigw.CreateErrorResponse(http.StatusUnauthorized, "INVALID_DEVICE", "Device credentials do not match", ""), nil
	case errors.Is(err, auth.ErrMissingDeviceKey):
		return apigw.CreateErrorResponse(http.StatusBadRequest, "VALIDATION_ERROR", "Device id and secret are required", ""), nil
	case err != nil:
		h.log.WithError(err).Error("anonymous sign-in failed")
		return apigw.CreateErrorResponse(http.StatusInternalServerError, "SIGN_IN_ERROR", "Failed to sign in", err.Error()), nil
	}

	status := http.StatusOK
	if session.Created {
		status = http.StatusCreated
		h.log.WithField("user_id", session.User.ID).Info("anonymous user created")
	}
	return apigw.JSON(status, session), nil
}

func main() {
	rt := app.MustBootstrap("anonymous-sign-in")
	h := &handler{store: rt.Users, tokens: rt.Tokens, log: rt.Log}
	lambda.Start(h.handle)
}
