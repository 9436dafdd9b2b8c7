package app

import (
	"context"
	"errors"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/calmbackend/internal/apigw"
	"github.com/calmbackend/internal/auth"
	"github.com/calmbackend/internal/models"
)

// UserGetter loads the account behind a token.
type UserGetter interface {
	Get(ctx context.Context, userID string) (*models.User, error)
}

type authError struct {
	err error
}

func (e *authError) Error() string       { return "unauthorized: " + e.err.Error() }
func (e *authError) Unwrap() error       { return e.err }
func (e *authError) StatusCode() int     { return http.StatusUnauthorized }
func (e *authError) Code() string        { return "UNAUTHORIZED" }
func (e *authError) UserMessage() string { return "Invalid or missing authentication token" }

// Authenticate resolves the bearer token to a user. Every failure is a 401.
func Authenticate(ctx context.Context, request events.APIGatewayProxyRequest, tokens *auth.Tokens, users UserGetter) (*models.User, error) {
	raw, err := apigw.BearerToken(request)
	if err != nil {
		return nil, &authError{err: err}
	}
	claims, err := tokens.ValidateToken(raw)
	if err != nil {
		return nil, &authError{err: err}
	}
	user, err := users.Get(ctx, claims.UserID)
	if errors.Is(err, auth.ErrUserNotFound) {
		return nil, &authError{err: err}
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
