package main

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/calmbackend/internal/apigw"
	"github.com/calmbackend/internal/app"
	"github.com/calmbackend/internal/auth"
	"github.com/calmbackend/internal/models"
	"github.com/calmbackend/internal/progress"
	"github.com/sirupsen/logrus"
)

type tracker interface {
	Get(ctx context.Context, userID string) (*models.Progress, error)
	RecordActivity(ctx context.Context, userID string) (*models.Progress, error)
}

type handler struct {
	tokens   *auth.Tokens
	users    app.UserGetter
	progress tracker
	log      *logrus.Entry
}

func (h *handler) handle(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user, err := app.Authenticate(ctx, request, h.tokens, h.users)
	if err != nil {
		return apigw.FromError(err, "AUTH_ERROR", "Failed to authenticate"), nil
	}

	var p *models.Progress
	switch request.HTTPMethod {
	case http.MethodGet:
		p, err = h.progress.Get(ctx, user.ID)
	case http.MethodPost:
		// a completed exercise or calming session
		p, err = h.progress.RecordActivity(ctx, user.ID)
	default:
		return apigw.CreateErrorResponse(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", request.HTTPMethod), nil
	}
	if err != nil {
		h.log.WithError(err).WithField("user_id", user.ID).Error("progress request failed")
		return apigw.CreateErrorResponse(http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load progress", err.Error()), nil
	}
	return apigw.JSON(http.StatusOK, p), nil
}

func main() {
	rt := app.MustBootstrap("progress")
	h := &handler{
		tokens:   rt.Tokens,
		users:    rt.Users,
		progress: progress.NewRepository(rt.DB),
		log:      rt.Log,
	}
	lambda.Start(h.handle)
}
