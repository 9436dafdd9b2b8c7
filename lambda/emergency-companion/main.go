package main

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/calmbackend/internal/apigw"
	"github.com/calmbackend/internal/app"
	"github.com/calmbackend/internal/auth"
	"github.com/calmbackend/internal/companion"
	"github.com/calmbackend/internal/entitlement"
	"github.com/calmbackend/internal/models"
	"github.com/sirupsen/logrus"
)

type replier interface {
	Reply(ctx context.Context, user *models.User, req companion.Request, onChunk func(string)) (*companion.Reply, error)
}

type handler struct {
	tokens  *auth.Tokens
	users   app.UserGetter
	service replier
	log     *logrus.Entry
}

func (h *handler) handle(ctx context.Context, request events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	user, err := app.Authenticate(ctx, request, h.tokens, h.users)
	if err != nil {
		return apigw.FromError(err, "AUTH_ERROR", "Failed to authenticate"), nil
	}
	if request.HTTPMethod != http.MethodPost {
		return apigw.CreateErrorResponse(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", request.HTTPMethod), nil
	}

	var req companion.Request
	if err := apigw.DecodeBody(request, &req); err != nil {
		return apigw.CreateErrorResponse(http.StatusBadRequest, "INVALID_REQUEST", "Invalid companion request", err.Error()), nil
	}

	// API Gateway proxy responses are buffered, so the stream is collected.
	reply, err := h.service.Reply(ctx, user, req, nil)
	if err != nil {
		h.log.WithError(err).WithField("user_id", user.ID).Warn("companion reply failed")
		return apigw.FromError(err, "COMPANION_ERROR", "The companion is unavailable right now"), nil
	}
	return apigw.JSON(http.StatusOK, reply), nil
}

func main() {
	rt := app.MustBootstrap("emergency-companion")

	budget, err := rt.Budget(context.Background())
	if err != nil {
		rt.Log.WithError(err).Fatal("failed to initialize budget")
	}

	h := &handler{
		tokens: rt.Tokens,
		users:  rt.Users,
		service: &companion.Service{
			AI:       rt.AI(),
			Gate:     entitlement.NewGate(),
			Budget:   budget,
			Limiters: companion.NewLimiters(float64(rt.Config.CompanionRatePerMinute), rt.Config.CompanionBurst),
			Counter:  rt.Tokenizer(),
			Log:      rt.Log,
		},
		log: rt.Log,
	}
	lambda.Start(h.handle)
}
