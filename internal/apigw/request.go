package apigw

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// BearerToken returns the token from the Authorization header.
func BearerToken(request events.APIGatewayProxyRequest) (string, error) {
	authHeader := header(request, "Authorization")
	if authHeader == "" {
		return "", fmt.Errorf("missing authorization header")
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", fmt.Errorf("empty bearer token")
	}
	return token, nil
}

// Header looks up a header case-insensitively.
func Header(request events.APIGatewayProxyRequest, name string) string {
	return header(request, name)
}

func header(request events.APIGatewayProxyRequest, name string) string {
	if v, ok := request.Headers[name]; ok {
		return v
	}
	for k, v := range request.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// DecodeBody unmarshals the JSON body into dst and validates struct tags.
func DecodeBody(request events.APIGatewayProxyRequest, dst interface{}) error {
	if strings.TrimSpace(request.Body) == "" {
		return fmt.Errorf("request body is empty")
	}
	if err := json.Unmarshal([]byte(request.Body), dst); err != nil {
		return fmt.Errorf("invalid JSON in request body: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}
