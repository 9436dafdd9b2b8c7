package apigw

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// UserFacingError is implemented by errors that carry their own status and message.
type UserFacingError interface {
	error
	StatusCode() int
	Code() string
	UserMessage() string
}

var jsonHeaders = map[string]string{
	"Content-Type": "application/json",
}

// JSON marshals body into a proxy response with the given status.
func JSON(statusCode int, body interface{}) events.APIGatewayProxyResponse {
	payload, err := json.Marshal(body)
	if err != nil {
		return CreateErrorResponse(http.StatusInternalServerError, "SERIALIZATION_ERROR", "Failed to serialize response", err.Error())
	}
	return events.APIGatewayProxyResponse{
		StatusCode: statusCode,
		Headers:    jsonHeaders,
		Body:       string(payload),
	}
}

// Raw wraps an already serialized JSON body.
func Raw(statusCode int, body []byte) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{
		StatusCode: statusCode,
		Headers:    jsonHeaders,
		Body:       string(body),
	}
}

func CreateErrorResponse(statusCode int, code, message, details string) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
	return events.APIGatewayProxyResponse{
		StatusCode: statusCode,
		Headers:    jsonHeaders,
		Body:       string(body),
	}
}

// FromError converts err into an error response. Errors implementing
// UserFacingError keep their status; everything else is a 500 with fallbackCode.
func FromError(err error, fallbackCode, fallbackMessage string) events.APIGatewayProxyResponse {
	var uf UserFacingError
	if errors.As(err, &uf) {
		return CreateErrorResponse(uf.StatusCode(), uf.Code(), uf.UserMessage(), err.Error())
	}
	return CreateErrorResponse(http.StatusInternalServerError, fallbackCode, fallbackMessage, err.Error())
}
