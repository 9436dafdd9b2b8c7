package apigw

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quotaErr struct{}

func (quotaErr) Error() string       { return "quota exceeded" }
func (quotaErr) StatusCode() int     { return http.StatusTooManyRequests }
func (quotaErr) Code() string        { return "QUOTA_EXCEEDED" }
func (quotaErr) UserMessage() string { return "You've reached your limit for now." }

func TestBearerToken(t *testing.T) {
	tok, err := BearerToken(events.APIGatewayProxyRequest{Headers: map[string]string{"authorization": "Bearer abc"}})
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	_, err = BearerToken(events.APIGatewayProxyRequest{})
	assert.Error(t, err)

	_, err = BearerToken(events.APIGatewayProxyRequest{Headers: map[string]string{"Authorization": "Bearer "}})
	assert.Error(t, err)
}

func TestDecodeBody_Validates(t *testing.T) {
	type req struct {
		Mood int `json:"mood" validate:"min=0,max=10"`
	}

	var r req
	err := DecodeBody(events.APIGatewayProxyRequest{Body: `{"mood": 11}`}, &r)
	assert.Error(t, err)

	err = DecodeBody(events.APIGatewayProxyRequest{Body: `{"mood": 4}`}, &r)
	require.NoError(t, err)
	assert.Equal(t, 4, r.Mood)

	assert.Error(t, DecodeBody(events.APIGatewayProxyRequest{Body: ""}, &r))
	assert.Error(t, DecodeBody(events.APIGatewayProxyRequest{Body: "{"}, &r))
}

func TestFromError(t *testing.T) {
	resp := FromError(fmt.Errorf("generate plan: %w", quotaErr{}), "PROCESSING_ERROR", "failed")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &body))
	assert.Equal(t, "QUOTA_EXCEEDED", body.Code)
	assert.Equal(t, "You've reached your limit for now.", body.Error)

	resp = FromError(errors.New("boom"), "PROCESSING_ERROR", "failed")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Headers["Content-Type"])
}
