package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// Error is a failure of the AI backend with a message safe to show users.
type Error struct {
	code    string
	status  int
	message string
}

func (e *Error) Error() string       { return e.code }
func (e *Error) Code() string        { return e.code }
func (e *Error) StatusCode() int     { return e.status }
func (e *Error) UserMessage() string { return e.message }

var (
	ErrAuthentication = &Error{
		code:    "AUTHENTICATION_FAILED",
		status:  http.StatusBadGateway,
		message: "We couldn't reach the coach right now. Please try again in a moment.",
	}
	ErrNetwork = &Error{
		code:    "NETWORK_ERROR",
		status:  http.StatusBadGateway,
		message: "Connection trouble. Your breathing exercises still work offline.",
	}
	ErrInvalidResponse = &Error{
		code:    "INVALID_RESPONSE",
		status:  http.StatusBadGateway,
		message: "The coach gave an answer we couldn't read. Here is a trusted plan instead.",
	}
	ErrRateLimited = &Error{
		code:    "RATE_LIMITED",
		status:  http.StatusTooManyRequests,
		message: "Too many requests. Take a few slow breaths and try again shortly.",
	}
	ErrQuotaExceeded = &Error{
		code:    "QUOTA_EXCEEDED",
		status:  http.StatusTooManyRequests,
		message: "You've reached your AI limit for now. Saved exercises are still available.",
	}
)

// classify maps transport and API failures onto the package errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Type == "insufficient_quota" || apiErr.Code == "insufficient_quota" {
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		}
		return fmt.Errorf("%w: %v", fromStatus(apiErr.HTTPStatusCode), err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%w: %v", fromStatus(reqErr.HTTPStatusCode), err)
	}

	return fmt.Errorf("%w: %v", ErrNetwork, err)
}

func fromStatus(status int) *Error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuthentication
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrNetwork
	}
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrRateLimited)
}
