package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/calmbackend/internal/models"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrInvalidDevice    = errors.New("device secret does not match")
	ErrMissingDeviceKey = errors.New("device id and secret are required")
)

// UserStore is the persistence the anonymous bootstrap needs.
type UserStore interface {
	FindByDevice(ctx context.Context, deviceID string) (*models.User, error)
	CreateAnonymous(ctx context.Context, deviceID, secretHash string) (*models.User, error)
}

type Session struct {
	User    *models.User `json:"user"`
	Token   string       `json:"token"`
	Created bool         `json:"created"`
}

// AnonymousSignIn returns a session for the device, creating the user on first
// sight. Returning devices must present the same secret.
func AnonymousSignIn(ctx context.Context, store UserStore, tokens *Tokens, deviceID, deviceSecret string) (*Session, error) {
	if deviceID == "" || deviceSecret == "" {
		return nil, ErrMissingDeviceKey
	}

	user, err := store.FindByDevice(ctx, deviceID)
	created := false
	switch {
	case errors.Is(err, ErrUserNotFound):
		hash, hashErr := bcrypt.GenerateFromPassword([]byte(deviceSecret), bcrypt.DefaultCost)
		if hashErr != nil {
			return nil, fmt.Errorf("failed to hash device secret: %w", hashErr)
		}
		user, err = store.CreateAnonymous(ctx, deviceID, string(hash))
		if err != nil {
			return nil, fmt.Errorf("failed to create anonymous user: %w", err)
		}
		created = true
	case err != nil:
		return nil, fmt.Errorf("failed to look up device: %w", err)
	default:
		if bcrypt.CompareHashAndPassword([]byte(user.SecretHash), []byte(deviceSecret)) != nil {
			return nil, ErrInvalidDevice
		}
	}

	token, _, err := tokens.GenerateToken(user.ID, true)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Token: token, Created: created}, nil
}
