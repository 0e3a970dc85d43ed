// Package auth implements credential and federated sign-in plus the
// session lifecycle built on top of the token codec.
package auth

import (
	"context"

	"github.com/preplab/server/internal/model"
)

// Store is the slice of the user repository the authenticators need.
type Store interface {
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	GetUserByID(ctx context.Context, userID string) (model.User, error)
	CreateUserWithProvider(ctx context.Context, user model.User, provider model.ProviderKind, providerID string) error
	AddAuthProvider(ctx context.Context, userID string, provider model.ProviderKind, providerID string) error
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

// TokenPair is the access/refresh pair handed out on login.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
