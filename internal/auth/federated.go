package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/preplab/server/internal/apperr"
	"github.com/preplab/server/internal/model"
	"github.com/preplab/server/internal/oauth"
	"github.com/preplab/server/internal/repository"
)

// FederatedAuthenticator resolves a Google profile to a local account,
// provisioning one on first sign-in.
type FederatedAuthenticator struct {
	store Store
}

func NewFederatedAuthenticator(store Store) *FederatedAuthenticator {
	return &FederatedAuthenticator{store: store}
}

// Authenticate maps the verified profile to a user. A first-time email
// gets an ACTIVE student account linked to the Google subject; repeat
// sign-ins reuse the account and never duplicate the link.
func (a *FederatedAuthenticator) Authenticate(ctx context.Context, profile oauth.Profile) (model.User, error) {
	if profile.Email == "" {
		return model.User{}, apperr.BadRequest("Google account has no email address")
	}

	user, err := a.store.GetUserByEmail(ctx, profile.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return a.provision(ctx, profile)
		}
		return model.User{}, apperr.Internal(err)
	}

	if user.Status != model.StatusActive {
		if user.Status == model.StatusPending {
			return model.User{}, apperr.Forbidden("Account is not verified. Please verify with the OTP sent to your email")
		}
		return model.User{}, apperr.Forbidden(fmt.Sprintf("Account status is %s", user.Status))
	}
	if user.IsDeleted {
		return model.User{}, apperr.Forbidden("Account is disabled")
	}

	// A credentials-first account signing in with Google for the first
	// time gains the link; the insert is a no-op on repeats.
	if err := a.store.AddAuthProvider(ctx, user.ID, model.ProviderGoogle, profile.ID); err != nil {
		return model.User{}, apperr.Internal(err)
	}
	return user, nil
}

func (a *FederatedAuthenticator) provision(ctx context.Context, profile oauth.Profile) (model.User, error) {
	now := time.Now().UTC()
	user := model.User{
		ID:        uuid.NewString(),
		Name:      profile.Name,
		Email:     profile.Email,
		Role:      model.RoleStudent,
		Status:    model.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if profile.Picture != "" {
		user.Picture = &profile.Picture
	}
	if err := a.store.CreateUserWithProvider(ctx, user, model.ProviderGoogle, profile.ID); err != nil {
		return model.User{}, apperr.Internal(err)
	}
	return user, nil
}
