package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/preplab/server/internal/apperr"
	"github.com/preplab/server/internal/crypto"
	"github.com/preplab/server/internal/model"
	"github.com/preplab/server/internal/repository"
)

const msgInvalidCredentials = "Invalid email or password"

// CredentialAuthenticator verifies email/password sign-in.
type CredentialAuthenticator struct {
	store Store
}

func NewCredentialAuthenticator(store Store) *CredentialAuthenticator {
	return &CredentialAuthenticator{store: store}
}

// Authenticate runs the checks in a fixed order: existence, account
// status, soft-delete, password presence, then the bcrypt compare.
// Unknown emails and wrong passwords surface the same error so the
// response does not reveal which accounts exist.
func (a *CredentialAuthenticator) Authenticate(ctx context.Context, email, password string) (model.User, error) {
	user, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, apperr.Unauthorized(msgInvalidCredentials)
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
		return model.User{}, apperr.Unauthorized(msgInvalidCredentials)
	}
	if !user.HasPassword() {
		// Account was provisioned through Google and never set a password.
		return model.User{}, apperr.BadRequest("This account uses Google sign-in. Please continue with Google")
	}

	if err := crypto.CheckPassword(*user.PasswordHash, password); err != nil {
		return model.User{}, apperr.Unauthorized(msgInvalidCredentials)
	}
	return user, nil
}
