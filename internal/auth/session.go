package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/preplab/server/internal/apperr"
	"github.com/preplab/server/internal/crypto"
	"github.com/preplab/server/internal/mailer"
	"github.com/preplab/server/internal/model"
	"github.com/preplab/server/internal/repository"
	"github.com/preplab/server/internal/token"
)

// SessionService mints token pairs and owns the password lifecycle.
type SessionService struct {
	store      Store
	codec      *token.Codec
	mail       mailer.Sender
	branding   mailer.Branding
	bcryptCost int
	log        logrus.FieldLogger
}

func NewSessionService(store Store, codec *token.Codec, mail mailer.Sender, branding mailer.Branding, bcryptCost int, log logrus.FieldLogger) *SessionService {
	return &SessionService{
		store:      store,
		codec:      codec,
		mail:       mail,
		branding:   branding,
		bcryptCost: bcryptCost,
		log:        log,
	}
}

// Issue mints an access/refresh pair from the same claim set. The
// purposes are signed with distinct secrets and carry independent TTLs.
func (s *SessionService) Issue(user model.User) (TokenPair, error) {
	access, err := s.codec.Issue(user, token.PurposeAccess)
	if err != nil {
		return TokenPair{}, apperr.Internal(err)
	}
	refresh, err := s.codec.Issue(user, token.PurposeRefresh)
	if err != nil {
		return TokenPair{}, apperr.Internal(err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// account is re-resolved so a suspension or deletion after issuance
// cuts the session short. The refresh token itself is not rotated.
func (s *SessionService) Refresh(ctx context.Context, raw string) (string, error) {
	if raw == "" {
		return "", apperr.Unauthorized("Refresh token is missing")
	}
	claims, err := s.codec.Verify(raw, token.PurposeRefresh)
	if err != nil {
		return "", apperr.Unauthorized("Invalid or expired refresh token")
	}

	user, err := s.store.GetUserByEmail(ctx, claims.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", apperr.Unauthorized("Invalid or expired refresh token")
		}
		return "", apperr.Internal(err)
	}
	if user.Status != model.StatusActive || user.IsDeleted {
		return "", apperr.Unauthorized("Account is not active")
	}

	access, err := s.codec.Issue(user, token.PurposeAccess)
	if err != nil {
		return "", apperr.Internal(err)
	}
	return access, nil
}

// ChangePassword re-verifies the current password before persisting
// the new hash. Callers pass the account already resolved by the guard.
func (s *SessionService) ChangePassword(ctx context.Context, user model.User, current, next string) error {
	if !user.HasPassword() {
		return apperr.BadRequest("No password is set for this account. Use Google sign-in or reset your password")
	}
	if err := crypto.CheckPassword(*user.PasswordHash, current); err != nil {
		return apperr.Unauthorized("Current password is incorrect")
	}

	hash, err := crypto.HashPassword(next, s.bcryptCost)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := s.store.UpdatePassword(ctx, user.ID, hash); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// ForgotPassword mails a reset link carrying a RESET-purpose token.
// The handler masks NotFound so the endpoint does not reveal which
// emails have accounts.
func (s *SessionService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("User not found")
		}
		return apperr.Internal(err)
	}
	if user.IsDeleted || user.Status != model.StatusActive {
		return apperr.NotFound("User not found")
	}

	reset, err := s.codec.Issue(user, token.PurposeReset)
	if err != nil {
		return apperr.Internal(err)
	}

	link := fmt.Sprintf("%s/reset-password?token=%s", s.branding.FrontendURL, reset)
	subject, body, err := mailer.RenderReset(user.Name, link, s.branding)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := s.mail.Send(user.Email, subject, body); err != nil {
		s.log.WithError(err).WithField("email", user.Email).Warn("reset email dispatch failed")
	}
	return nil
}

// ResetPassword consumes a RESET token, persists the new hash and
// auto-logs the user in with a fresh pair.
func (s *SessionService) ResetPassword(ctx context.Context, raw, newPassword string) (model.User, TokenPair, error) {
	claims, err := s.codec.Verify(raw, token.PurposeReset)
	if err != nil {
		return model.User{}, TokenPair{}, apperr.BadRequest("Invalid or expired reset token")
	}

	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, TokenPair{}, apperr.NotFound("User not found")
		}
		return model.User{}, TokenPair{}, apperr.Internal(err)
	}
	if user.Status != model.StatusActive || user.IsDeleted {
		return model.User{}, TokenPair{}, apperr.Forbidden("Account is not active")
	}

	hash, err := crypto.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return model.User{}, TokenPair{}, apperr.Internal(err)
	}
	if err := s.store.UpdatePassword(ctx, user.ID, hash); err != nil {
		return model.User{}, TokenPair{}, apperr.Internal(err)
	}

	pair, err := s.Issue(user)
	if err != nil {
		return model.User{}, TokenPair{}, err
	}
	return user, pair, nil
}
