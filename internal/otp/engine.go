// Package otp issues and verifies the one-time codes gating the
// PENDING to ACTIVE account transition.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/sirupsen/logrus"

	"github.com/preplab/server/internal/apperr"
	"github.com/preplab/server/internal/mailer"
	"github.com/preplab/server/internal/model"
	"github.com/preplab/server/internal/repository"
)

const CodeLength = 6

type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	ActivateUser(ctx context.Context, email string) (model.User, error)
}

type Engine struct {
	users    UserStore
	codes    *Store
	mail     mailer.Sender
	branding mailer.Branding
	log      logrus.FieldLogger
	generate func() (string, error)
}

func NewEngine(users UserStore, codes *Store, mail mailer.Sender, branding mailer.Branding, log logrus.FieldLogger) *Engine {
	return &Engine{
		users:    users,
		codes:    codes,
		mail:     mail,
		branding: branding,
		log:      log,
		generate: GenerateCode,
	}
}

// WithGenerator swaps the code source. Tests use it to pin codes.
func (e *Engine) WithGenerator(generate func() (string, error)) *Engine {
	e.generate = generate
	return e
}

// GenerateCode draws a 6-digit decimal code from crypto/rand.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// Send issues a fresh code for an unverified account. Any previous
// code for the email is invalidated.
func (e *Engine) Send(ctx context.Context, email string) error {
	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("User not found")
		}
		return apperr.Internal(err)
	}
	if user.Status == model.StatusActive {
		return apperr.BadRequest("User is already verified")
	}
	return e.issue(ctx, user)
}

// Resend only re-issues for accounts still pending verification.
func (e *Engine) Resend(ctx context.Context, email string) error {
	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("User not found")
		}
		return apperr.Internal(err)
	}
	if user.Status != model.StatusPending {
		if user.Status == model.StatusActive {
			return apperr.BadRequest("User is already verified")
		}
		return apperr.BadRequest(fmt.Sprintf("User status is %s", user.Status))
	}
	return e.issue(ctx, user)
}

func (e *Engine) issue(ctx context.Context, user model.User) error {
	code, err := e.generate()
	if err != nil {
		return apperr.Internal(err)
	}
	if err := e.codes.Put(ctx, user.Email, code); err != nil {
		return apperr.Internal(err)
	}

	subject, body, err := mailer.RenderOTP(user.Name, code, e.branding)
	if err != nil {
		return apperr.Internal(err)
	}
	// Email failures are logged, never surfaced: the code is live and
	// the client may retry delivery via resend.
	if err := e.mail.Send(user.Email, subject, body); err != nil {
		e.log.WithError(err).WithField("email", user.Email).Warn("otp email dispatch failed")
	}
	return nil
}

// Verify consumes the code and activates the account. The stored code
// is single-use: a replay after success fails, as does a code
// superseded by a later Send.
func (e *Engine) Verify(ctx context.Context, email, code string) (model.User, error) {
	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.User{}, apperr.NotFound("User not found")
		}
		return model.User{}, apperr.Internal(err)
	}
	if user.Status == model.StatusActive {
		return model.User{}, apperr.BadRequest("User is already verified")
	}

	if err := e.codes.Consume(ctx, email, code); err != nil {
		if errors.Is(err, ErrCodeMismatch) {
			return model.User{}, apperr.BadRequest("Invalid or expired OTP")
		}
		return model.User{}, apperr.Internal(err)
	}

	activated, err := e.users.ActivateUser(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Status changed between lookup and flip.
			return model.User{}, apperr.BadRequest("User is already verified")
		}
		return model.User{}, apperr.Internal(err)
	}
	return activated, nil
}
