package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/preplab/server/internal/apperr"
	"github.com/preplab/server/internal/model"
	"github.com/preplab/server/internal/repository"
	"github.com/preplab/server/internal/token"
)

// identity is the resolved caller attached to the request context by
// requireAuth: the verified claims plus the freshly loaded account.
type identity struct {
	Claims *token.Claims
	User   model.User
}

type identityKey struct{}

func identityFromContext(ctx context.Context) *identity {
	value := ctx.Value(identityKey{})
	id, _ := value.(*identity)
	return id
}

// requireAuth is the trust boundary for protected routes. It verifies
// the access token, reloads the account so stale claims never mask a
// suspension or deletion, and optionally enforces a role allow-list.
func (s *Server) requireAuth(roles ...model.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r.Header.Get("Authorization"))
			if raw == "" {
				s.respondError(w, apperr.Unauthorized("Authentication token is missing"))
				return
			}

			claims, err := s.codec.Verify(raw, token.PurposeAccess)
			if err != nil {
				s.respondError(w, apperr.Unauthorized("Invalid or expired token"))
				return
			}

			user, err := s.store.GetUserByID(r.Context(), claims.UserID)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					s.respondError(w, apperr.NotFound("User not found"))
					return
				}
				s.respondError(w, apperr.Internal(err))
				return
			}
			if user.IsDeleted {
				s.respondError(w, apperr.NotFound("User not found"))
				return
			}
			if user.Status != model.StatusActive {
				if user.Status == model.StatusPending {
					s.respondError(w, apperr.Forbidden("Account is not verified. Please verify with the OTP sent to your email"))
					return
				}
				s.respondError(w, apperr.Forbidden(fmt.Sprintf("Account status is %s", user.Status)))
				return
			}

			if len(roles) > 0 && !roleAllowed(user.Role, roles) {
				s.respondError(w, apperr.Forbidden("You do not have permission to perform this action"))
				return
			}

			ctx := context.WithValue(r.Context(), identityKey{}, &identity{Claims: claims, User: user})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func roleAllowed(role model.UserRole, allowed []model.UserRole) bool {
	for _, candidate := range allowed {
		if role == candidate {
			return true
		}
	}
	return false
}

// rateLimit bounds how often a (client IP, target email) pair may hit
// the wrapped endpoint. The email is taken from the query string or, if
// absent, from a peek at the JSON body.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email := normalizeEmail(targetEmail(r))

		result, err := s.limiter.Check(r.Context(), clientIP(r), email)
		if err != nil {
			s.respondError(w, apperr.Internal(err))
			return
		}
		if !result.Allowed {
			retryAfter := int(time.Until(result.RetryAfter).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			s.respondError(w, apperr.TooManyRequests("Too many requests. Please try again later"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// targetEmail extracts the email the request is about, from the query
// string or a peek at the JSON body. The body is restored for the
// downstream handler.
func targetEmail(r *http.Request) string {
	if email := r.URL.Query().Get("email"); email != "" {
		return email
	}
	if r.Body == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		return ""
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	var probe struct {
		Email string `json:"email"`
	}
	_ = json.Unmarshal(body, &probe)
	return probe.Email
}

const refreshCookieName = "refreshToken"

func (s *Server) setRefreshCookie(w http.ResponseWriter, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    refreshToken,
		Path:     "/",
		MaxAge:   int(s.cfg.RefreshTokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
