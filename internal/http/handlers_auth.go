package http

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/preplab/server/internal/apperr"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type sessionResponse struct {
	AccessToken string      `json:"accessToken"`
	User        userPayload `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}

	user, err := s.creds.Authenticate(r.Context(), normalizeEmail(req.Email), req.Password)
	if err != nil {
		s.respondError(w, err)
		return
	}

	pair, err := s.sessions.Issue(user)
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.setRefreshCookie(w, pair.RefreshToken)
	s.respond(w, http.StatusOK, "Login successful", sessionResponse{
		AccessToken: pair.AccessToken,
		User:        toUserPayload(user),
	})
}

const oauthStateCookie = "oauth_state"

func (s *Server) handleGoogleRedirect(w http.ResponseWriter, r *http.Request) {
	if s.google == nil || !s.google.Configured() {
		s.respondError(w, apperr.New(http.StatusServiceUnavailable, "Google sign-in is not configured"))
		return
	}

	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.google.AuthURL(state), http.StatusFound)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if s.google == nil || !s.google.Configured() {
		s.respondError(w, apperr.New(http.StatusServiceUnavailable, "Google sign-in is not configured"))
		return
	}

	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || cookie.Value != state {
		s.respondError(w, apperr.BadRequest("Invalid OAuth state"))
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		s.respondError(w, apperr.BadRequest("Missing authorization code"))
		return
	}

	profile, err := s.google.Exchange(r.Context(), code)
	if err != nil {
		s.respondError(w, apperr.Unauthorized("Google sign-in failed"))
		return
	}

	user, err := s.federated.Authenticate(r.Context(), profile)
	if err != nil {
		s.respondError(w, err)
		return
	}
	pair, err := s.sessions.Issue(user)
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.setRefreshCookie(w, pair.RefreshToken)

	// The SPA picks the session out of the redirect query.
	encoded, err := json.Marshal(toUserPayload(user))
	if err != nil {
		s.respondError(w, apperr.Internal(err))
		return
	}
	values := url.Values{}
	values.Set("accessToken", pair.AccessToken)
	values.Set("user", base64.URLEncoding.EncodeToString(encoded))
	http.Redirect(w, r, s.cfg.FrontendURL+"/auth/callback?"+values.Encode(), http.StatusFound)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleRefreshToken(w http.ResponseWriter, r *http.Request) {
	raw := ""
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		raw = cookie.Value
	}
	if raw == "" {
		var req refreshRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			raw = req.RefreshToken
		}
	}

	access, err := s.sessions.Refresh(r.Context(), raw)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, "Token refreshed", map[string]string{"accessToken": access})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	if id == nil {
		s.respondError(w, apperr.Unauthorized("Authentication token is missing"))
		return
	}

	var req changePasswordRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}

	if err := s.sessions.ChangePassword(r.Context(), id.User, req.CurrentPassword, req.NewPassword); err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, "Password changed successfully", nil)
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}

	// Unknown emails get the same answer as known ones so this endpoint
	// cannot be used to enumerate accounts.
	err := s.sessions.ForgotPassword(r.Context(), normalizeEmail(req.Email))
	if err != nil && apperr.StatusOf(err) != http.StatusNotFound {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, "If the email is registered, a reset link has been sent", nil)
}

type resetPasswordRequest struct {
	NewPassword string `json:"newPassword" validate:"required,min=8"`
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("token")
	if raw == "" {
		s.respondError(w, apperr.BadRequest("Missing reset token"))
		return
	}

	var req resetPasswordRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}

	user, pair, err := s.sessions.ResetPassword(r.Context(), raw, req.NewPassword)
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.setRefreshCookie(w, pair.RefreshToken)
	s.respond(w, http.StatusOK, "Password reset successfully", sessionResponse{
		AccessToken: pair.AccessToken,
		User:        toUserPayload(user),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	// Tokens are stateless; logout just drops the refresh cookie.
	s.clearRefreshCookie(w)
	s.respond(w, http.StatusOK, "Logged out successfully", nil)
}
