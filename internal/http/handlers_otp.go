package http

import (
	"net/http"

	"github.com/preplab/server/internal/apperr"
)

type otpRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (s *Server) handleSendOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.engine.Send(r.Context(), normalizeEmail(req.Email)); err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, "OTP sent to your email", nil)
}

func (s *Server) handleResendOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.engine.Resend(r.Context(), normalizeEmail(req.Email)); err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, "OTP resent to your email", nil)
}

type verifyOTPRequest struct {
	OTP string `json:"otp" validate:"required,len=6,numeric"`
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	email := normalizeEmail(r.URL.Query().Get("email"))
	if email == "" {
		s.respondError(w, apperr.BadRequest("Missing email"))
		return
	}

	var req verifyOTPRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}

	user, err := s.engine.Verify(r.Context(), email, req.OTP)
	if err != nil {
		s.respondError(w, err)
		return
	}

	// Verification doubles as first login.
	pair, err := s.sessions.Issue(user)
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.setRefreshCookie(w, pair.RefreshToken)
	s.respond(w, http.StatusOK, "Account verified successfully", sessionResponse{
		AccessToken: pair.AccessToken,
		User:        toUserPayload(user),
	})
}
