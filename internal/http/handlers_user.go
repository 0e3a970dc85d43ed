package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/preplab/server/internal/apperr"
	"github.com/preplab/server/internal/crypto"
	"github.com/preplab/server/internal/model"
	"github.com/preplab/server/internal/repository"
)

type createUserRequest struct {
	Name        string   `json:"name" validate:"required"`
	Email       string   `json:"email" validate:"required,email"`
	Password    string   `json:"password" validate:"required,min=8"`
	Phone       *string  `json:"phone,omitempty"`
	TargetScore *float64 `json:"targetScore,omitempty"`
}

func (s *Server) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	s.createUser(w, r, model.RoleStudent)
}

func (s *Server) handleCreateTeacher(w http.ResponseWriter, r *http.Request) {
	s.createUser(w, r, model.RoleTeacher)
}

func (s *Server) handleCreateAdmin(w http.ResponseWriter, r *http.Request) {
	s.createUser(w, r, model.RoleAdmin)
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request, role model.UserRole) {
	var req createUserRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	email := normalizeEmail(req.Email)

	existing, err := s.store.GetUserByEmail(r.Context(), email)
	if err == nil {
		// Re-registering an unverified email resends the code instead of
		// conflicting, so an abandoned signup can be completed.
		if existing.Status == model.StatusPending && !existing.IsDeleted {
			if err := s.engine.Resend(r.Context(), email); err != nil {
				s.respondError(w, err)
				return
			}
			s.respond(w, http.StatusOK, "Account already registered. A new OTP has been sent to your email", toUserPayload(existing))
			return
		}
		s.respondError(w, apperr.Conflict("Email is already registered"))
		return
	}
	if !errors.Is(err, repository.ErrNotFound) {
		s.respondError(w, apperr.Internal(err))
		return
	}

	hash, err := crypto.HashPassword(req.Password, s.cfg.BcryptCost)
	if err != nil {
		s.respondError(w, apperr.Internal(err))
		return
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        email,
		PasswordHash: &hash,
		Phone:        req.Phone,
		Role:         role,
		Status:       model.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUserWithProvider(r.Context(), user, model.ProviderCredentials, email); err != nil {
		s.respondError(w, apperr.Internal(err))
		return
	}

	if role == model.RoleStudent && req.TargetScore != nil {
		if err := s.store.UpdateTargetScore(r.Context(), user.ID, *req.TargetScore); err != nil {
			s.respondError(w, apperr.Internal(err))
			return
		}
	}

	if err := s.engine.Send(r.Context(), email); err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusCreated, "Registration successful. Verify your account with the OTP sent to your email", toUserPayload(user))
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	if id == nil {
		s.respondError(w, apperr.Unauthorized("Authentication token is missing"))
		return
	}

	payload := toUserPayload(id.User)
	if id.User.Role == model.RoleStudent {
		if profile, err := s.store.GetStudentProfile(r.Context(), id.User.ID); err == nil {
			payload.TargetScore = profile.TargetScore
		}
	}
	s.respond(w, http.StatusOK, "Profile fetched", payload)
}

type updateMeRequest struct {
	Name        *string  `json:"name,omitempty"`
	Phone       *string  `json:"phone,omitempty"`
	TargetScore *float64 `json:"targetScore,omitempty"`
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	if id == nil {
		s.respondError(w, apperr.Unauthorized("Authentication token is missing"))
		return
	}

	var req updateMeRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}

	update := repository.ProfileUpdate{Name: req.Name, Phone: req.Phone}
	user, err := s.store.UpdateProfile(r.Context(), id.User.ID, update)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondError(w, apperr.NotFound("User not found"))
			return
		}
		s.respondError(w, apperr.Internal(err))
		return
	}

	payload := toUserPayload(user)
	if user.Role == model.RoleStudent {
		if req.TargetScore != nil {
			if err := s.store.UpdateTargetScore(r.Context(), user.ID, *req.TargetScore); err != nil {
				s.respondError(w, apperr.Internal(err))
				return
			}
		}
		if profile, err := s.store.GetStudentProfile(r.Context(), user.ID); err == nil {
			payload.TargetScore = profile.TargetScore
		}
	}
	s.respond(w, http.StatusOK, "Profile updated", payload)
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req updateStatusRequest
	if err := s.decode(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	status := model.UserStatus(req.Status)
	if !status.Valid() {
		s.respondError(w, apperr.BadRequest("Invalid status"))
		return
	}

	user, err := s.store.UpdateStatus(r.Context(), userID, status)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondError(w, apperr.NotFound("User not found"))
			return
		}
		s.respondError(w, apperr.Internal(err))
		return
	}
	s.respond(w, http.StatusOK, "User status updated", toUserPayload(user))
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if _, err := s.store.SoftDeleteUser(r.Context(), userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondError(w, apperr.NotFound("User not found"))
			return
		}
		s.respondError(w, apperr.Internal(err))
		return
	}
	s.respond(w, http.StatusOK, "User deleted", nil)
}

type listUsersResponse struct {
	Users []userPayload `json:"users"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page := 1
	if raw := query.Get("page"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			page = parsed
		}
	}
	limit := 20
	if raw := query.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	filter := repository.ListFilter{
		SearchTerm: query.Get("search"),
		Limit:      limit,
		Offset:     (page - 1) * limit,
	}
	if raw := query.Get("role"); raw != "" {
		role := model.UserRole(raw)
		if !role.Valid() {
			s.respondError(w, apperr.BadRequest("Invalid role"))
			return
		}
		filter.Role = role
	}
	if raw := query.Get("status"); raw != "" {
		status := model.UserStatus(raw)
		if !status.Valid() {
			s.respondError(w, apperr.BadRequest("Invalid status"))
			return
		}
		filter.Status = status
	}

	users, total, err := s.store.ListUsers(r.Context(), filter)
	if err != nil {
		s.respondError(w, apperr.Internal(err))
		return
	}

	payloads := make([]userPayload, 0, len(users))
	for _, user := range users {
		payloads = append(payloads, toUserPayload(user))
	}
	s.respond(w, http.StatusOK, "Users fetched", listUsersResponse{
		Users: payloads,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}
