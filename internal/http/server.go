package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/preplab/server/internal/apperr"
	"github.com/preplab/server/internal/auth"
	"github.com/preplab/server/internal/config"
	"github.com/preplab/server/internal/mailer"
	"github.com/preplab/server/internal/model"
	"github.com/preplab/server/internal/oauth"
	"github.com/preplab/server/internal/otp"
	"github.com/preplab/server/internal/ratelimit"
	"github.com/preplab/server/internal/repository"
	"github.com/preplab/server/internal/token"
)

// Store is the repository surface the handlers depend on. Tests swap
// in an in-memory implementation.
type Store interface {
	auth.Store
	UpdateStatus(ctx context.Context, userID string, status model.UserStatus) (model.User, error)
	SoftDeleteUser(ctx context.Context, userID string) (model.User, error)
	UpdateProfile(ctx context.Context, userID string, update repository.ProfileUpdate) (model.User, error)
	GetStudentProfile(ctx context.Context, userID string) (model.StudentProfile, error)
	UpdateTargetScore(ctx context.Context, userID string, targetScore float64) error
	ListUsers(ctx context.Context, filter repository.ListFilter) ([]model.User, int, error)
}

// RateLimiter guards the OTP-adjacent endpoints.
type RateLimiter interface {
	Check(ctx context.Context, ip, email string) (ratelimit.Result, error)
}

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "http_requests_total",
	Help: "Count of handled HTTP requests.",
}, []string{"method", "path", "status"})

type Server struct {
	cfg       config.Config
	store     Store
	codec     *token.Codec
	sessions  *auth.SessionService
	creds     *auth.CredentialAuthenticator
	federated *auth.FederatedAuthenticator
	engine    *otp.Engine
	limiter   RateLimiter
	google    *oauth.GoogleClient
	validate  *validator.Validate
	log       logrus.FieldLogger
}

func NewServer(cfg config.Config, store Store, codec *token.Codec, engine *otp.Engine, limiter RateLimiter, google *oauth.GoogleClient, mail mailer.Sender, log logrus.FieldLogger) *Server {
	branding := mailer.Branding{
		CompanyName:  cfg.CompanyName,
		FrontendURL:  cfg.FrontendURL,
		SupportEmail: cfg.SupportEmail,
	}
	return &Server{
		cfg:       cfg,
		store:     store,
		codec:     codec,
		sessions:  auth.NewSessionService(store, codec, mail, branding, cfg.BcryptCost, log),
		creds:     auth.NewCredentialAuthenticator(store),
		federated: auth.NewFederatedAuthenticator(store),
		engine:    engine,
		limiter:   limiter,
		google:    google,
		validate:  validator.New(),
		log:       log,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.countRequests)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", s.handleLogin)
			r.Get("/google", s.handleGoogleRedirect)
			r.Get("/google/callback", s.handleGoogleCallback)
			r.Post("/refresh-token", s.handleRefreshToken)
			r.With(s.requireAuth()).Post("/change-password", s.handleChangePassword)
			r.With(s.rateLimit).Post("/forgot-password", s.handleForgotPassword)
			r.Post("/reset-password", s.handleResetPassword)
			r.With(s.requireAuth()).Post("/logout", s.handleLogout)
		})

		r.Route("/otp", func(r chi.Router) {
			r.With(s.rateLimit).Post("/send", s.handleSendOTP)
			r.With(s.rateLimit).Post("/resend", s.handleResendOTP)
			r.With(s.rateLimit).Post("/verify", s.handleVerifyOTP)
		})

		r.Route("/user", func(r chi.Router) {
			r.Post("/create-student", s.handleCreateStudent)
			r.With(s.requireAuth(model.RoleAdmin, model.RoleSuperAdmin)).Post("/create-teacher", s.handleCreateTeacher)
			r.With(s.requireAuth(model.RoleSuperAdmin)).Post("/create-admin", s.handleCreateAdmin)
			r.With(s.requireAuth()).Get("/me", s.handleGetMe)
			r.With(s.requireAuth()).Patch("/me", s.handleUpdateMe)
			r.With(s.requireAuth(model.RoleAdmin, model.RoleSuperAdmin)).Get("/", s.handleListUsers)
			r.With(s.requireAuth(model.RoleAdmin, model.RoleSuperAdmin)).Patch("/{userID}/status", s.handleUpdateStatus)
			r.With(s.requireAuth(model.RoleAdmin, model.RoleSuperAdmin)).Delete("/{userID}", s.handleDeleteUser)
		})
	})

	return r
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
			if pattern := routeCtx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		requestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
	})
}

// envelope is the uniform response shape: every endpoint answers with
// success, a human-readable message and an optional data payload.
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type userPayload struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Email       string   `json:"email"`
	Phone       *string  `json:"phone,omitempty"`
	Picture     *string  `json:"picture,omitempty"`
	Role        string   `json:"role"`
	Status      string   `json:"status"`
	TargetScore *float64 `json:"targetScore,omitempty"`
}

func toUserPayload(user model.User) userPayload {
	return userPayload{
		ID:      user.ID,
		Name:    user.Name,
		Email:   user.Email,
		Phone:   user.Phone,
		Picture: user.Picture,
		Role:    string(user.Role),
		Status:  string(user.Status),
	}
}

func (s *Server) respond(w http.ResponseWriter, status int, message string, data interface{}) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := apperr.StatusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).Error("request failed")
	}
	writeJSON(w, status, envelope{Success: false, Message: apperr.MessageOf(err)})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decode parses the JSON body and runs struct validation.
func (s *Server) decode(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(out); err != nil {
		return apperr.BadRequest("Invalid request body")
	}
	if err := s.validate.Struct(out); err != nil {
		return apperr.BadRequest("Invalid request payload")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// bearerToken tolerates both a raw token and the Bearer prefix.
func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return header
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	return host
}
