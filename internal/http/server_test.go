package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/preplab/server/internal/config"
	"github.com/preplab/server/internal/crypto"
	"github.com/preplab/server/internal/mailer"
	"github.com/preplab/server/internal/model"
	"github.com/preplab/server/internal/otp"
	"github.com/preplab/server/internal/ratelimit"
	"github.com/preplab/server/internal/repository"
	"github.com/preplab/server/internal/token"
)

type memStore struct {
	mu       sync.Mutex
	users    map[string]model.User // keyed by id
	profiles map[string]model.StudentProfile
	links    map[string][]model.AuthProvider
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[string]model.User{},
		profiles: map[string]model.StudentProfile{},
		links:    map[string][]model.AuthProvider{},
	}
}

func (m *memStore) put(user model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m *memStore) GetUserByID(_ context.Context, userID string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return user, nil
}

func (m *memStore) CreateUserWithProvider(_ context.Context, user model.User, provider model.ProviderKind, providerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	m.links[user.ID] = append(m.links[user.ID], model.AuthProvider{
		UserID: user.ID, Provider: provider, ProviderID: providerID,
	})
	if user.Role == model.RoleStudent {
		m.profiles[user.ID] = model.StudentProfile{UserID: user.ID}
	}
	return nil
}

func (m *memStore) AddAuthProvider(_ context.Context, userID string, provider model.ProviderKind, providerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, link := range m.links[userID] {
		if link.Provider == provider {
			return nil
		}
	}
	m.links[userID] = append(m.links[userID], model.AuthProvider{
		UserID: userID, Provider: provider, ProviderID: providerID,
	})
	return nil
}

func (m *memStore) ActivateUser(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, u := range m.users {
		if u.Email == email {
			if u.Status != model.StatusPending {
				return model.User{}, repository.ErrNotFound
			}
			u.Status = model.StatusActive
			m.users[id] = u
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m *memStore) UpdatePassword(_ context.Context, userID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	user.PasswordHash = &passwordHash
	m.users[userID] = user
	return nil
}

func (m *memStore) UpdateStatus(_ context.Context, userID string, status model.UserStatus) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok || user.IsDeleted {
		return model.User{}, repository.ErrNotFound
	}
	user.Status = status
	m.users[userID] = user
	return user, nil
}

func (m *memStore) SoftDeleteUser(_ context.Context, userID string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok || user.IsDeleted {
		return model.User{}, repository.ErrNotFound
	}
	user.IsDeleted = true
	m.users[userID] = user
	return user, nil
}

func (m *memStore) UpdateProfile(_ context.Context, userID string, update repository.ProfileUpdate) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok || user.IsDeleted {
		return model.User{}, repository.ErrNotFound
	}
	if update.Name != nil {
		user.Name = *update.Name
	}
	if update.Phone != nil {
		user.Phone = update.Phone
	}
	if update.Picture != nil {
		user.Picture = update.Picture
	}
	m.users[userID] = user
	return user, nil
}

func (m *memStore) GetStudentProfile(_ context.Context, userID string) (model.StudentProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	profile, ok := m.profiles[userID]
	if !ok {
		return model.StudentProfile{}, repository.ErrNotFound
	}
	return profile, nil
}

func (m *memStore) UpdateTargetScore(_ context.Context, userID string, targetScore float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	profile := m.profiles[userID]
	profile.UserID = userID
	profile.TargetScore = &targetScore
	m.profiles[userID] = profile
	return nil
}

func (m *memStore) ListUsers(_ context.Context, filter repository.ListFilter) ([]model.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []model.User
	for _, u := range m.users {
		if u.IsDeleted {
			continue
		}
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.Status != "" && u.Status != filter.Status {
			continue
		}
		if filter.SearchTerm != "" &&
			!strings.Contains(strings.ToLower(u.Name), strings.ToLower(filter.SearchTerm)) &&
			!strings.Contains(strings.ToLower(u.Email), strings.ToLower(filter.SearchTerm)) {
			continue
		}
		matched = append(matched, u)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Email < matched[j].Email })
	total := len(matched)
	if filter.Offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

type testHarness struct {
	server *Server
	store  *memStore
	engine *otp.Engine
	router http.Handler
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.Config{
		JWTIssuer:        "preplab-test",
		JWTAccessSecret:  "access-secret",
		JWTRefreshSecret: "refresh-secret",
		JWTResetSecret:   "reset-secret",
		AccessTokenTTL:   15 * time.Minute,
		RefreshTokenTTL:  7 * 24 * time.Hour,
		ResetTokenTTL:    10 * time.Minute,
		OTPTTL:           5 * time.Minute,
		RateLimitWindow:  15 * time.Minute,
		RateLimitMax:     2,
		BcryptCost:       bcrypt.MinCost,
		FrontendURL:      "http://localhost:3000",
		CompanyName:      "Preplab",
		SupportEmail:     "support@preplab.io",
	}

	codec := token.NewCodec(cfg.JWTIssuer, token.Secrets{
		Access:  cfg.JWTAccessSecret,
		Refresh: cfg.JWTRefreshSecret,
		Reset:   cfg.JWTResetSecret,
	}, token.TTLs{
		Access:  cfg.AccessTokenTTL,
		Refresh: cfg.RefreshTokenTTL,
		Reset:   cfg.ResetTokenTTL,
	})

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	store := newMemStore()
	branding := mailer.Branding{CompanyName: cfg.CompanyName, FrontendURL: cfg.FrontendURL, SupportEmail: cfg.SupportEmail}
	engine := otp.NewEngine(store, otp.NewStore(rdb, cfg.OTPTTL), mailer.NopSender{}, branding, log)
	limiter := ratelimit.New(rdb, cfg.RateLimitWindow, cfg.RateLimitMax)

	server := NewServer(cfg, store, codec, engine, limiter, nil, mailer.NopSender{}, log)
	return &testHarness{server: server, store: store, engine: engine, router: server.Router()}
}

func (h *testHarness) do(t *testing.T, method, path string, body interface{}, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range header {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) (bool, string, map[string]interface{}) {
	t.Helper()
	var resp struct {
		Success bool                   `json:"success"`
		Message string                 `json:"message"`
		Data    map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	return resp.Success, resp.Message, resp.Data
}

func seedActive(t *testing.T, store *memStore, id, email, password string, role model.UserRole) model.User {
	t.Helper()
	hash, err := crypto.HashPassword(password, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	user := model.User{
		ID:           id,
		Name:         "Seed User",
		Email:        email,
		PasswordHash: &hash,
		Role:         role,
		Status:       model.StatusActive,
	}
	store.put(user)
	if role == model.RoleStudent {
		store.profiles[id] = model.StudentProfile{UserID: id}
	}
	return user
}

func refreshCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == refreshCookieName {
			return cookie
		}
	}
	return nil
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	seedActive(t, h.store, "u1", "a@x.com", "password123", model.RoleStudent)

	rec := h.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "A@X.com", "password": "password123",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	success, _, data := decodeEnvelope(t, rec)
	accessToken, _ := data["accessToken"].(string)
	if !success || accessToken == "" {
		t.Fatalf("expected success with token, got %s", rec.Body.String())
	}

	cookie := refreshCookie(rec)
	if cookie == nil || !cookie.HttpOnly || cookie.SameSite != http.SameSiteLaxMode {
		t.Fatalf("expected httpOnly lax refresh cookie, got %+v", cookie)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	h := newHarness(t)
	seedActive(t, h.store, "u1", "a@x.com", "password123", model.RoleStudent)

	rec := h.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "a@x.com", "password": "wrong",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	success, message, _ := decodeEnvelope(t, rec)
	if success || message != "Invalid email or password" {
		t.Fatalf("unexpected envelope: %s", rec.Body.String())
	}
}

func TestRegisterVerifyLogin(t *testing.T) {
	h := newHarness(t)
	h.engine.WithGenerator(func() (string, error) { return "123456", nil })

	rec := h.do(t, http.MethodPost, "/api/v1/user/create-student", map[string]interface{}{
		"name": "New Student", "email": "new@x.com", "password": "password123",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	// Re-registering while pending resends the code instead of a 409.
	rec = h.do(t, http.MethodPost, "/api/v1/user/create-student", map[string]interface{}{
		"name": "New Student", "email": "new@x.com", "password": "password123",
	}, map[string]string{"X-Forwarded-For": "10.0.0.2"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 resend, got %d: %s", rec.Code, rec.Body.String())
	}

	// Login before verification is refused.
	rec = h.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "new@x.com", "password": "password123",
	}, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 before verification, got %d", rec.Code)
	}

	rec = h.do(t, http.MethodPost, "/api/v1/otp/verify?email=new@x.com", map[string]string{"otp": "123456"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 verify, got %d: %s", rec.Code, rec.Body.String())
	}
	_, _, data := decodeEnvelope(t, rec)
	if accessToken, _ := data["accessToken"].(string); accessToken == "" {
		t.Fatalf("verification should auto-login: %s", rec.Body.String())
	}

	// The code is single-use.
	rec = h.do(t, http.MethodPost, "/api/v1/otp/verify?email=new@x.com", map[string]string{"otp": "123456"},
		map[string]string{"X-Forwarded-For": "10.0.0.3"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on replay, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "new@x.com", "password": "password123",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected login after verification, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRegisterConflict(t *testing.T) {
	h := newHarness(t)
	seedActive(t, h.store, "u1", "a@x.com", "password123", model.RoleStudent)

	rec := h.do(t, http.MethodPost, "/api/v1/user/create-student", map[string]interface{}{
		"name": "Dup", "email": "a@x.com", "password": "password123",
	}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGuard(t *testing.T) {
	h := newHarness(t)
	user := seedActive(t, h.store, "u1", "a@x.com", "password123", model.RoleStudent)

	rec := h.do(t, http.MethodGet, "/api/v1/user/me", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	pair, err := h.server.sessions.Issue(user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Both the raw token and the Bearer form are accepted.
	for _, header := range []string{pair.AccessToken, "Bearer " + pair.AccessToken} {
		rec = h.do(t, http.MethodGet, "/api/v1/user/me", nil, map[string]string{"Authorization": header})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 with token %q, got %d: %s", header[:10], rec.Code, rec.Body.String())
		}
	}

	// A refresh token is not an access token.
	rec = h.do(t, http.MethodGet, "/api/v1/user/me", nil, map[string]string{"Authorization": "Bearer " + pair.RefreshToken})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh token must not authorize, got %d", rec.Code)
	}

	// Students cannot reach admin-only routes.
	rec = h.do(t, http.MethodGet, "/api/v1/user/", nil, map[string]string{"Authorization": "Bearer " + pair.AccessToken})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for student on admin route, got %d", rec.Code)
	}
}

func TestGuardReloadsLiveState(t *testing.T) {
	h := newHarness(t)
	user := seedActive(t, h.store, "u1", "a@x.com", "password123", model.RoleStudent)
	pair, err := h.server.sessions.Issue(user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	user.Status = model.StatusSuspended
	h.store.put(user)
	rec := h.do(t, http.MethodGet, "/api/v1/user/me", nil, map[string]string{"Authorization": "Bearer " + pair.AccessToken})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("suspended account must be forbidden, got %d", rec.Code)
	}

	user.Status = model.StatusActive
	user.IsDeleted = true
	h.store.put(user)
	rec = h.do(t, http.MethodGet, "/api/v1/user/me", nil, map[string]string{"Authorization": "Bearer " + pair.AccessToken})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("deleted account must 404, got %d", rec.Code)
	}
}

func TestRefreshTokenEndpoint(t *testing.T) {
	h := newHarness(t)
	seedActive(t, h.store, "u1", "a@x.com", "password123", model.RoleStudent)

	login := h.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "a@x.com", "password": "password123",
	}, nil)
	cookie := refreshCookie(login)
	if cookie == nil {
		t.Fatal("login did not set refresh cookie")
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh-token", bytes.NewReader(nil))
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	_, _, data := decodeEnvelope(t, rec)
	if accessToken, _ := data["accessToken"].(string); accessToken == "" {
		t.Fatalf("expected fresh access token: %s", rec.Body.String())
	}
	if _, ok := data["refreshToken"]; ok {
		t.Fatal("refresh must not rotate the refresh token")
	}

	rec = h.do(t, http.MethodPost, "/api/v1/auth/refresh-token", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestOTPSendRateLimited(t *testing.T) {
	h := newHarness(t)
	user := seedActive(t, h.store, "u1", "a@x.com", "password123", model.RoleStudent)
	user.Status = model.StatusPending
	h.store.put(user)

	header := map[string]string{"X-Forwarded-For": "10.0.0.9"}
	for i := 0; i < 2; i++ {
		rec := h.do(t, http.MethodPost, "/api/v1/otp/send", map[string]string{"email": "a@x.com"}, header)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d: %s", i+1, rec.Code, rec.Body.String())
		}
	}

	rec := h.do(t, http.MethodPost, "/api/v1/otp/send", map[string]string{"email": "a@x.com"}, header)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}

	// A different client is unaffected.
	rec = h.do(t, http.MethodPost, "/api/v1/otp/send", map[string]string{"email": "a@x.com"},
		map[string]string{"X-Forwarded-For": "10.0.0.10"})
	if rec.Code != http.StatusOK {
		t.Fatalf("other client: expected 200, got %d", rec.Code)
	}
}

func TestAdminUserManagement(t *testing.T) {
	h := newHarness(t)
	admin := seedActive(t, h.store, "admin-1", "admin@x.com", "password123", model.RoleAdmin)
	target := seedActive(t, h.store, "u2", "target@x.com", "password123", model.RoleStudent)

	pair, err := h.server.sessions.Issue(admin)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	authz := map[string]string{"Authorization": "Bearer " + pair.AccessToken}

	rec := h.do(t, http.MethodPatch, fmt.Sprintf("/api/v1/user/%s/status", target.ID),
		map[string]string{"status": "SUSPENDED"}, authz)
	if rec.Code != http.StatusOK {
		t.Fatalf("status update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got, _ := h.store.GetUserByID(context.Background(), target.ID); got.Status != model.StatusSuspended {
		t.Fatalf("status not persisted: %s", got.Status)
	}

	rec = h.do(t, http.MethodGet, "/api/v1/user/?role=STUDENT", nil, authz)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	_, _, data := decodeEnvelope(t, rec)
	if total, ok := data["total"].(float64); !ok || int(total) != 1 {
		t.Fatalf("expected one student, got %s", rec.Body.String())
	}

	rec = h.do(t, http.MethodDelete, "/api/v1/user/"+target.ID, nil, authz)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got, _ := h.store.GetUserByID(context.Background(), target.ID); !got.IsDeleted {
		t.Fatal("soft delete not persisted")
	}

	// Creating a teacher is an admin operation.
	rec = h.do(t, http.MethodPost, "/api/v1/user/create-teacher", map[string]interface{}{
		"name": "Teacher", "email": "t@x.com", "password": "password123",
	}, authz)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create teacher: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	// Creating an admin is reserved for the super admin.
	rec = h.do(t, http.MethodPost, "/api/v1/user/create-admin", map[string]interface{}{
		"name": "Admin", "email": "a2@x.com", "password": "password123",
	}, authz)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("create admin as admin: expected 403, got %d", rec.Code)
	}
}

func TestUpdateMe(t *testing.T) {
	h := newHarness(t)
	user := seedActive(t, h.store, "u1", "a@x.com", "password123", model.RoleStudent)
	pair, err := h.server.sessions.Issue(user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	authz := map[string]string{"Authorization": "Bearer " + pair.AccessToken}

	rec := h.do(t, http.MethodPatch, "/api/v1/user/me", map[string]interface{}{
		"name": "Renamed", "targetScore": 7.5,
	}, authz)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	_, _, data := decodeEnvelope(t, rec)
	if data["name"] != "Renamed" {
		t.Fatalf("name not updated: %s", rec.Body.String())
	}
	if score, ok := data["targetScore"].(float64); !ok || score != 7.5 {
		t.Fatalf("target score not updated: %s", rec.Body.String())
	}
}

func TestChangePasswordEndpoint(t *testing.T) {
	h := newHarness(t)
	user := seedActive(t, h.store, "u1", "a@x.com", "old-password", model.RoleStudent)
	pair, err := h.server.sessions.Issue(user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	authz := map[string]string{"Authorization": "Bearer " + pair.AccessToken}

	rec := h.do(t, http.MethodPost, "/api/v1/auth/change-password", map[string]string{
		"currentPassword": "old-password", "newPassword": "new-password",
	}, authz)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "a@x.com", "password": "new-password",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login with new password: expected 200, got %d", rec.Code)
	}
}

func TestForgotPasswordDoesNotEnumerate(t *testing.T) {
	h := newHarness(t)
	seedActive(t, h.store, "u1", "a@x.com", "password123", model.RoleStudent)

	known := h.do(t, http.MethodPost, "/api/v1/auth/forgot-password", map[string]string{"email": "a@x.com"}, nil)
	unknown := h.do(t, http.MethodPost, "/api/v1/auth/forgot-password", map[string]string{"email": "nobody@x.com"},
		map[string]string{"X-Forwarded-For": "10.0.0.5"})
	if known.Code != http.StatusOK || unknown.Code != http.StatusOK {
		t.Fatalf("both must answer 200: %d / %d", known.Code, unknown.Code)
	}
	_, knownMsg, _ := decodeEnvelope(t, known)
	_, unknownMsg, _ := decodeEnvelope(t, unknown)
	if knownMsg != unknownMsg {
		t.Fatalf("responses must be indistinguishable: %q vs %q", knownMsg, unknownMsg)
	}
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
