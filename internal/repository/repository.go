package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/preplab/server/internal/model"
)

// ErrNotFound is returned instead of pgx.ErrNoRows so callers and test
// fakes do not need to depend on the driver.
var ErrNotFound = errors.New("record not found")

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const userColumns = `id, name, email, password_hash, phone, picture, role, status, organization_id, is_deleted, created_at, updated_at`

func scanUser(row pgx.Row) (model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.Phone,
		&user.Picture,
		&user.Role,
		&user.Status,
		&user.OrganizationID,
		&user.IsDeleted,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return user, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	return scanUser(row)
}

func (s *Store) GetAuthProviders(ctx context.Context, userID string) ([]model.AuthProvider, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, provider, provider_id, created_at
		FROM auth_providers
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var providers []model.AuthProvider
	for rows.Next() {
		var p model.AuthProvider
		if err := rows.Scan(&p.ID, &p.UserID, &p.Provider, &p.ProviderID, &p.CreatedAt); err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

// CreateUserWithProvider inserts the user, its auth-provider link and
// its role profile row in one transaction.
func (s *Store) CreateUserWithProvider(ctx context.Context, user model.User, provider model.ProviderKind, providerID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO users (id, name, email, password_hash, phone, picture, role, status, organization_id, is_deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, user.ID, user.Name, user.Email, user.PasswordHash, user.Phone, user.Picture, user.Role, user.Status, user.OrganizationID, user.IsDeleted, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO auth_providers (id, user_id, provider, provider_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), user.ID, provider, providerID, user.CreatedAt)
	if err != nil {
		return err
	}

	if err := createRoleProfile(ctx, tx, user); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func createRoleProfile(ctx context.Context, tx pgx.Tx, user model.User) error {
	switch user.Role {
	case model.RoleStudent:
		_, err := tx.Exec(ctx, `INSERT INTO students (user_id) VALUES ($1)`, user.ID)
		return err
	case model.RoleTeacher:
		_, err := tx.Exec(ctx, `INSERT INTO teachers (user_id) VALUES ($1)`, user.ID)
		return err
	case model.RoleAdmin, model.RoleSuperAdmin:
		_, err := tx.Exec(ctx, `INSERT INTO admins (user_id) VALUES ($1)`, user.ID)
		return err
	default:
		return fmt.Errorf("unknown role %q", user.Role)
	}
}

// AddAuthProvider links an external identity to an existing user.
// Duplicate (user, provider) pairs are ignored so repeat federated
// logins stay idempotent.
func (s *Store) AddAuthProvider(ctx context.Context, userID string, provider model.ProviderKind, providerID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO auth_providers (id, user_id, provider, provider_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, provider) DO NOTHING
	`, uuid.NewString(), userID, provider, providerID, time.Now().UTC())
	return err
}

// ActivateUser flips PENDING to ACTIVE. The conditional update makes
// the flip single-winner under concurrent verification attempts.
func (s *Store) ActivateUser(ctx context.Context, email string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE users
		SET status = $1, updated_at = $2
		WHERE email = $3 AND status = $4
		RETURNING `+userColumns+`
	`, model.StatusActive, time.Now().UTC(), email, model.StatusPending)
	return scanUser(row)
}

func (s *Store) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3
	`, passwordHash, time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) UpdateStatus(ctx context.Context, userID string, status model.UserStatus) (model.User, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE users SET status = $1, updated_at = $2
		WHERE id = $3 AND is_deleted = false
		RETURNING `+userColumns+`
	`, status, time.Now().UTC(), userID)
	return scanUser(row)
}

func (s *Store) SoftDeleteUser(ctx context.Context, userID string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE users SET is_deleted = true, updated_at = $1
		WHERE id = $2 AND is_deleted = false
		RETURNING `+userColumns+`
	`, time.Now().UTC(), userID)
	return scanUser(row)
}

type ProfileUpdate struct {
	Name    *string
	Phone   *string
	Picture *string
}

func (s *Store) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (model.User, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE users
		SET name = COALESCE($1, name),
		    phone = COALESCE($2, phone),
		    picture = COALESCE($3, picture),
		    updated_at = $4
		WHERE id = $5 AND is_deleted = false
		RETURNING `+userColumns+`
	`, update.Name, update.Phone, update.Picture, time.Now().UTC(), userID)
	return scanUser(row)
}

func (s *Store) GetStudentProfile(ctx context.Context, userID string) (model.StudentProfile, error) {
	profile := model.StudentProfile{UserID: userID}
	row := s.pool.QueryRow(ctx, `SELECT target_score, exam_date FROM students WHERE user_id = $1`, userID)
	err := row.Scan(&profile.TargetScore, &profile.ExamDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.StudentProfile{}, ErrNotFound
	}
	return profile, err
}

func (s *Store) UpdateTargetScore(ctx context.Context, userID string, targetScore float64) error {
	_, err := s.pool.Exec(ctx, `UPDATE students SET target_score = $1 WHERE user_id = $2`, targetScore, userID)
	return err
}

type ListFilter struct {
	SearchTerm string
	Role       model.UserRole
	Status     model.UserStatus
	Limit      int
	Offset     int
}

func (s *Store) ListUsers(ctx context.Context, filter ListFilter) ([]model.User, int, error) {
	conditions := []string{"is_deleted = false"}
	var args []any

	if filter.SearchTerm != "" {
		args = append(args, "%"+filter.SearchTerm+"%")
		n := fmt.Sprintf("$%d", len(args))
		conditions = append(conditions, `(name ILIKE `+n+` OR email ILIKE `+n+`)`)
	}
	if filter.Role != "" {
		args = append(args, filter.Role)
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Limit, filter.Offset)
	query := `SELECT ` + userColumns + ` FROM users` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}
	return users, total, rows.Err()
}

// EnsureSuperAdmin creates the bootstrap super-admin account if it
// does not exist yet. Safe to run on every start.
func (s *Store) EnsureSuperAdmin(ctx context.Context, email, passwordHash string) (created bool, err error) {
	_, err = s.GetUserByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, err
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Name:         "Super Admin",
		Email:        email,
		PasswordHash: &passwordHash,
		Role:         model.RoleSuperAdmin,
		Status:       model.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.CreateUserWithProvider(ctx, user, model.ProviderCredentials, email); err != nil {
		return false, err
	}
	return true, nil
}
