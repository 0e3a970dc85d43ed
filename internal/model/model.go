package model

import "time"

type UserRole string

const (
	RoleStudent    UserRole = "STUDENT"
	RoleTeacher    UserRole = "TEACHER"
	RoleAdmin      UserRole = "ADMIN"
	RoleSuperAdmin UserRole = "SUPER_ADMIN"
)

func (r UserRole) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

type UserStatus string

const (
	StatusPending   UserStatus = "PENDING"
	StatusActive    UserStatus = "ACTIVE"
	StatusSuspended UserStatus = "SUSPENDED"
)

func (s UserStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusSuspended:
		return true
	}
	return false
}

type ProviderKind string

const (
	ProviderCredentials ProviderKind = "CREDENTIALS"
	ProviderGoogle      ProviderKind = "GOOGLE"
)

type User struct {
	ID             string
	Name           string
	Email          string
	PasswordHash   *string
	Phone          *string
	Picture        *string
	Role           UserRole
	Status         UserStatus
	OrganizationID *string
	IsDeleted      bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasPassword reports whether a local password is set. Accounts
// provisioned through a federated provider may not have one.
func (u User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

type AuthProvider struct {
	ID         string
	UserID     string
	Provider   ProviderKind
	ProviderID string
	CreatedAt  time.Time
}

type StudentProfile struct {
	UserID      string
	TargetScore *float64
	ExamDate    *time.Time
}
