package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/preplab/server/internal/model"
)

// Purpose tags a token with the endpoint class it may be presented to.
// Each purpose is signed with its own secret, so access, refresh and
// reset tokens are never interchangeable.
type Purpose string

const (
	PurposeAccess  Purpose = "access"
	PurposeRefresh Purpose = "refresh"
	PurposeReset   Purpose = "reset"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

type Claims struct {
	UserID  string         `json:"user_id"`
	Email   string         `json:"email"`
	Role    model.UserRole `json:"role"`
	Purpose Purpose        `json:"purpose"`
	jwt.RegisteredClaims
}

type Secrets struct {
	Access  string
	Refresh string
	Reset   string
}

type TTLs struct {
	Access  time.Duration
	Refresh time.Duration
	Reset   time.Duration
}

type Codec struct {
	issuer  string
	secrets Secrets
	ttls    TTLs
}

func NewCodec(issuer string, secrets Secrets, ttls TTLs) *Codec {
	return &Codec{issuer: issuer, secrets: secrets, ttls: ttls}
}

func (c *Codec) Issue(user model.User, purpose Purpose) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		UserID:  user.ID,
		Email:   user.Email,
		Role:    user.Role,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl(purpose))),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(c.secret(purpose)))
}

// Verify fails closed: any structural, signature, expiry or purpose
// mismatch rejects the token.
func (c *Codec) Verify(raw string, purpose Purpose) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(c.secret(purpose)), nil
	}, jwt.WithIssuer(c.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Purpose != purpose {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (c *Codec) secret(p Purpose) string {
	switch p {
	case PurposeRefresh:
		return c.secrets.Refresh
	case PurposeReset:
		return c.secrets.Reset
	default:
		return c.secrets.Access
	}
}

func (c *Codec) ttl(p Purpose) time.Duration {
	switch p {
	case PurposeRefresh:
		return c.ttls.Refresh
	case PurposeReset:
		return c.ttls.Reset
	default:
		return c.ttls.Access
	}
}
