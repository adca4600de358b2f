package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role decides what a caller may do. Viewers are limited to read requests.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleViewer Role = "viewer"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// User is one configured API account. PasswordHash is a bcrypt hash as
// printed by `procwatch hash-password`.
type User struct {
	Username     string `toml:"username" mapstructure:"username"`
	PasswordHash string `toml:"password_hash" mapstructure:"password_hash"`
	Role         Role   `toml:"role" mapstructure:"role"`
}

// Config is the [server.auth] section.
type Config struct {
	Enabled   bool   `toml:"enabled" mapstructure:"enabled"`
	JWTSecret string `toml:"jwt_secret" mapstructure:"jwt_secret"`

	// TokenTTL is a Go duration string, "24h" when empty.
	TokenTTL string `toml:"token_ttl" mapstructure:"token_ttl"`
	Users    []User `toml:"users" mapstructure:"users"`
}

// Claims carried in issued tokens.
type Claims struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
	jwt.RegisteredClaims
}

// Token is returned from a successful login.
type Token struct {
	Type      string    `json:"type"` // "Bearer"
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LoginRequest is the body of POST {base}/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
