package auth

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const defaultTokenTTL = 24 * time.Hour

// Service checks configured users and issues HS256 tokens.
type Service struct {
	users  map[string]User
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// New builds a Service from cfg. An empty JWTSecret gets a random one, so
// tokens do not survive a daemon restart.
func New(cfg Config) (*Service, error) {
	s := &Service{users: make(map[string]User, len(cfg.Users)), ttl: defaultTokenTTL, now: time.Now}
	if cfg.TokenTTL != "" {
		ttl, err := time.ParseDuration(cfg.TokenTTL)
		if err != nil || ttl <= 0 {
			return nil, fmt.Errorf("invalid token_ttl %q", cfg.TokenTTL)
		}
		s.ttl = ttl
	}
	for _, u := range cfg.Users {
		if u.Username == "" || u.PasswordHash == "" {
			return nil, fmt.Errorf("auth user needs username and password_hash")
		}
		switch u.Role {
		case "":
			u.Role = RoleViewer
		case RoleAdmin, RoleViewer:
		default:
			return nil, fmt.Errorf("user %s: unknown role %q", u.Username, u.Role)
		}
		if _, dup := s.users[u.Username]; dup {
			return nil, fmt.Errorf("duplicate auth user %s", u.Username)
		}
		s.users[u.Username] = u
	}
	s.secret = []byte(cfg.JWTSecret)
	if len(s.secret) == 0 {
		s.secret = make([]byte, 32)
		if _, err := rand.Read(s.secret); err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
	}
	return s, nil
}

// HashPassword returns the bcrypt hash to put in the config file.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("empty password")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword verifies username/password against the configured users.
func (s *Service) CheckPassword(username, password string) (*Claims, error) {
	u, ok := s.users[username]
	if !ok || password == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &Claims{Username: u.Username, Role: u.Role}, nil
}

// Login checks the password and issues a token.
func (s *Service) Login(username, password string) (*Token, error) {
	c, err := s.CheckPassword(username, password)
	if err != nil {
		return nil, err
	}
	now := s.now()
	expiresAt := now.Add(s.ttl)
	c.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   c.Username,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &Token{Type: "Bearer", Value: signed, ExpiresAt: expiresAt}, nil
}

// Verify parses a token issued by Login. A user removed from the config
// after the token was issued is rejected.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	u, ok := s.users[c.Username]
	if !ok {
		return nil, ErrInvalidToken
	}
	c.Role = u.Role
	return &c, nil
}
