// Package auth handles dashboard logins: password hashes, users and
// session tokens.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"welfare-server-go/db"
	"welfare-server-go/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUnauthorized       = errors.New("not logged in")
	ErrForbidden          = errors.New("insufficient role")
)

// Users is the part of db.Storage the auth service needs
type Users interface {
	CreateUser(ctx context.Context, u models.User) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

// Sessions stores login tokens
type Sessions interface {
	SaveSession(ctx context.Context, s models.Session, ttl time.Duration) error
	GetSession(ctx context.Context, token string, ttl time.Duration) (models.Session, error)
	DeleteSession(ctx context.Context, token string) error
}

// NewUser is the payload for creating an account
type NewUser struct {
	Username string      `json:"username" validate:"required,min=3,max=100"`
	Password string      `json:"password" validate:"required,min=6,max=72"`
	Role     models.Role `json:"role" validate:"required,oneof=admin user"`
}

// Credentials is the login payload
type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type Service struct {
	users    Users
	sessions Sessions
	ttl      time.Duration
	log      *zap.Logger
}

func NewService(users Users, sessions Sessions, ttl time.Duration, log *zap.Logger) *Service {
	return &Service{users: users, sessions: sessions, ttl: ttl, log: log}
}

// Login checks the credentials and opens a session
func (s *Service) Login(ctx context.Context, c Credentials) (models.Session, error) {
	username := strings.TrimSpace(c.Username)
	password := strings.TrimSpace(c.Password)

	u, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, db.ErrNotFound) {
		s.log.Info("login rejected: unknown user", zap.String("username", username))
		return models.Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.Session{}, err
	}
	if !CheckPassword(u.PasswordHash, password) {
		s.log.Info("login rejected: wrong password", zap.String("username", username))
		return models.Session{}, ErrInvalidCredentials
	}

	token, err := newToken()
	if err != nil {
		return models.Session{}, err
	}
	sess := models.Session{Token: token, Username: u.Username, Role: u.Role}
	if err := s.sessions.SaveSession(ctx, sess, s.ttl); err != nil {
		return models.Session{}, err
	}

	s.log.Info("user logged in", zap.String("username", u.Username), zap.String("role", string(u.Role)))
	return sess, nil
}

// Authenticate resolves a token to its session
func (s *Service) Authenticate(ctx context.Context, token string) (models.Session, error) {
	if token == "" {
		return models.Session{}, ErrUnauthorized
	}
	sess, err := s.sessions.GetSession(ctx, token, s.ttl)
	if errors.Is(err, db.ErrSessionNotFound) {
		return models.Session{}, ErrUnauthorized
	}
	return sess, err
}

func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.DeleteSession(ctx, token)
}

// CreateUser validates nu and stores it with a hashed password
func (s *Service) CreateUser(ctx context.Context, nu NewUser) (models.User, error) {
	nu.Username = strings.TrimSpace(nu.Username)
	nu.Password = strings.TrimSpace(nu.Password)
	if err := models.Validate(nu); err != nil {
		return models.User{}, err
	}

	hash, err := HashPassword(nu.Password)
	if err != nil {
		return models.User{}, err
	}
	u, err := s.users.CreateUser(ctx, models.User{Username: nu.Username, PasswordHash: hash, Role: nu.Role})
	if err != nil {
		return models.User{}, err
	}

	s.log.Info("user created", zap.String("username", u.Username), zap.String("role", string(u.Role)))
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.users.ListUsers(ctx)
}

// EnsureAdmin creates the admin account unless a user with that name exists.
// It reports whether an account was created.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	_, err := s.users.GetUserByUsername(ctx, username)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return false, err
	}

	_, err = s.CreateUser(ctx, NewUser{Username: username, Password: password, Role: models.RoleAdmin})
	if errors.Is(err, db.ErrDuplicateUsername) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("seed admin %q: %w", username, err)
	}
	return true, nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// newToken returns 256 random bits, hex encoded
func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// RequireRole returns ErrForbidden unless sess has role
func RequireRole(sess models.Session, role models.Role) error {
	if sess.Role != role {
		return ErrForbidden
	}
	return nil
}
