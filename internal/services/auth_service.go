package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/auth"
	"fintrack/internal/core"
	"fintrack/internal/log"
)

var (
	ErrCredentialsRequired = core.Validation("Email and password required")
	ErrEmailRequired       = core.Validation("Email required")
	ErrInvalidEmail        = core.Validation("Invalid email")
	ErrResetFieldsRequired = core.Validation("Token and newPassword required")
	ErrInvalidResetToken   = core.Validation("Invalid token")
	ErrResetTokenExpired   = core.Validation("Token expired")
	ErrWrongPassword       = core.Validation("Current password incorrect")
	ErrInvalidCredentials  = core.Unauthorized("Invalid credentials")
)

type AuthConfig struct {
	BcryptCost       int
	ResetTokenTTL    time.Duration
	ExposeResetToken bool
}

// AuthResult is returned by register and login.
type AuthResult struct {
	Token string          `json:"token"`
	User  core.PublicUser `json:"user"`
}

// ForgotResult is returned by forgot-password. Token is only set when
// ExposeResetToken is enabled.
type ForgotResult struct {
	OK    bool   `json:"ok"`
	Token string `json:"token,omitempty"`
}

type AuthService struct {
	users  UserStore
	tokens *auth.TokenManager
	events EventPublisher
	cfg    AuthConfig
	logger *log.Logger
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(users UserStore, tokens *auth.TokenManager, events EventPublisher, cfg AuthConfig, logger *log.Logger) *AuthService {
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = time.Hour
	}
	return &AuthService{
		users:  users,
		tokens: tokens,
		events: events,
		cfg:    cfg,
		logger: logger.WithComponent(log.ComponentAuth),
		now:    time.Now,
	}
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrCredentialsRequired
	}
	if !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	name = strings.TrimSpace(name)
	if len(name) > 100 {
		return nil, core.ErrNameTooLong
	}

	hash, err := auth.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	u, err := s.users.CreateUser(ctx, name, email, hash)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	s.logger.InfoContext(ctx, "User registered", log.FieldUserID, u.ID)
	return s.issue(u)
}

// Login fails with the same error for an unknown email and a wrong password.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrCredentialsRequired
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, core.ErrNotFound) {
		// spend the same bcrypt time as a real mismatch
		auth.CheckPassword(password, s.dummy())
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if !auth.CheckPassword(password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return s.issue(u)
}

// ForgotPassword always reports success. A token is only generated, stored
// and published for delivery when the email belongs to a user.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (*ForgotResult, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrEmailRequired
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, core.ErrNotFound) {
		return &ForgotResult{OK: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("forgot password: %w", err)
	}

	token, err := auth.GenerateResetToken()
	if err != nil {
		return nil, err
	}
	expiry := s.now().UTC().Add(s.cfg.ResetTokenTTL)
	if err := s.users.SetResetToken(ctx, u.ID, token, expiry); err != nil {
		return nil, fmt.Errorf("forgot password: %w", err)
	}

	publish(ctx, s.logger, s.events, amqp.NewPasswordResetEvent(u.ID, u.Email, u.Name, token, expiry))
	s.logger.InfoContext(ctx, "Password reset requested", log.FieldUserID, u.ID)

	res := &ForgotResult{OK: true}
	if s.cfg.ExposeResetToken {
		res.Token = token
	}
	return res, nil
}

func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" || newPassword == "" {
		return ErrResetFieldsRequired
	}

	u, err := s.users.GetUserByResetToken(ctx, token)
	if errors.Is(err, core.ErrNotFound) {
		return ErrInvalidResetToken
	}
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	if !u.ResetTokenValid(s.now()) {
		return ErrResetTokenExpired
	}

	if err := s.setPassword(ctx, u.ID, newPassword); err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	s.logger.InfoContext(ctx, "Password reset", log.FieldUserID, u.ID)
	return nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID int64, currentPassword, newPassword string) error {
	if currentPassword == "" || newPassword == "" {
		return core.ErrMissingFields
	}

	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	if !auth.CheckPassword(currentPassword, u.PasswordHash) {
		return ErrWrongPassword
	}

	if err := s.setPassword(ctx, u.ID, newPassword); err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	s.logger.InfoContext(ctx, "Password changed", log.FieldUserID, u.ID)
	return nil
}

// Me returns the public record of the authenticated user.
func (s *AuthService) Me(ctx context.Context, userID int64) (core.PublicUser, error) {
	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return core.PublicUser{}, err
	}
	return u.Public(), nil
}

func (s *AuthService) setPassword(ctx context.Context, userID int64, password string) error {
	hash, err := auth.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, userID, hash)
}

func (s *AuthService) issue(u *core.User) (*AuthResult, error) {
	token, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, User: u.Public()}, nil
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = auth.HashPassword("not-a-real-password", s.cfg.BcryptCost)
	})
	return s.dummyHash
}
