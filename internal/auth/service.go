package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alexjbarnes/reel-sync/internal/docstore"
	apperrors "github.com/alexjbarnes/reel-sync/internal/errors"
)

// ErrTooManyAttempts is returned by SignIn while the caller is rate limited.
var ErrTooManyAttempts = errors.New("too many failed sign-in attempts, try again later")

// Accounts is the user storage the service needs. *docstore.Store
// satisfies it.
type Accounts interface {
	CreateUser(ctx context.Context, email, passwordHash string) (docstore.User, error)
	UserByEmail(ctx context.Context, email string) (docstore.User, error)
}

// Grant is the result of a successful sign-up or sign-in.
type Grant struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service creates accounts and exchanges credentials for tokens.
type Service struct {
	accounts Accounts
	tokens   *TokenService
	limiter  *LoginLimiter
	logger   *slog.Logger
}

// NewService wires a Service.
func NewService(accounts Accounts, tokens *TokenService, logger *slog.Logger) *Service {
	return &Service{
		accounts: accounts,
		tokens:   tokens,
		limiter:  NewLoginLimiter(),
		logger:   logger,
	}
}

// Tokens returns the service's token validator.
func (s *Service) Tokens() *TokenService {
	return s.tokens
}

// SignUp creates an account and signs it in.
func (s *Service) SignUp(ctx context.Context, email, password string) (Grant, error) {
	email = docstore.NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return Grant{}, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return Grant{}, err
	}

	u, err := s.accounts.CreateUser(ctx, email, hash)
	if err != nil {
		return Grant{}, err
	}

	s.logger.Info("account created", slog.String("user_id", u.ID))

	return s.grant(u.ID, u.Email)
}

// SignIn checks credentials. Failures are counted per key (the caller's
// IP); once the limit is reached SignIn returns ErrTooManyAttempts
// without checking the password.
func (s *Service) SignIn(ctx context.Context, email, password, key string) (Grant, error) {
	if s.limiter.Blocked(key) {
		s.logger.Warn("sign-in rate limited", slog.String("ip", key))
		return Grant{}, ErrTooManyAttempts
	}

	u, err := s.accounts.UserByEmail(ctx, email)
	if err != nil && !errors.Is(err, docstore.ErrUserNotFound) {
		return Grant{}, fmt.Errorf("looking up account: %w", err)
	}

	if !CheckPassword(u.PasswordHash, password) {
		s.limiter.Fail(key)
		s.logger.Warn("sign-in failed", slog.String("ip", key))

		return Grant{}, apperrors.ErrInvalidCredentials
	}

	s.limiter.Reset(key)

	return s.grant(u.ID, u.Email)
}

func (s *Service) grant(userID, email string) (Grant, error) {
	token, expires, err := s.tokens.Issue(userID, email)
	if err != nil {
		return Grant{}, err
	}

	return Grant{UserID: userID, Email: email, Token: token, ExpiresAt: expires}, nil
}
