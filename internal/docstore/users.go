package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/alexjbarnes/reel-sync/internal/errors"
	"github.com/google/uuid"
)

// User is a stored account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// NormalizeEmail lower-cases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser stores a new account with a random id. A second account for
// the same address fails with ErrEmailTaken.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (User, error) {
	u := User{
		ID:           uuid.NewString(),
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		CreatedAt:    s.now().UTC().Truncate(time.Second),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.CreatedAt.Unix(),
	)
	if isUniqueViolation(err) {
		return User{}, apperrors.ErrEmailTaken
	}

	if err != nil {
		return User{}, fmt.Errorf("inserting user: %w", err)
	}

	return u, nil
}

// UserByEmail looks up an account by address.
func (s *Store) UserByEmail(ctx context.Context, email string) (User, error) {
	return s.queryUser(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE email = ?`, NormalizeEmail(email))
}

// UserByID looks up an account by id.
func (s *Store) UserByID(ctx context.Context, id string) (User, error) {
	return s.queryUser(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE id = ?`, id)
}

func (s *Store) queryUser(ctx context.Context, query string, arg string) (User, error) {
	var (
		u       User
		created int64
	)

	err := s.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrUserNotFound
	}

	if err != nil {
		return User{}, fmt.Errorf("querying user: %w", err)
	}

	u.CreatedAt = time.Unix(created, 0).UTC()

	return u, nil
}
