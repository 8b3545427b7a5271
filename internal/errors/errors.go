package errors

import "errors"

// Client errors.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrNoSession          = errors.New("not signed in")
	ErrMovieNotFound      = errors.New("movie not found")
	ErrInvalidMovie       = errors.New("invalid movie record")
	ErrEmailTaken         = errors.New("email already registered")
	ErrForbidden          = errors.New("access to another user's favorites denied")
)

// Server/transport errors.
var (
	ErrAPIRequest  = errors.New("API request failed")
	ErrAPIResponse = errors.New("unexpected API response")
)
