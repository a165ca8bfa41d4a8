// Package auth provides credential hashing and the signup/login checks
// backing the dashboard session flow.
package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/vaxsight/vaxsight/internal/store"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// UserStore is the slice of the record store auth needs.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) error
	UserByName(ctx context.Context, username string) (store.User, error)
}

type Service struct {
	users UserStore
}

func New(users UserStore) *Service {
	return &Service{users: users}
}

// Signup hashes the password and stores a new user. A taken username
// surfaces as store.ErrUserExists.
func (s *Service) Signup(ctx context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.users.CreateUser(ctx, username, string(hash))
}

// Login verifies a username/password pair. Unknown users and wrong
// passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) error {
	u, err := s.users.UserByName(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
