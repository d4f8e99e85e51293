package user

import (
	"context"
	"regexp"
	"time"

	"github.com/pkg/errors"
	"github.com/reysilvaa/rosantibike-motorent/core"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidUsername    = errors.New("username must be 3 to 64 letters, digits, dots, dashes or underscores")
	ErrInvalidPassword    = errors.New("password must be at least 8 characters")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

const minPasswordLength = 8

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{3,64}$`)

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

type Service interface {
	Create(ctx context.Context, user CreateUserRequest) (User, error)
	Get(ctx context.Context, username string) (User, error)
	Delete(ctx context.Context, username string) error
	Login(ctx context.Context, username, password string) (User, error)
	EnsureAdmin(ctx context.Context, username, password string) error
}

type service struct {
	repo Repository
}

func (s *service) Get(ctx context.Context, username string) (User, error) {
	return s.repo.Get(ctx, username)
}

func (s *service) Create(ctx context.Context, req CreateUserRequest) (User, error) {
	if !usernameIsValid(req.Username) {
		return User{}, errors.WithStack(ErrInvalidUsername)
	}
	if !passwordIsValid(req.PlainTextPassword) {
		return User{}, errors.WithStack(ErrInvalidPassword)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.PlainTextPassword), bcrypt.DefaultCost)
	if err != nil {
		return User{}, errors.WithStack(err)
	}
	user := &User{
		Username:       req.Username,
		HashedPassword: string(hash),
		IsAdmin:        req.IsAdmin,
		Created:        time.Now(),
	}
	err = s.repo.Create(ctx, user)
	if err != nil {
		return User{}, err
	}
	return *user, nil
}

func usernameIsValid(username string) bool {
	return usernamePattern.MatchString(username)
}

func passwordIsValid(password string) bool {
	return len(password) >= minPasswordLength
}

func (s *service) Delete(ctx context.Context, username string) error {
	return s.repo.Delete(ctx, username)
}

func (s *service) Login(ctx context.Context, username, password string) (User, error) {
	u, err := s.repo.Get(ctx, username)
	if errors.Is(err, core.ErrNotFound) {
		return User{}, errors.WithStack(ErrInvalidCredentials)
	}
	if err != nil {
		return User{}, err
	}

	err = bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(password))
	if err != nil {
		return User{}, errors.WithStack(ErrInvalidCredentials)
	}

	return u, nil
}

// EnsureAdmin creates the bootstrap admin account unless a user with that name already exists.
func (s *service) EnsureAdmin(ctx context.Context, username, password string) error {
	_, err := s.repo.Get(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return err
	}

	_, err = s.Create(ctx, CreateUserRequest{Username: username, IsAdmin: true, PlainTextPassword: password})
	if err != nil {
		return errors.WithMessage(err, "failed to create admin user")
	}
	log.Info().Str("username", username).Msg("created admin user")
	return nil
}

type Repository interface {
	Create(ctx context.Context, user *User, tx ...core.UpdateOptions) error
	Get(ctx context.Context, username string, tx ...core.QueryOptions) (User, error)
	Delete(ctx context.Context, username string, tx ...core.UpdateOptions) error
}
