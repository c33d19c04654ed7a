package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Service registers and authenticates users.
type Service struct {
	repo   *Repository
	logger *zap.Logger
	cost   int
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger, cost: bcrypt.DefaultCost}
}

// RegisterInput is a self-service signup.
type RegisterInput struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Password  string
	Role      Role
}

// Register creates a student or tutor account. Admins are provisioned with EnsureAdmin.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	role := in.Role
	if role == "" {
		role = RoleStudent
	}
	if role != RoleStudent && role != RoleTutor {
		return User{}, ErrRoleNotAllowed
	}
	return s.create(ctx, in, role)
}

// EnsureAdmin creates an admin account unless the username already exists.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) error {
	_, err := s.repo.ByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	_, err = s.create(ctx, RegisterInput{Username: username, Password: password}, RoleAdmin)
	if errors.Is(err, ErrUsernameTaken) {
		return nil
	}
	if err == nil {
		s.logger.Info("admin account created", zap.String("username", username))
	}
	return err
}

func (s *Service) create(ctx context.Context, in RegisterInput, role Role) (User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return User{}, fmt.Errorf("username and password required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	return s.repo.Insert(ctx, User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        strings.TrimSpace(in.Email),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Role:         role,
		PasswordHash: string(hash),
	})
}

// Authenticate checks a password. login may be a username or an email address.
func (s *Service) Authenticate(ctx context.Context, login, password string) (User, error) {
	var (
		u   User
		err error
	)
	if strings.Contains(login, "@") {
		u, err = s.repo.ByEmail(ctx, login)
	} else {
		u, err = s.repo.ByUsername(ctx, login)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return User{}, ErrNotFound
	}
	return s.repo.ByID(ctx, id)
}
