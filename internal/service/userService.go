package service

import (
	"context"
	"errors"
	"strings"

	"github.com/ds124wfegd/shortlink/internal/database/postgres"
	"github.com/ds124wfegd/shortlink/internal/entity"
	"github.com/sirupsen/logrus"
)

type UserServiceImpl struct {
	userRepo postgres.UserRepositoryInterface
	hasher   PasswordHasher
}

func NewUserService(userRepo postgres.UserRepositoryInterface, hasher PasswordHasher) *UserServiceImpl {
	return &UserServiceImpl{
		userRepo: userRepo,
		hasher:   hasher,
	}
}

func (s *UserServiceImpl) Register(ctx context.Context, req entity.RegisterRequest) (int64, error) {
	email := normalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)
	if name == "" || email == "" || req.Password == "" {
		return 0, entity.NewValidation("name, email and password are required")
	}

	hash, err := hashPassword(s.hasher, req.Password)
	if err != nil {
		return 0, err
	}

	id, err := s.userRepo.Create(ctx, &entity.User{Name: name, Email: email, Password: hash})
	if err != nil {
		if errors.Is(err, entity.ErrConflict) {
			return 0, entity.NewConflict("user with this email already exists")
		}
		return 0, entity.NewInternal("failed to create user", err)
	}

	logrus.WithField("user_id", id).Info("user registered")
	return id, nil
}

func (s *UserServiceImpl) Login(ctx context.Context, email, password string) (int64, error) {
	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return 0, entity.NewNotFound("user not found")
		}
		return 0, entity.NewInternal("failed to load user", err)
	}

	ok, err := s.hasher.Check(user.Password, password)
	if err != nil {
		return 0, entity.NewInternal("failed to verify password", err)
	}
	if !ok {
		return 0, entity.NewUnauthorized("invalid password")
	}
	return user.ID, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
