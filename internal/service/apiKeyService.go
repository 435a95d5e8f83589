package service

import (
	"context"
	"errors"
	"time"

	"github.com/ds124wfegd/shortlink/internal/database/postgres"
	"github.com/ds124wfegd/shortlink/internal/entity"
	"github.com/ds124wfegd/shortlink/internal/pkg/security"
	"github.com/sirupsen/logrus"
)

const DefaultAPIKeyTTL = 30 * 24 * time.Hour

type APIKeyServiceImpl struct {
	apiKeyRepo postgres.APIKeyRepositoryInterface
	users      UserService
	clock      Clock
	ttl        time.Duration
}

func NewAPIKeyService(apiKeyRepo postgres.APIKeyRepositoryInterface, users UserService, clock Clock, ttl time.Duration) *APIKeyServiceImpl {
	if clock == nil {
		clock = time.Now
	}
	if ttl <= 0 {
		ttl = DefaultAPIKeyTTL
	}
	return &APIKeyServiceImpl{
		apiKeyRepo: apiKeyRepo,
		users:      users,
		clock:      clock,
		ttl:        ttl,
	}
}

// Generate issues a new key for the user, replacing any previous one. Only
// the digest is stored.
func (s *APIKeyServiceImpl) Generate(ctx context.Context, email, password string) (*entity.APIKeyResponse, error) {
	userID, err := s.users.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}

	key, hash, err := security.GenerateAPIKey()
	if err != nil {
		return nil, entity.NewInternal("failed to generate api key", err)
	}

	now := s.clock()
	record := &entity.APIKey{
		UserID:    userID,
		KeyHash:   hash,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.apiKeyRepo.Upsert(ctx, record); err != nil {
		return nil, entity.NewInternal("failed to store api key", err)
	}

	logrus.WithField("user_id", userID).Info("api key issued")
	s.sweepExpired(ctx, now)
	return &entity.APIKeyResponse{APIKey: key, ExpiresAt: record.ExpiresAt}, nil
}

func (s *APIKeyServiceImpl) Validate(ctx context.Context, key string) (int64, error) {
	if key == "" {
		return 0, entity.NewUnauthorized("invalid or expired api-key")
	}

	userID, err := s.apiKeyRepo.Validate(ctx, security.HashAPIKey(key), s.clock())
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return 0, entity.NewUnauthorized("invalid or expired api-key")
		}
		return 0, entity.NewInternal("failed to validate api key", err)
	}
	return userID, nil
}

// sweepExpired marks keys past their expiry inactive. It piggybacks on key
// issuance so no scheduler is needed; Validate ignores expired keys anyway.
func (s *APIKeyServiceImpl) sweepExpired(ctx context.Context, now time.Time) {
	n, err := s.apiKeyRepo.DeactivateExpired(ctx, now)
	if err != nil {
		logrus.WithError(err).Warn("failed to deactivate expired api keys")
		return
	}
	if n > 0 {
		logrus.WithField("count", n).Info("expired api keys deactivated")
	}
}
