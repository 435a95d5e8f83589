package service

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"github.com/ds124wfegd/shortlink/internal/database/postgres"
	"github.com/ds124wfegd/shortlink/internal/entity"
	"github.com/ds124wfegd/shortlink/internal/pkg/security"
)

type RedirectService interface {
	Resolve(ctx context.Context, req entity.ResolveRequest) (string, error)
}

type LinkService interface {
	Create(ctx context.Context, ownerID int64, req entity.CreateLinkRequest) (*entity.LinkResponse, error)
	List(ctx context.Context, ownerID int64) ([]entity.LinkResponse, error)
	Get(ctx context.Context, ownerID int64, shortCode string) (*entity.LinkResponse, error)
	Update(ctx context.Context, ownerID int64, shortCode string, req entity.UpdateLinkRequest) (*entity.LinkResponse, error)
	Delete(ctx context.Context, ownerID int64, shortCode string) error
	DeleteAll(ctx context.Context, ownerID int64) (int64, error)
	QRCode(ctx context.Context, ownerID int64, shortCode string, size int) ([]byte, error)
}

type StatisticService interface {
	Breakdown(ctx context.Context, ownerID int64, shortCode string, dimension entity.StatDimension, period string) (entity.Breakdown, error)
	Guests(ctx context.Context, ownerID int64, shortCode string, period string) (*entity.GuestStats, error)
}

type IPService interface {
	Lookup(ctx context.Context, ip netip.Addr) (*entity.IPRecord, error)
	Ensure(ctx context.Context, ip netip.Addr) error
	IsProxy(ctx context.Context, ip netip.Addr) (bool, error)
}

type ClickRecorder interface {
	RecordClick(ctx context.Context, in entity.ClickInput) error
}

type ClickDispatcher interface {
	Dispatch(in entity.ClickInput) bool
	Close(ctx context.Context) error
}

type UserService interface {
	Register(ctx context.Context, req entity.RegisterRequest) (int64, error)
	Login(ctx context.Context, email, password string) (int64, error)
}

type APIKeyService interface {
	Generate(ctx context.Context, email, password string) (*entity.APIKeyResponse, error)
	Validate(ctx context.Context, key string) (int64, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Check(hash, password string) (bool, error)
}

func hashPassword(hasher PasswordHasher, password string) (string, error) {
	hash, err := hasher.Hash(password)
	switch {
	case errors.Is(err, security.ErrPasswordTooLong):
		return "", entity.NewValidation("password must be at most 72 bytes")
	case err != nil:
		return "", entity.NewInternal("failed to hash password", err)
	}
	return hash, nil
}

// Clock returns the current time; tests substitute a fixed one.
type Clock func() time.Time

// ownedLink loads a link and checks that ownerID owns it.
func ownedLink(ctx context.Context, repo postgres.LinkRepositoryInterface, ownerID int64, shortCode string, fields ...entity.LinkField) (*entity.Link, error) {
	if len(fields) > 0 {
		fields = append(fields[:len(fields):len(fields)], entity.LinkFieldUserID)
	}
	link, err := repo.FetchByShortCode(ctx, shortCode, fields...)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return nil, entity.NewNotFound("link not found")
		}
		return nil, entity.NewInternal("failed to load link", err)
	}
	if link.UserID != ownerID {
		return nil, entity.NewForbidden("link belongs to another user")
	}
	return link, nil
}
