package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/ds124wfegd/shortlink/internal/entity"
	"github.com/lib/pq"
)

type LinkRepositoryInterface interface {
	Exists(ctx context.Context, shortCode string) (bool, error)
	ExistsForOwner(ctx context.Context, userID int64, originalURL string) (bool, error)
	Create(ctx context.Context, link *entity.Link) (int64, error)
	FetchByShortCode(ctx context.Context, shortCode string, fields ...entity.LinkField) (*entity.Link, error)
	ListByOwner(ctx context.Context, userID int64) ([]entity.Link, error)
	DeleteByShortCode(ctx context.Context, shortCode string) error
	DeleteAllByOwner(ctx context.Context, userID int64) (int64, error)
	UpdateFields(ctx context.Context, shortCode string, fields map[string]any) error
}

type ClickRepositoryInterface interface {
	Add(ctx context.Context, click *entity.Click) (int64, error)
	FieldStats(ctx context.Context, urlID int64, dimension entity.StatDimension, since *time.Time) (entity.Breakdown, error)
	GuestStats(ctx context.Context, urlID int64, since *time.Time) (*entity.GuestStats, error)
}

type IPRepositoryInterface interface {
	FetchByAddress(ctx context.Context, ip string) (*entity.IPRecord, error)
	Add(ctx context.Context, record *entity.IPRecord) error
}

type UserRepositoryInterface interface {
	Create(ctx context.Context, user *entity.User) (int64, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
}

type APIKeyRepositoryInterface interface {
	Upsert(ctx context.Context, key *entity.APIKey) error
	Validate(ctx context.Context, keyHash string, now time.Time) (int64, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

type CacheRepository interface {
	GetLink(ctx context.Context, shortCode string) (*entity.Link, error)
	SetLink(ctx context.Context, link *entity.Link) error
	DeleteLink(ctx context.Context, shortCodes ...string) error
	GetIP(ctx context.Context, ip string) (*entity.IPRecord, error)
	SetIP(ctx context.Context, record *entity.IPRecord) error
}

const uniqueViolation = "23505"

// mapUniqueViolation turns a unique-constraint error into the sentinel
// registered for that constraint.
func mapUniqueViolation(err error, byConstraint map[string]error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return err
	}
	if sentinel, ok := byConstraint[pqErr.Constraint]; ok {
		return sentinel
	}
	return entity.ErrConflict
}
