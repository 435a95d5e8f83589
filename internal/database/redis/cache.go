package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ds124wfegd/shortlink/internal/entity"

	"github.com/redis/go-redis/v9"
)

const (
	linkKeyPrefix = "link:"
	ipKeyPrefix   = "ip:"

	// linkTombstone holds an invalidated key so that a resolver which read
	// the row before the change cannot write it back.
	linkTombstone = "-"
	tombstoneTTL  = 5 * time.Second
)

// cachedLink mirrors entity.Link with the password hash kept, since the
// redirect path checks it.
type cachedLink struct {
	ID          int64             `json:"id"`
	UserID      int64             `json:"user_id"`
	OriginalURL string            `json:"original_url"`
	ShortCode   string            `json:"short_code"`
	CreatedAt   time.Time         `json:"created_at"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
	Password    *string           `json:"password,omitempty"`
	ValidFrom   *entity.TimeOfDay `json:"valid_from,omitempty"`
	ValidUntil  *entity.TimeOfDay `json:"valid_until,omitempty"`
	AllowProxy  bool              `json:"allow_proxy"`
}

type CacheRepository struct {
	client  *redis.Client
	linkTTL time.Duration
	ipTTL   time.Duration
}

func NewCacheRepository(client *redis.Client, linkTTL, ipTTL time.Duration) *CacheRepository {
	return &CacheRepository{
		client:  client,
		linkTTL: linkTTL,
		ipTTL:   ipTTL,
	}
}

func (r *CacheRepository) SetLink(ctx context.Context, link *entity.Link) error {
	data, err := json.Marshal(cachedLink(*link))
	if err != nil {
		return err
	}

	// NX: never overwrite a tombstone or a fresher entry.
	return r.client.SetNX(ctx, linkKeyPrefix+link.ShortCode, data, r.linkTTL).Err()
}

func (r *CacheRepository) GetLink(ctx context.Context, shortCode string) (*entity.Link, error) {
	data, err := r.client.Get(ctx, linkKeyPrefix+shortCode).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, entity.ErrCacheMiss
		}
		return nil, err
	}
	if string(data) == linkTombstone {
		return nil, entity.ErrCacheMiss
	}

	var cached cachedLink
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}

	link := entity.Link(cached)
	return &link, nil
}

func (r *CacheRepository) DeleteLink(ctx context.Context, shortCodes ...string) error {
	if len(shortCodes) == 0 {
		return nil
	}
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, code := range shortCodes {
			pipe.Set(ctx, linkKeyPrefix+code, linkTombstone, tombstoneTTL)
		}
		return nil
	})
	return err
}

func (r *CacheRepository) SetIP(ctx context.Context, record *entity.IPRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	return r.client.Set(ctx, ipKeyPrefix+record.IPAddress, data, r.ipTTL).Err()
}

func (r *CacheRepository) GetIP(ctx context.Context, ip string) (*entity.IPRecord, error) {
	data, err := r.client.Get(ctx, ipKeyPrefix+ip).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, entity.ErrCacheMiss
		}
		return nil, err
	}

	var record entity.IPRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// NoopCache is used when Redis is disabled; every read is a miss.
type NoopCache struct{}

func (NoopCache) GetLink(context.Context, string) (*entity.Link, error) {
	return nil, entity.ErrCacheMiss
}

func (NoopCache) SetLink(context.Context, *entity.Link) error { return nil }

func (NoopCache) DeleteLink(context.Context, ...string) error { return nil }

func (NoopCache) GetIP(context.Context, string) (*entity.IPRecord, error) {
	return nil, entity.ErrCacheMiss
}

func (NoopCache) SetIP(context.Context, *entity.IPRecord) error { return nil }
