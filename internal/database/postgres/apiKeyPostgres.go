package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ds124wfegd/shortlink/internal/entity"
	"github.com/jmoiron/sqlx"
)

type apiKeyRepository struct {
	db *sqlx.DB
}

func NewAPIKeyRepository(db *sqlx.DB) APIKeyRepositoryInterface {
	return &apiKeyRepository{db: db}
}

// Upsert keeps one key per user; regenerating replaces the previous one.
func (r *apiKeyRepository) Upsert(ctx context.Context, key *entity.APIKey) error {
	query := `
		INSERT INTO api_keys (user_id, key, created_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (user_id) DO UPDATE
		SET key = EXCLUDED.key,
		    created_at = EXCLUDED.created_at,
		    expires_at = EXCLUDED.expires_at,
		    is_active = TRUE
		RETURNING id
	`

	err := r.db.QueryRowxContext(ctx, query, key.UserID, key.KeyHash, key.CreatedAt, key.ExpiresAt).Scan(&key.ID)
	if err != nil {
		return fmt.Errorf("upsert api key: %w", mapUniqueViolation(err, nil))
	}
	key.IsActive = true
	return nil
}

// Validate returns the owner of an active, unexpired key.
func (r *apiKeyRepository) Validate(ctx context.Context, keyHash string, now time.Time) (int64, error) {
	query := `
		SELECT user_id
		FROM api_keys
		WHERE key = $1 AND is_active AND expires_at > $2
	`

	var userID int64
	if err := r.db.GetContext(ctx, &userID, query, keyHash, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, entity.ErrNotFound
		}
		return 0, fmt.Errorf("validate api key: %w", err)
	}
	return userID, nil
}

// DeactivateExpired flags keys past their expiry so they are visibly dead
// in the table, not only filtered out by Validate.
func (r *apiKeyRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE api_keys SET is_active = FALSE WHERE is_active AND expires_at <= $1`

	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("deactivate expired api keys: %w", err)
	}
	return res.RowsAffected()
}
