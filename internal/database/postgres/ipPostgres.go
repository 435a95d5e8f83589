package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ds124wfegd/shortlink/internal/entity"
	"github.com/jmoiron/sqlx"
)

type IPRepository struct {
	db *sqlx.DB
}

func NewIPRepository(db *sqlx.DB) IPRepositoryInterface {
	return &IPRepository{db: db}
}

func (r *IPRepository) FetchByAddress(ctx context.Context, ip string) (*entity.IPRecord, error) {
	query := `
		SELECT id, host(ip_address) AS ip_address, timezone, provider, country, region, city,
		       latitude, longitude, is_proxy
		FROM ip_addresses
		WHERE ip_address = $1::inet
	`

	var record entity.IPRecord
	if err := r.db.GetContext(ctx, &record, query, ip); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrNotFound
		}
		return nil, fmt.Errorf("fetch ip %s: %w", ip, err)
	}
	return &record, nil
}

// Add inserts the record unless the address is already known; concurrent
// first sightings of one address leave a single row.
func (r *IPRepository) Add(ctx context.Context, record *entity.IPRecord) error {
	query := `
		INSERT INTO ip_addresses (ip_address, timezone, provider, country, region, city, latitude, longitude, is_proxy)
		VALUES (:ip_address, :timezone, :provider, :country, :region, :city, :latitude, :longitude, :is_proxy)
		ON CONFLICT (ip_address) DO NOTHING
	`

	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("add ip %s: %w", record.IPAddress, err)
	}
	return nil
}
