package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ds124wfegd/shortlink/internal/entity"
	"github.com/jmoiron/sqlx"
)

// dimensionColumns is the closed set of grouping expressions.
var dimensionColumns = map[entity.StatDimension]string{
	entity.DimensionBrowser: "c.browser",
	entity.DimensionOS:      "c.os",
	entity.DimensionDevice:  "c.device",
	entity.DimensionCountry: "i.country",
}

type ClickRepository struct {
	db *sqlx.DB
}

func NewClickRepository(db *sqlx.DB) ClickRepositoryInterface {
	return &ClickRepository{db: db}
}

func (r *ClickRepository) Add(ctx context.Context, click *entity.Click) (int64, error) {
	query := `
		INSERT INTO clicks (url_id, ip_id, ip_address, user_agent, browser, os, device)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, clicked_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		click.URLID,
		click.IPID,
		click.IPAddress,
		click.UserAgent,
		click.Browser,
		click.OS,
		click.Device,
	).Scan(&click.ID, &click.ClickedAt)
	if err != nil {
		return 0, fmt.Errorf("add click: %w", err)
	}
	return click.ID, nil
}

// FieldStats groups clicks of a link by one dimension. Empty values are
// reported as "unknown".
func (r *ClickRepository) FieldStats(ctx context.Context, urlID int64, dimension entity.StatDimension, since *time.Time) (entity.Breakdown, error) {
	column, ok := dimensionColumns[dimension]
	if !ok {
		return nil, fmt.Errorf("unsupported stat dimension %q", dimension)
	}

	query := fmt.Sprintf(`
		SELECT COALESCE(NULLIF(%s, ''), '%s') AS value,
		       COUNT(*) AS total,
		       COUNT(DISTINCT c.ip_address) AS uniq
		FROM clicks c
		LEFT JOIN ip_addresses i ON i.id = c.ip_id
		WHERE c.url_id = $1 AND ($2::timestamptz IS NULL OR c.clicked_at >= $2)
		GROUP BY 1
		ORDER BY total DESC, value
	`, column, entity.UnknownValue)

	rows := entity.Breakdown{}
	if err := r.db.SelectContext(ctx, &rows, query, urlID, since); err != nil {
		return nil, fmt.Errorf("%s stats: %w", dimension, err)
	}
	return rows, nil
}

func (r *ClickRepository) GuestStats(ctx context.Context, urlID int64, since *time.Time) (*entity.GuestStats, error) {
	query := `
		SELECT COUNT(*) AS total,
		       COUNT(DISTINCT c.ip_address) AS uniq,
		       COUNT(DISTINCT CASE WHEN i.is_proxy THEN c.ip_address END) AS proxy
		FROM clicks c
		LEFT JOIN ip_addresses i ON i.id = c.ip_id
		WHERE c.url_id = $1 AND ($2::timestamptz IS NULL OR c.clicked_at >= $2)
	`

	var stats entity.GuestStats
	if err := r.db.GetContext(ctx, &stats, query, urlID, since); err != nil {
		return nil, fmt.Errorf("guest stats: %w", err)
	}
	return &stats, nil
}
