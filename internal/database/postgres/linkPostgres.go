package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ds124wfegd/shortlink/internal/entity"
	"github.com/jmoiron/sqlx"
)

// linkColumns maps selectable fields to their columns. Nothing outside this
// map ever reaches a query string.
var linkColumns = map[entity.LinkField]string{
	entity.LinkFieldID:          "id",
	entity.LinkFieldUserID:      "user_id",
	entity.LinkFieldOriginalURL: "original_url",
	entity.LinkFieldShortCode:   "short_code",
	entity.LinkFieldCreatedAt:   "created_at",
	entity.LinkFieldExpiresAt:   "expires_at",
	entity.LinkFieldPassword:    "password",
	entity.LinkFieldValidFrom:   "valid_from",
	entity.LinkFieldValidUntil:  "valid_until",
	entity.LinkFieldAllowProxy:  "allow_proxy",
}

var updatableLinkColumns = map[string]string{
	entity.UpdateOriginalURL: "original_url",
	entity.UpdateShortCode:   "short_code",
	entity.UpdatePassword:    "password",
	entity.UpdateValidFrom:   "valid_from",
	entity.UpdateValidUntil:  "valid_until",
	entity.UpdateExpiresAt:   "expires_at",
	entity.UpdateAllowProxy:  "allow_proxy",
}

var linkConstraints = map[string]error{
	"urls_short_code_key":           entity.ErrShortCodeTaken,
	"urls_user_id_original_url_key": entity.ErrDuplicateURL,
}

const linkSelectAll = `id, user_id, original_url, short_code, created_at, expires_at, password, valid_from, valid_until, allow_proxy`

type LinkRepository struct {
	db *sqlx.DB
}

func NewLinkRepository(db *sqlx.DB) LinkRepositoryInterface {
	return &LinkRepository{db: db}
}

func (r *LinkRepository) Exists(ctx context.Context, shortCode string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM urls WHERE short_code = $1)`
	if err := r.db.GetContext(ctx, &exists, query, shortCode); err != nil {
		return false, fmt.Errorf("check short code: %w", err)
	}
	return exists, nil
}

func (r *LinkRepository) ExistsForOwner(ctx context.Context, userID int64, originalURL string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM urls WHERE user_id = $1 AND original_url = $2)`
	if err := r.db.GetContext(ctx, &exists, query, userID, originalURL); err != nil {
		return false, fmt.Errorf("check owner url: %w", err)
	}
	return exists, nil
}

func (r *LinkRepository) Create(ctx context.Context, link *entity.Link) (int64, error) {
	query := `
		INSERT INTO urls (user_id, original_url, short_code, expires_at, password, valid_from, valid_until, allow_proxy)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	err := r.db.QueryRowxContext(ctx, query,
		link.UserID,
		link.OriginalURL,
		link.ShortCode,
		link.ExpiresAt,
		link.Password,
		link.ValidFrom,
		link.ValidUntil,
		link.AllowProxy,
	).Scan(&link.ID, &link.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("create link: %w", mapUniqueViolation(err, linkConstraints))
	}
	return link.ID, nil
}

// FetchByShortCode loads the requested fields only. Unknown fields are
// ignored and an empty list selects every column.
func (r *LinkRepository) FetchByShortCode(ctx context.Context, shortCode string, fields ...entity.LinkField) (*entity.Link, error) {
	columns := selectLinkColumns(fields)
	query := `SELECT ` + columns + ` FROM urls WHERE short_code = $1`

	var link entity.Link
	if err := r.db.GetContext(ctx, &link, query, shortCode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entity.ErrNotFound
		}
		return nil, fmt.Errorf("fetch link %q: %w", shortCode, err)
	}
	return &link, nil
}

func selectLinkColumns(fields []entity.LinkField) string {
	seen := make(map[string]bool, len(fields))
	columns := make([]string, 0, len(fields))
	for _, f := range fields {
		col, ok := linkColumns[f]
		if !ok || seen[col] {
			continue
		}
		seen[col] = true
		columns = append(columns, col)
	}
	if len(columns) == 0 {
		return linkSelectAll
	}
	return strings.Join(columns, ", ")
}

func (r *LinkRepository) ListByOwner(ctx context.Context, userID int64) ([]entity.Link, error) {
	query := `SELECT ` + linkSelectAll + ` FROM urls WHERE user_id = $1 ORDER BY created_at DESC, id DESC`

	links := []entity.Link{}
	if err := r.db.SelectContext(ctx, &links, query, userID); err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	return links, nil
}

func (r *LinkRepository) DeleteByShortCode(ctx context.Context, shortCode string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM urls WHERE short_code = $1`, shortCode)
	if err != nil {
		return fmt.Errorf("delete link: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return entity.ErrNotFound
	}
	return nil
}

func (r *LinkRepository) DeleteAllByOwner(ctx context.Context, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM urls WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("delete links: %w", err)
	}
	return res.RowsAffected()
}

// UpdateFields sets only allow-listed columns. A map with nothing
// allow-listed is a no-op.
func (r *LinkRepository) UpdateFields(ctx context.Context, shortCode string, fields map[string]any) error {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if _, ok := updatableLinkColumns[k]; ok {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)

	sets := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys)+1)
	for i, k := range keys {
		sets = append(sets, fmt.Sprintf("%s = $%d", updatableLinkColumns[k], i+1))
		args = append(args, fields[k])
	}
	args = append(args, shortCode)

	query := fmt.Sprintf(`UPDATE urls SET %s WHERE short_code = $%d`, strings.Join(sets, ", "), len(args))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update link: %w", mapUniqueViolation(err, linkConstraints))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return entity.ErrNotFound
	}
	return nil
}
