package entity

import (
	"net/netip"
	"time"
)

type Link struct {
	ID          int64      `json:"id" db:"id"`
	UserID      int64      `json:"user_id" db:"user_id"`
	OriginalURL string     `json:"original_url" db:"original_url"`
	ShortCode   string     `json:"short_code" db:"short_code"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	Password    *string    `json:"-" db:"password"` // bcrypt hash
	ValidFrom   *TimeOfDay `json:"valid_from,omitempty" db:"valid_from"`
	ValidUntil  *TimeOfDay `json:"valid_until,omitempty" db:"valid_until"`
	AllowProxy  bool       `json:"allow_proxy" db:"allow_proxy"`
}

func (l *Link) HasPassword() bool {
	return l.Password != nil && *l.Password != ""
}

// LinkField names a column that may be selected from the urls table.
type LinkField string

const (
	LinkFieldID          LinkField = "id"
	LinkFieldUserID      LinkField = "user_id"
	LinkFieldOriginalURL LinkField = "original_url"
	LinkFieldShortCode   LinkField = "short_code"
	LinkFieldCreatedAt   LinkField = "created_at"
	LinkFieldExpiresAt   LinkField = "expires_at"
	LinkFieldPassword    LinkField = "password"
	LinkFieldValidFrom   LinkField = "valid_from"
	LinkFieldValidUntil  LinkField = "valid_until"
	LinkFieldAllowProxy  LinkField = "allow_proxy"
)

// AllLinkFields is the full column set in table order.
var AllLinkFields = []LinkField{
	LinkFieldID,
	LinkFieldUserID,
	LinkFieldOriginalURL,
	LinkFieldShortCode,
	LinkFieldCreatedAt,
	LinkFieldExpiresAt,
	LinkFieldPassword,
	LinkFieldValidFrom,
	LinkFieldValidUntil,
	LinkFieldAllowProxy,
}

// PolicyLinkFields is what the redirect path needs.
var PolicyLinkFields = []LinkField{
	LinkFieldID,
	LinkFieldUserID,
	LinkFieldOriginalURL,
	LinkFieldShortCode,
	LinkFieldExpiresAt,
	LinkFieldPassword,
	LinkFieldValidFrom,
	LinkFieldValidUntil,
	LinkFieldAllowProxy,
}

// Columns accepted by the partial update.
const (
	UpdateOriginalURL = "original_url"
	UpdateShortCode   = "short_code"
	UpdatePassword    = "password"
	UpdateValidFrom   = "valid_from"
	UpdateValidUntil  = "valid_until"
	UpdateExpiresAt   = "expires_at"
	UpdateAllowProxy  = "allow_proxy"
)

type CreateLinkRequest struct {
	URL        string     `json:"url" binding:"required"`
	ShortCode  string     `json:"short_code,omitempty"`
	Password   string     `json:"password,omitempty"`
	ValidFrom  *TimeOfDay `json:"valid_from,omitempty"`
	ValidUntil *TimeOfDay `json:"valid_until,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	AllowProxy *bool      `json:"allow_proxy,omitempty"`
}

// UpdateLinkRequest carries only the fields to change. ClearX flags reset
// an optional column to NULL.
type UpdateLinkRequest struct {
	URL           *string    `json:"url,omitempty"`
	ShortCode     *string    `json:"short_code,omitempty"`
	Password      *string    `json:"password,omitempty"`
	ValidFrom     *TimeOfDay `json:"valid_from,omitempty"`
	ValidUntil    *TimeOfDay `json:"valid_until,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	AllowProxy    *bool      `json:"allow_proxy,omitempty"`
	ClearPassword bool       `json:"clear_password,omitempty"`
	ClearWindow   bool       `json:"clear_window,omitempty"`
	ClearExpiry   bool       `json:"clear_expiry,omitempty"`
}

type LinkResponse struct {
	ShortCode   string     `json:"short_code"`
	ShortURL    string     `json:"short_url"`
	OriginalURL string     `json:"original_url"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	HasPassword bool       `json:"has_password"`
	ValidFrom   *TimeOfDay `json:"valid_from,omitempty"`
	ValidUntil  *TimeOfDay `json:"valid_until,omitempty"`
	AllowProxy  bool       `json:"allow_proxy"`
}

func NewLinkResponse(l *Link, baseURL string) LinkResponse {
	return LinkResponse{
		ShortCode:   l.ShortCode,
		ShortURL:    baseURL + "/" + l.ShortCode,
		OriginalURL: l.OriginalURL,
		CreatedAt:   l.CreatedAt,
		ExpiresAt:   l.ExpiresAt,
		HasPassword: l.HasPassword(),
		ValidFrom:   l.ValidFrom,
		ValidUntil:  l.ValidUntil,
		AllowProxy:  l.AllowProxy,
	}
}

// ResolveRequest is the input of a redirect. An empty Password means none
// was supplied.
type ResolveRequest struct {
	ShortCode string
	Password  string
	IP        netip.Addr
	UserAgent string
}
