package entity

import "time"

type Click struct {
	ID        int64     `json:"id" db:"id"`
	URLID     int64     `json:"url_id" db:"url_id"`
	ClickedAt time.Time `json:"clicked_at" db:"clicked_at"`
	IPID      *int64    `json:"ip_id,omitempty" db:"ip_id"`
	IPAddress *string   `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent string    `json:"user_agent" db:"user_agent"`
	Browser   string    `json:"browser" db:"browser"`
	OS        string    `json:"os" db:"os"`
	Device    string    `json:"device" db:"device"`
}

// ClickInput is what the redirect path hands to the click recorder.
type ClickInput struct {
	URLID     int64
	ShortCode string
	IPID      *int64
	IP        string
	UserAgent string
}

// ClickEvent is published to the click stream after a click is stored.
type ClickEvent struct {
	ClickID   int64     `json:"click_id"`
	URLID     int64     `json:"url_id"`
	ShortCode string    `json:"short_code"`
	IP        string    `json:"ip,omitempty"`
	Browser   string    `json:"browser"`
	OS        string    `json:"os"`
	Device    string    `json:"device"`
	ClickedAt time.Time `json:"clicked_at"`
}

const MaxUserAgentLength = 1024
