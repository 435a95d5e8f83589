// Package enrichment resolves an IP address to geolocation and proxy data.
package enrichment

import (
	"context"
	"net/netip"

	"github.com/ds124wfegd/shortlink/internal/entity"
)

type Provider interface {
	Lookup(ctx context.Context, ip netip.Addr) (*entity.IPRecord, error)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
