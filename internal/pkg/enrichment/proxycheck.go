package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ds124wfegd/shortlink/internal/entity"
)

const DefaultProxyCheckURL = "https://proxycheck.io/v3"

type ProxyCheck struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewProxyCheck(baseURL, apiKey string, timeout time.Duration) *ProxyCheck {
	if baseURL == "" {
		baseURL = DefaultProxyCheckURL
	}
	return &ProxyCheck{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type proxyCheckEntry struct {
	Network struct {
		Provider string `json:"provider"`
	} `json:"network"`
	Location struct {
		CountryName string    `json:"country_name"`
		RegionName  string    `json:"region_name"`
		CityName    string    `json:"city_name"`
		Timezone    string    `json:"timezone"`
		Latitude    flexFloat `json:"latitude"`
		Longitude   flexFloat `json:"longitude"`
	} `json:"location"`
	Detections struct {
		Proxy   bool `json:"proxy"`
		Hosting bool `json:"hosting"`
	} `json:"detections"`
}

// flexFloat accepts a JSON number or a numeric string. Anything else decodes
// to nil.
type flexFloat struct {
	v *float64
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(string(b), `"`)
	if raw == "" || raw == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	f.v = &v
	return nil
}

func (p *ProxyCheck) Lookup(ctx context.Context, ip netip.Addr) (*entity.IPRecord, error) {
	addr := ip.String()
	endpoint := p.baseURL + "/" + url.PathEscape(addr)
	if p.apiKey != "" {
		endpoint += "?key=" + url.QueryEscape(p.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proxycheck request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("proxycheck returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("proxycheck read: %w", err)
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("proxycheck decode: %w", err)
	}

	raw, ok := payload[addr]
	if !ok {
		var status string
		_ = json.Unmarshal(payload["status"], &status)
		return nil, fmt.Errorf("proxycheck has no entry for %s (status %q)", addr, status)
	}

	var entry proxyCheckEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("proxycheck decode entry: %w", err)
	}

	return &entity.IPRecord{
		IPAddress: addr,
		Timezone:  optional(entry.Location.Timezone),
		Provider:  optional(entry.Network.Provider),
		Country:   optional(entry.Location.CountryName),
		Region:    optional(entry.Location.RegionName),
		City:      optional(entry.Location.CityName),
		Latitude:  entry.Location.Latitude.v,
		Longitude: entry.Location.Longitude.v,
		IsProxy:   entry.Detections.Proxy || entry.Detections.Hosting,
	}, nil
}
