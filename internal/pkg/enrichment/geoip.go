package enrichment

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/ds124wfegd/shortlink/internal/entity"
	"github.com/oschwald/geoip2-golang"
)

const geoIPLanguage = "en"

// GeoIP reads an offline MaxMind City database. It never leaves the process,
// so lookups do not need the context.
type GeoIP struct {
	reader *geoip2.Reader
}

func OpenGeoIP(path string) (*GeoIP, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database %s: %w", path, err)
	}
	return &GeoIP{reader: reader}, nil
}

func (g *GeoIP) Lookup(_ context.Context, ip netip.Addr) (*entity.IPRecord, error) {
	city, err := g.reader.City(net.IP(ip.AsSlice()))
	if err != nil {
		return nil, fmt.Errorf("geoip lookup %s: %w", ip, err)
	}

	record := &entity.IPRecord{
		IPAddress: ip.String(),
		Timezone:  optional(city.Location.TimeZone),
		Provider:  optional("maxmind"),
		Country:   optional(city.Country.Names[geoIPLanguage]),
		City:      optional(city.City.Names[geoIPLanguage]),
		IsProxy:   city.Traits.IsAnonymousProxy || city.Traits.IsSatelliteProvider,
	}
	if len(city.Subdivisions) > 0 {
		record.Region = optional(city.Subdivisions[0].Names[geoIPLanguage])
	}
	if city.Location.Latitude != 0 || city.Location.Longitude != 0 {
		lat, lon := city.Location.Latitude, city.Location.Longitude
		record.Latitude, record.Longitude = &lat, &lon
	}
	return record, nil
}

func (g *GeoIP) Close() error {
	return g.reader.Close()
}
