// Package geo resolves request source addresses to a country code and
// a best-effort default timezone.
package geo

import (
	"errors"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Resolver maps an IP address to an ISO 3166-1 country code.
type Resolver interface {
	CountryCode(ip string) (string, error)
	Close() error
}

// MaxMindResolver resolves countries from a MaxMind database file.
type MaxMindResolver struct {
	reader *geoip2.Reader
}

// NewMaxMindResolver opens the database at path.
func NewMaxMindResolver(path string) (*MaxMindResolver, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &MaxMindResolver{reader: reader}, nil
}

// CountryCode returns the ISO country code for the address, or an
// error when the address is invalid or unknown to the database.
func (r *MaxMindResolver) CountryCode(ip string) (string, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", errors.New("invalid ip address")
	}

	country, err := r.reader.Country(parsed)
	if err != nil {
		return "", err
	}
	if country.Country.IsoCode == "" {
		return "", errors.New("country not found")
	}
	return country.Country.IsoCode, nil
}

// Close releases the underlying database reader.
func (r *MaxMindResolver) Close() error {
	return r.reader.Close()
}
