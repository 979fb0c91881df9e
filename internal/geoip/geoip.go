// Package geoip implements the rule net's (C9) GeoLookup collaborator
// against a MaxMind-format country database.
package geoip

import (
	"net"
	"net/netip"

	"github.com/oschwald/maxminddb-golang/v2"

	"relay/internal/nets/rule"
)

// countryRecord is the subset of a GeoLite2-Country/GeoIP2-Country record
// this lookup needs.
type countryRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

// DB wraps an open MaxMind database, satisfying rule.GeoLookup.
type DB struct {
	reader *maxminddb.Reader
}

var _ rule.GeoLookup = (*DB)(nil)

// Open memory-maps the MaxMind database at path.
func Open(path string) (*DB, error) {
	r, err := maxminddb.Open(path)
	if err != nil {
		return nil, err
	}
	return &DB{reader: r}, nil
}

// Close releases the database's memory mapping.
func (d *DB) Close() error { return d.reader.Close() }

// Country resolves ip to its ISO country code. Absent or malformed entries
// report ok=false rather than an error, matching §4.9's "no match" path for
// a geoip matcher whose lookup comes up empty.
func (d *DB) Country(ip net.IP) (string, bool) {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return "", false
	}
	addr = addr.Unmap()

	var rec countryRecord
	result := d.reader.Lookup(addr)
	if err := result.Decode(&rec); err != nil || rec.Country.ISOCode == "" {
		return "", false
	}
	return rec.Country.ISOCode, true
}
