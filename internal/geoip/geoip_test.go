package geoip

import "testing"

func TestOpenReturnsErrorForMissingDatabase(t *testing.T) {
	if _, err := Open("/nonexistent/country.mmdb"); err == nil {
		t.Fatalf("expected an error opening a missing database")
	}
}

func TestCountryReportsNoMatchForMalformedIP(t *testing.T) {
	// A nil reader never reaches a real lookup in this codebase (Open is the
	// only constructor), so this only exercises DB's malformed-input guard:
	// an IP that fails to parse as a netip.Addr must report ok=false rather
	// than panicking the rule net that called it.
	d := &DB{}
	if _, ok := d.Country(nil); ok {
		t.Fatalf("expected no match for a nil IP")
	}
}
