package dns

import (
	"encoding/json"
	"net"
	"testing"
)

func TestNewRequiresUpstream(t *testing.T) {
	opt, _ := json.Marshal(Opt{})
	if _, err := New(opt); err == nil {
		t.Fatalf("expected missing upstream to fail")
	}
}

func TestNewDefaultsPort(t *testing.T) {
	opt, _ := json.Marshal(Opt{Upstream: "1.1.1.1"})
	n, err := New(opt)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if n.upstream != "1.1.1.1:53" {
		t.Fatalf("expected default port 53, got %q", n.upstream)
	}
}

func TestReverseLookupReturnsRecordedDomain(t *testing.T) {
	opt, _ := json.Marshal(Opt{Upstream: "1.1.1.1:53"})
	n, err := New(opt)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	n.recordReverse(net.ParseIP("93.184.216.34"), "example.com")
	domain, ok := n.ReverseLookup(net.ParseIP("93.184.216.34"))
	if !ok || domain != "example.com" {
		t.Fatalf("expected reverse lookup to find example.com, got %q ok=%v", domain, ok)
	}
}
