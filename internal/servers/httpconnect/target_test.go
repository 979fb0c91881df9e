package httpconnect

import "testing"

func TestResolveConnectTargetRequiresPort(t *testing.T) {
	if _, err := resolveConnectTarget("example.com"); err == nil {
		t.Fatalf("expected missing port to fail")
	}
	rt, err := resolveConnectTarget("example.com:443")
	if err != nil {
		t.Fatalf("resolveConnectTarget: %v", err)
	}
	if rt.addr.Port != 443 || rt.addr.Domain != "example.com" {
		t.Fatalf("unexpected target: %+v", rt.addr)
	}
}

func TestResolveForwardTargetFromAbsoluteURI(t *testing.T) {
	rt, err := resolveForwardTarget("http://example.com/path?q=1", nil)
	if err != nil {
		t.Fatalf("resolveForwardTarget: %v", err)
	}
	if rt.addr.Port != 80 || rt.addr.Domain != "example.com" {
		t.Fatalf("unexpected target: %+v", rt.addr)
	}
	if rt.outboundURI != "http://example.com/path?q=1" {
		t.Fatalf("expected absolute URI forwarded unchanged, got %q", rt.outboundURI)
	}
}

func TestResolveForwardTargetRewritesOriginForm(t *testing.T) {
	headers := []headerField{{Name: "Host", Value: "example.com:8080"}}
	rt, err := resolveForwardTarget("/path?q=1", headers)
	if err != nil {
		t.Fatalf("resolveForwardTarget: %v", err)
	}
	if rt.addr.Port != 8080 {
		t.Fatalf("expected port from Host header, got %d", rt.addr.Port)
	}
	if rt.outboundURI != "http://example.com:8080/path?q=1" {
		t.Fatalf("expected absolute-form rewrite, got %q", rt.outboundURI)
	}
}

func TestResolveForwardTargetMissingHostFails(t *testing.T) {
	if _, err := resolveForwardTarget("/path", nil); err == nil {
		t.Fatalf("expected missing Host header to fail")
	}
}
