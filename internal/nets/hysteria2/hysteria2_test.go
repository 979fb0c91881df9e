package hysteria2

import (
	"context"
	"encoding/json"
	"testing"

	"relay/internal/model"
)

func TestNewRequiresServerAndPort(t *testing.T) {
	opt, _ := json.Marshal(Opt{})
	if _, err := New(opt); err == nil {
		t.Fatalf("expected missing server/port to fail")
	}
}

func TestCapabilitiesReportNotImplemented(t *testing.T) {
	opt, _ := json.Marshal(Opt{Server: "example.com", Port: 443, Password: "secret"})
	n, err := New(opt)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := n.TCPConnect(context.Background(), model.Address{}); err == nil {
		t.Fatalf("expected tcp_connect to be not implemented")
	}
}
