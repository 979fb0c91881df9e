package local

import (
	"context"
	"testing"

	"relay/internal/model"
)

func TestTCPBindAndConnectRoundTrip(t *testing.T) {
	n, err := New(nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ln, err := n.TCPBind(context.Background(), model.DomainAddr("127.0.0.1", 0))
	if err != nil {
		t.Fatalf("tcp_bind: %v", err)
	}
	defer ln.Close()

	addr, err := model.ParseAddress(ln.Addr().String())
	if err != nil {
		t.Fatalf("parse bound address: %v", err)
	}

	accepted := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
		accepted <- err
	}()

	conn, err := n.TCPConnect(context.Background(), addr)
	if err != nil {
		t.Fatalf("tcp_connect: %v", err)
	}
	conn.Close()
	if err := <-accepted; err != nil {
		t.Fatalf("accept: %v", err)
	}
}
