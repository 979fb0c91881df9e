package blackhole

import (
	"context"
	"testing"

	"relay/internal/model"
)

func TestWritesSucceedAndVanish(t *testing.T) {
	n := New()
	conn, err := n.TCPConnect(context.Background(), model.DomainAddr("example.com", 80))
	if err != nil {
		t.Fatalf("tcp_connect: %v", err)
	}
	defer conn.Close()
	written, err := conn.Write([]byte("hello"))
	if err != nil || written != 5 {
		t.Fatalf("expected write to succeed silently, got n=%d err=%v", written, err)
	}
}

func TestReadBlocksUntilClose(t *testing.T) {
	n := New()
	conn, _ := n.TCPConnect(context.Background(), model.Address{})
	done := make(chan error, 1)
	go func() {
		_, err := conn.Read(make([]byte, 1))
		done <- err
	}()
	conn.Close()
	if err := <-done; err == nil {
		t.Fatalf("expected read to return an error once closed")
	}
}
