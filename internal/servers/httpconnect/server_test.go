package httpconnect

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"relay/internal/nets/local"
)

// startOrigin runs a minimal HTTP/1.1 origin server on loopback that always
// replies 200 with a fixed body, for the forward-path test below.
func startOrigin(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen origin: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				br := bufio.NewReader(conn)
				if _, _, _, err := readRequestLine(br); err != nil {
					return
				}
				if _, err := readHeaders(br); err != nil {
					return
				}
				body := "hello"
				conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body))
			}()
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

func newTestServer(t *testing.T, opt Opt) (addr string, stop func()) {
	t.Helper()
	listenNet, err := local.New(nil)
	if err != nil {
		t.Fatalf("local.New: %v", err)
	}
	rawOpt, _ := json.Marshal(opt)
	handle, err := New(context.Background(), rawOpt, listenNet, listenNet)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv := handle.(*Server)
	t.Cleanup(func() { srv.Stop(context.Background()) })
	return srv.ln.Addr().String(), func() { srv.Stop(context.Background()) }
}

func TestForwardRequestReachesOrigin(t *testing.T) {
	originAddr := startOrigin(t)
	proxyAddr, _ := newTestServer(t, Opt{Bind: "127.0.0.1:0"})

	conn, err := net.DialTimeout("tcp", proxyAddr, time.Second)
	if err != nil {
		t.Fatalf("dial proxy: %v", err)
	}
	defer conn.Close()

	req := "GET http://" + originAddr + "/ HTTP/1.1\r\nHost: " + originAddr + "\r\nConnection: close\r\n\r\n"
	if _, err := conn.Write([]byte(req)); err != nil {
		t.Fatalf("write request: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	out, err := io.ReadAll(conn)
	if err != nil && !strings.Contains(err.Error(), "EOF") {
		t.Fatalf("read response: %v", err)
	}
	if !strings.Contains(string(out), "200") || !strings.Contains(string(out), "hello") {
		t.Fatalf("expected 200 with body hello, got %q", out)
	}
}

func TestAuthRequiredRejectsMissingCredentials(t *testing.T) {
	proxyAddr, _ := newTestServer(t, Opt{Bind: "127.0.0.1:0", Username: "u", Password: "p"})

	conn, err := net.DialTimeout("tcp", proxyAddr, time.Second)
	if err != nil {
		t.Fatalf("dial proxy: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("GET http://example.com/ HTTP/1.1\r\nHost: example.com\r\n\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	br := bufio.NewReader(conn)
	proto, code, _, err := readStatusLine(br)
	if err != nil {
		t.Fatalf("read status: %v", err)
	}
	if proto == "" || code != 407 {
		t.Fatalf("expected 407, got %d", code)
	}
}

func TestConnectTunnelsBytesBothWays(t *testing.T) {
	originAddr := startOrigin(t)
	proxyAddr, _ := newTestServer(t, Opt{Bind: "127.0.0.1:0"})

	conn, err := net.DialTimeout("tcp", proxyAddr, time.Second)
	if err != nil {
		t.Fatalf("dial proxy: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("CONNECT " + originAddr + " HTTP/1.1\r\n\r\n")); err != nil {
		t.Fatalf("write connect: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	br := bufio.NewReader(conn)
	_, code, _, err := readStatusLine(br)
	if err != nil {
		t.Fatalf("read connect response: %v", err)
	}
	if code != 200 {
		t.Fatalf("expected 200 Connection Established, got %d", code)
	}
	if _, err := readHeaders(br); err != nil {
		t.Fatalf("read connect headers: %v", err)
	}

	req := "GET / HTTP/1.1\r\nHost: " + originAddr + "\r\nConnection: close\r\n\r\n"
	if _, err := conn.Write([]byte(req)); err != nil {
		t.Fatalf("write tunneled request: %v", err)
	}
	out, _ := io.ReadAll(br)
	if !strings.Contains(string(out), "hello") {
		t.Fatalf("expected tunneled body, got %q", out)
	}
}
