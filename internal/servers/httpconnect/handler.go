package httpconnect

import (
	"bufio"
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net"
	"strconv"

	"relay/internal/model"
)

// handler carries everything one accepted connection's state machine needs:
// the server's own opt (for auth) and the outbound net each request dials
// through.
type handler struct {
	opt      Opt
	outbound model.Net
	log      *slog.Logger
}

// serve runs ReadRequest -> Auth -> ResolveTarget -> Branch once per
// accepted connection. A malformed or unauthenticated request fails the
// connection, never the listener (§4.11's invariant).
func (h *handler) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	br := bufio.NewReader(conn)
	bw := bufio.NewWriter(conn)

	method, target, proto, err := readRequestLine(br)
	if err != nil {
		return // peer closed before sending a request, or sent garbage
	}
	headers, err := readHeaders(br)
	if err != nil {
		h.log.Debug("malformed headers", "err", err)
		return
	}

	if !h.authorize(headers) {
		writeSimpleResponse(bw, proto, 407, "Proxy Authentication Required",
			[]headerField{{Name: "Proxy-Authenticate", Value: `Basic realm="HTTP Proxy"`}},
			"Proxy authentication required")
		return
	}

	var rt resolvedTarget
	if method == "CONNECT" {
		rt, err = resolveConnectTarget(target)
	} else {
		rt, err = resolveForwardTarget(target, headers)
	}
	if err != nil {
		h.log.Debug("bad target", "method", method, "target", target, "err", err)
		writeSimpleResponse(bw, proto, 400, "Bad Request", nil, "bad request")
		return
	}

	if method == "CONNECT" {
		h.handleConnect(ctx, conn, bw, proto, rt)
		return
	}
	h.handleForward(ctx, bw, proto, method, rt, headers, br)
}

// authorize reports whether the request may proceed: no credentials
// configured means every request is accepted (§4.11 step 2).
func (h *handler) authorize(headers []headerField) bool {
	if h.opt.Username == "" && h.opt.Password == "" {
		return true
	}
	got, ok := headerGet(headers, "Proxy-Authorization")
	if !ok {
		return false
	}
	const prefix = "Basic "
	if len(got) <= len(prefix) || got[:len(prefix)] != prefix {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(got[len(prefix):])
	if err != nil {
		return false
	}
	want := h.opt.Username + ":" + h.opt.Password
	return string(decoded) == want
}

func (h *handler) handleConnect(ctx context.Context, conn net.Conn, bw *bufio.Writer, proto string, rt resolvedTarget) {
	upstream, err := h.outbound.TCPConnect(ctx, rt.addr)
	if err != nil {
		h.log.Debug("connect dial failed", "target", rt.addr, "err", err)
		writeSimpleResponse(bw, proto, 502, "Bad Gateway", nil, "upstream connect failed")
		return
	}
	defer upstream.Close()

	if err := writeStatusLine(bw, proto, 200, "Connection Established"); err != nil {
		return
	}
	if _, err := bw.WriteString("\r\n"); err != nil {
		return
	}
	if err := bw.Flush(); err != nil {
		return
	}

	splice(h.log, conn, upstream)
}

// splice copies both directions of a CONNECT tunnel until either side
// closes, logging I/O errors at debug per §4.11.
func splice(log *slog.Logger, client net.Conn, upstream net.Conn) {
	done := make(chan struct{}, 2)
	go func() {
		_, err := io.Copy(upstream, client)
		if err != nil {
			log.Debug("tunnel client->upstream closed", "err", err)
		}
		done <- struct{}{}
	}()
	go func() {
		_, err := io.Copy(client, upstream)
		if err != nil {
			log.Debug("tunnel upstream->client closed", "err", err)
		}
		done <- struct{}{}
	}()
	<-done
}

func (h *handler) handleForward(ctx context.Context, bw *bufio.Writer, proto, method string, rt resolvedTarget, headers []headerField, br *bufio.Reader) {
	upstream, err := h.outbound.TCPConnect(ctx, rt.addr)
	if err != nil {
		h.log.Debug("forward dial failed", "target", rt.addr, "err", err)
		writeSimpleResponse(bw, proto, 502, "Bad Gateway", nil, "upstream connect failed")
		return
	}
	defer upstream.Close()

	reqHeaders := stripHopByHop(headers)
	uw := bufio.NewWriter(upstream)
	if _, err := uw.WriteString(method + " " + rt.outboundURI + " " + proto + "\r\n"); err != nil {
		return
	}
	if err := writeHeaders(uw, reqHeaders); err != nil {
		return
	}
	if err := uw.Flush(); err != nil {
		return
	}
	if n := requestBodyLength(headers); n > 0 {
		if _, err := io.CopyN(upstream, br, n); err != nil {
			h.log.Debug("forward request body copy failed", "err", err)
			return
		}
	}

	ur := bufio.NewReader(upstream)
	respProto, code, reason, err := readStatusLine(ur)
	if err != nil {
		h.log.Debug("upstream status line read failed", "err", err)
		writeSimpleResponse(bw, proto, 502, "Bad Gateway", nil, "upstream response malformed")
		return
	}
	respHeaders, err := readHeaders(ur)
	if err != nil {
		h.log.Debug("upstream headers read failed", "err", err)
		writeSimpleResponse(bw, proto, 502, "Bad Gateway", nil, "upstream response malformed")
		return
	}
	respHeaders = stripHopByHop(respHeaders)

	if err := writeStatusLine(bw, respProto, code, reason); err != nil {
		return
	}
	if err := writeHeaders(bw, respHeaders); err != nil {
		return
	}
	if err := bw.Flush(); err != nil {
		return
	}

	if method != "HEAD" {
		if n := requestBodyLength(respHeaders); n > 0 {
			io.CopyN(bw, ur, n)
		} else if _, ok := headerGet(respHeaders, "Content-Length"); !ok {
			io.Copy(bw, ur)
		}
		bw.Flush()
	}
}

func requestBodyLength(headers []headerField) int64 {
	v, ok := headerGet(headers, "Content-Length")
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func writeSimpleResponse(bw *bufio.Writer, proto string, code int, reason string, extra []headerField, body string) {
	if proto == "" {
		proto = "HTTP/1.1"
	}
	fields := append([]headerField{
		{Name: "Content-Type", Value: "text/plain"},
		{Name: "Content-Length", Value: strconv.Itoa(len(body))},
	}, extra...)
	if writeStatusLine(bw, proto, code, reason) != nil {
		return
	}
	if writeHeaders(bw, fields) != nil {
		return
	}
	bw.WriteString(body)
	bw.Flush()
}
