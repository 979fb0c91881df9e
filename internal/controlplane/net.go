package controlplane

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"relay/internal/configmgr"
	"relay/internal/model"
	"relay/internal/nets/selector"
)

type selectRequest struct {
	Selected string `json:"selected"`
}

// handlePostSelect implements POST /api/net/{name}: pick a new active child
// on a `select` net and persist the choice (§4.10, §4.12).
func (s *Server) handlePostSelect(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	handle, ok := s.engine.RunningNetHandle(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown net: "+name)
		return
	}
	sel, ok := handle.Current().(*selector.Net)
	if !ok {
		writeError(w, http.StatusBadRequest, "net is not a selector: "+name)
		return
	}
	var body selectRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "decode body: "+err.Error())
		return
	}
	if err := sel.Select(body.Selected); err != nil {
		writeErr(w, err)
		return
	}

	cfg := s.engine.Config()
	if cfg != nil {
		if err := configmgr.SaveOverride(s.engine.Overrides(), cfg.ID, name, body.Selected); err != nil {
			writeErr(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type delayResult struct {
	Connect  int64 `json:"connect"`
	Response int64 `json:"response"`
}

const defaultProbeTimeout = 5000 * time.Millisecond

// handleDelay implements GET /api/net/{name}/delay?url&timeout: connect
// through the named net, issue a GET, and report round-trip milestones, or
// null if the caller-specified budget (default 5000ms) is exceeded (§4.12,
// §5's "on timeout it returns null rather than an error").
func (s *Server) handleDelay(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	n, err := s.engine.RunningNet(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown net: "+name)
		return
	}

	rawURL := r.URL.Query().Get("url")
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		writeError(w, http.StatusBadRequest, "bad url")
		return
	}
	timeout := defaultProbeTimeout
	if ts := r.URL.Query().Get("timeout"); ts != "" {
		if ms, convErr := strconv.Atoi(ts); convErr == nil && ms > 0 {
			timeout = time.Duration(ms) * time.Millisecond
		}
	}
	port := uint16(80)
	if u.Scheme == "https" {
		port = 443
	}
	if p := u.Port(); p != "" {
		if parsed, convErr := strconv.ParseUint(p, 10, 16); convErr == nil {
			port = uint16(parsed)
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	start := time.Now()
	conn, err := n.TCPConnect(ctx, addrForProbe(u.Hostname(), port))
	if err != nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	defer conn.Close()
	connectMs := time.Since(start).Milliseconds()

	deadline, _ := ctx.Deadline()
	conn.SetDeadline(deadline)

	path := u.RequestURI()
	if path == "" {
		path = "/"
	}
	req := "GET " + path + " HTTP/1.1\r\nHost: " + u.Host + "\r\nConnection: close\r\n\r\n"
	if _, err := conn.Write([]byte(req)); err != nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	br := bufio.NewReader(conn)
	if _, err := br.ReadString('\n'); err != nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	responseMs := time.Since(start).Milliseconds()

	writeJSON(w, http.StatusOK, delayResult{Connect: connectMs, Response: responseMs})
}

func addrForProbe(host string, port uint16) model.Address {
	if ip := net.ParseIP(host); ip != nil {
		return model.SocketAddr(ip, port)
	}
	return model.DomainAddr(host, port)
}
