package controlplane

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"relay/internal/model"
	"relay/internal/source"
)

var sensitiveFieldNames = []string{"password", "token", "secret", "key", "auth"}

func isSensitiveField(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range sensitiveFieldNames {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// redact walks a decoded JSON value, replacing any object field whose name
// looks like a credential with the literal string "***" (§4.12 GET /api/get
// "sensitive fields elided").
func redact(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			if isSensitiveField(k) {
				out[k] = "***"
				continue
			}
			out[k] = redact(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = redact(val)
		}
		return out
	default:
		return v
	}
}

func elideConfig(cfg *model.Config) map[string]interface{} {
	nets := make(map[string]interface{}, len(cfg.Net))
	for id, nd := range cfg.Net {
		var opt interface{}
		_ = json.Unmarshal(nd.Opt, &opt)
		nets[id] = map[string]interface{}{"type": nd.Type, "opt": redact(opt)}
	}
	servers := make(map[string]interface{}, len(cfg.Server))
	for id, sd := range cfg.Server {
		var opt interface{}
		_ = json.Unmarshal(sd.Opt, &opt)
		servers[id] = map[string]interface{}{
			"type": sd.Type, "listen_net": sd.ListenNet, "net": sd.Net, "opt": redact(opt),
		}
	}
	return map[string]interface{}{"id": cfg.ID, "net": nets, "server": servers}
}

func (s *Server) handleGetElided(w http.ResponseWriter, r *http.Request) {
	cfg := s.engine.Config()
	if cfg == nil {
		writeError(w, http.StatusServiceUnavailable, "no config loaded yet")
		return
	}
	writeJSON(w, http.StatusOK, elideConfig(cfg))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"state": string(s.engine.State())})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.engine.Config()
	if cfg == nil {
		writeError(w, http.StatusServiceUnavailable, "no config loaded yet")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handlePostConfig stops the engine's current source stream and restarts it
// from the import-source descriptor in the request body (§4.12).
func (s *Server) handlePostConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	var is model.ImportSource
	if err := json.Unmarshal(body, &is); err != nil {
		writeError(w, http.StatusBadRequest, "decode import source: "+err.Error())
		return
	}
	src, err := source.Build(is, s.resolveStorage)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.engine.Restart(src)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
