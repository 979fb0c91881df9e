package controlplane

import (
	"io"
	"net/http"
)

// handleUserdata implements GET/PUT/DELETE /api/userdata[/{key}]: a
// storage-backed blob the control plane's caller owns the shape of (§4.12).
func (s *Server) handleUserdata(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	switch r.Method {
	case http.MethodGet:
		if key == "" {
			keys, err := s.userdata.Keys()
			if err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, http.StatusOK, keys)
			return
		}
		item, err := s.userdata.Get(key)
		if err != nil {
			writeErr(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(item.Content)

	case http.MethodPut:
		if key == "" {
			writeError(w, http.StatusBadRequest, "key is required")
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "read body: "+err.Error())
			return
		}
		if err := s.userdata.Set(key, body); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})

	case http.MethodDelete:
		if key == "" {
			if err := s.userdata.Clear(); err != nil {
				writeErr(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
			return
		}
		if err := s.userdata.Remove(key); err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
