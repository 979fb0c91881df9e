package controlplane

import (
	"encoding/json"
	"net/http"

	"relay/internal/relayerr"
)

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeErr maps err to its HTTP status via relayerr.StatusCode and writes
// the standard {"error": msg} body (§6, §7).
func writeErr(w http.ResponseWriter, err error) {
	writeError(w, relayerr.StatusCode(err), err.Error())
}
