package controlplane

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// handleDeleteConnection implements DELETE /api/connection/{uuid}: kill one
// connection, returning whether it was found (§4.12).
func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	uuid := r.PathValue("uuid")
	ok := s.engine.Tracker().Stop(uuid)
	writeJSON(w, http.StatusOK, ok)
}

// handleDeleteAllConnections implements DELETE /api/connection: kill every
// live connection, returning the count killed.
func (s *Server) handleDeleteAllConnections(w http.ResponseWriter, r *http.Request) {
	n := s.engine.Tracker().StopAll()
	writeJSON(w, http.StatusOK, n)
}

const connectionStreamInterval = time.Second

// handleStreamConnections implements WS /api/stream/connection: 1Hz
// snapshots, the first message `{full:...}`, subsequent ones `{patch:...}`
// when patch=true, omitting per-connection detail when without_connections
// is set (§4.12).
func (s *Server) handleStreamConnections(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	patch := r.URL.Query().Get("patch") == "true"
	withoutConnections := r.URL.Query().Get("without_connections") == "true"

	ticker := time.NewTicker(connectionStreamInterval)
	defer ticker.Stop()

	first := true
	for {
		var payload interface{}
		if withoutConnections {
			payload = s.engine.Tracker().FilteredSnapshot()
		} else {
			payload = s.engine.Tracker().Snapshot()
		}
		env := map[string]interface{}{"full": payload}
		if !first && patch {
			env = map[string]interface{}{"patch": payload}
		}
		first = false

		data, err := json.Marshal(env)
		if err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}

		select {
		case <-ticker.C:
		case <-r.Context().Done():
			return
		}
	}
}

// handleStreamLogs implements WS /api/stream/logs: a lossy broadcast of log
// bytes, slow consumers drop frames rather than stall the producer.
func (s *Server) handleStreamLogs(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := s.logs.subscribe()
	defer s.logs.unsubscribe(ch)

	for {
		select {
		case line, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, line); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
