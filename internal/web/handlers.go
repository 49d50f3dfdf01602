package web

import (
	"encoding/json"
	"net/http"

	"github.com/JonMunkholm/eventmigrate/internal/logging"
	"github.com/JonMunkholm/eventmigrate/internal/migrate"
)

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Status string        `json:"status"`
	Phase  migrate.Phase `json:"phase"`
}

// ErrorResponse is the JSON body of error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleHealth reports liveness. A failed run still answers 200 so the
// operator can read /status; only the phase changes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, HealthResponse{Status: "ok", Phase: s.status.Snapshot().Phase})
}

// handleStatus returns the run snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.status.Snapshot())
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("encode response", "path", r.URL.Path, "error", err)
	}
}

// writeError writes a JSON error body.
func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, ErrorResponse{Error: msg})
}
