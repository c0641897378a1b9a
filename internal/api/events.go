package api

import (
	"net/http"
	"strconv"

	"github.com/I-Rosenzweig/Radar-GUI-System-with-Object-Detection/internal/httputil"
)

// parseLimit reads ?limit=, defaulting to defaultEventLimit and capped at
// maxEventLimit.
func parseLimit(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultEventLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}
	return min(n, maxEventLimit), true
}

// eventsPreamble handles the checks shared by the event routes.
func (s *Server) eventsPreamble(w http.ResponseWriter, r *http.Request) (int, bool) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return 0, false
	}
	if s.db == nil {
		httputil.ServiceUnavailable(w, "event log disabled")
		return 0, false
	}
	limit, ok := parseLimit(r)
	if !ok {
		httputil.BadRequest(w, "limit must be a positive integer")
		return 0, false
	}
	return limit, true
}

func (s *Server) listIntrusions(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.eventsPreamble(w, r)
	if !ok {
		return
	}
	events, err := s.db.RecentIntrusions(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to retrieve intrusions")
		return
	}
	counts, err := s.db.IntrusionCounts(r.Context())
	if err != nil {
		httputil.InternalServerError(w, "failed to count intrusions")
		return
	}
	httputil.WriteJSONOK(w, map[string]any{
		"intrusions": events,
		"counts":     counts,
	})
}

func (s *Server) listLinkEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.eventsPreamble(w, r)
	if !ok {
		return
	}
	events, err := s.db.RecentLinkEvents(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to retrieve link events")
		return
	}
	httputil.WriteJSONOK(w, map[string]any{"links": events})
}

func (s *Server) listCommands(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.eventsPreamble(w, r)
	if !ok {
		return
	}
	events, err := s.db.RecentCommands(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to retrieve commands")
		return
	}
	httputil.WriteJSONOK(w, map[string]any{"commands": events})
}
