package watcher

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

type Status struct {
	User      string     `json:"user"`
	StartedAt time.Time  `json:"started_at"`
	Checks    int64      `json:"checks"`
	Changes   int64      `json:"changes"`
	LastCheck *time.Time `json:"last_check,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	Gpa       *float64   `json:"gpa,omitempty"`
	Credits   *int64     `json:"credits,omitempty"`
}

// Status reports what the daemon has done so far. Gpa and Credits
// come from the current baseline and are unset until the first
// successful check.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Status{
		User:      s.options.User,
		StartedAt: s.stats.startedAt,
		Checks:    s.stats.checks,
		Changes:   s.stats.changes,
		LastError: s.stats.lastError,
	}
	if !s.stats.lastCheck.IsZero() {
		last := s.stats.lastCheck
		out.LastCheck = &last
	}
	if s.hasBaseline {
		gpa := s.baseline.Gpa
		credits := s.baseline.Credits
		out.Gpa = &gpa
		out.Credits = &credits
	}
	return out
}

// StatusHandler serves Status as json, meant to be mounted on the
// daemon's http server.
func (s *Service) StatusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		err := json.NewEncoder(w).Encode(s.Status())
		if err != nil {
			slog.ErrorContext(r.Context(), "encode status", "err", err)
		}
	})
}
