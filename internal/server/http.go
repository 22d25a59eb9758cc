package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/hashicorp/go-metrics"
)

const httpLogPrefix = "server:http"

// healthCheck reports one dependency's state.
type healthCheck func(ctx context.Context) error

type healthOutput struct {
	Status    string          `json:"status"`
	Role      Role            `json:"role"`
	Checks    map[string]bool `json:"checks"`
	Errors    []string        `json:"errors,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth())
	mux.HandleFunc("/ready", s.handleReady())
	mux.HandleFunc("/metrics", s.handleMetrics())
	return mux
}

// handleHealth runs every registered check under HEALTH_CHECK_TIMEOUT.
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
		defer cancel()

		out := healthOutput{
			Status:    "healthy",
			Role:      s.role,
			Checks:    make(map[string]bool, len(s.checks)),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		names := make([]string, 0, len(s.checks))
		for name := range s.checks {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			err := s.checks[name](ctx)
			out.Checks[name] = err == nil
			if err != nil {
				out.Status = "unhealthy"
				out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", name, err))
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if out.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(out)
	}
}

// handleReady answers 200 once the channel is connected.
func (s *Server) handleReady() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := s.link.status()
		w.Header().Set("Content-Type", "application/json")
		if !st.Connected {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(st)
	}
}

// handleMetrics serves the in-memory sink's current intervals.
func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.sink == nil {
			http.Error(w, "metrics disabled", http.StatusNotFound)
			return
		}
		summary, err := s.sink.DisplayMetrics(w, r)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - metrics summary: %v", httpLogPrefix, err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(summary)
	}
}

// newMetrics installs an in-memory sink as the go-metrics global.
func newMetrics(service string, interval time.Duration) (*metrics.InmemSink, *metrics.Metrics, error) {
	sink := metrics.NewInmemSink(interval, 6*interval)
	conf := metrics.DefaultConfig(service)
	conf.EnableHostname = false
	conf.ProfileInterval = interval
	m, err := metrics.NewGlobal(conf, sink)
	if err != nil {
		return nil, nil, fmt.Errorf("%s - failed to start metrics: %w", httpLogPrefix, err)
	}
	return sink, m, nil
}
