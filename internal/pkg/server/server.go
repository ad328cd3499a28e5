package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autopeer-io/houston/internal/pkg/metrics"
	"github.com/autopeer-io/houston/pkg/log"
	"github.com/autopeer-io/houston/pkg/options"
)

// Status is what the server exposes about the engine.
type Status interface {
	// Ready reports whether the engine can accept a mission.
	Ready() bool
	// LatestReport returns the last finished report.
	LatestReport() (any, bool)
	// Report returns the report of a recent run.
	Report(runID string) (any, bool)
	// CurrentMission returns the running mission and its live state.
	CurrentMission() (any, bool)
}

type Server struct {
	server  *http.Server
	options *options.HttpOptions
}

func NewServer(opts *options.HttpOptions, status Status) *Server {
	return &Server{
		server: &http.Server{
			Addr:              opts.Addr,
			Handler:           NewRouter(status),
			ReadHeaderTimeout: 5 * time.Second,
		},
		options: opts,
	}
}

// NewRouter returns the HTTP handler tree.
func NewRouter(status Status) *mux.Router {
	r := mux.NewRouter()

	// Basic Liveness Probe
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !status.Ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.HandleFunc("/reports/latest", func(w http.ResponseWriter, _ *http.Request) {
		v, ok := status.LatestReport()
		writeJSON(w, v, ok, "no report yet")
	}).Methods(http.MethodGet)

	r.HandleFunc("/reports/{run}", func(w http.ResponseWriter, req *http.Request) {
		v, ok := status.Report(mux.Vars(req)["run"])
		writeJSON(w, v, ok, "unknown run")
	}).Methods(http.MethodGet)

	r.HandleFunc("/missions/current", func(w http.ResponseWriter, _ *http.Request) {
		v, ok := status.CurrentMission()
		writeJSON(w, v, ok, "no mission running")
	}).Methods(http.MethodGet)

	return r
}

func writeJSON(w http.ResponseWriter, v any, ok bool, missing string) {
	if !ok {
		http.Error(w, missing, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error(err, "Failed to encode response")
	}
}

func (s *Server) Start(ctx context.Context) error {
	log.Info("Starting HTTP Server", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.options.ShutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}
