package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"wordloom/internal/config"
	"wordloom/internal/guardrails/deviation"
	"wordloom/internal/logging"
	"wordloom/internal/platform"
	"wordloom/internal/types"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP submission surface",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
}

func runServe(cmd *cobra.Command, args []string) error {
	reg := prometheus.NewRegistry()
	svc, err := buildService(reg)
	if err != nil {
		return err
	}
	defer svc.Close()
	svc.StartMaintenance(time.Hour)

	// Hot-reload tunables (parallelism, retries, thresholds) on config
	// file changes while the server runs.
	if configPath != "" {
		watcher, err := config.NewWatcher(configPath)
		if err != nil {
			return err
		}
		defer watcher.Close()
		watcher.Subscribe(svc.ApplyConfig)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/submit", handleSubmit(svc))
	mux.HandleFunc("/v1/workflows/", handleWorkflow(svc))
	mux.HandleFunc("/v1/objectives", handleObjectives(svc))
	mux.HandleFunc("/v1/workers", handleWorkers(svc))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              serveAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logging.Platform("listening on %s", serveAddr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func handleSubmit(svc *platform.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		id, err := svc.SubmitJSON(r.Context(), body)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"workflow_id": id})
	}
}

// handleWorkflow serves GET /v1/workflows/{id} and POST /v1/workflows/{id}/cancel.
func handleWorkflow(svc *platform.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/v1/workflows/")
		if id, ok := strings.CutSuffix(rest, "/cancel"); ok && r.Method == http.MethodPost {
			transitioned, err := svc.Cancel(id)
			if err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]bool{"cancelled": transitioned})
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		view, err := svc.Status(rest)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func handleObjectives(svc *platform.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var set deviation.ObjectiveSet
		if err := json.NewDecoder(r.Body).Decode(&set); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := svc.RegisterObjectives(set); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleWorkers(svc *platform.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.WorkerHealth())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrWorkflowNotFound):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrInvalidRequest),
		errors.Is(err, types.ErrCyclicDependency):
		status = http.StatusBadRequest
	case errors.Is(err, types.ErrPermissionOverreach):
		status = http.StatusForbidden
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
