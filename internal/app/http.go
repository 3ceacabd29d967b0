package app

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"bufferqueue/pkg/httpx"
	"bufferqueue/pkg/telemetry"
)

// startHTTP builds the debug router, starts the HTTP server in a
// goroutine and returns a channel that will carry any fatal server
// error.
func (a *App) startHTTP(ctx context.Context) <-chan error {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet)
	r.HandleFunc("/statz", a.statzHandler).Methods(http.MethodGet)
	r.Handle("/metrics", telemetry.Handler()).Methods(http.MethodGet)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpx.Serve(ctx, a.eff.Config.Server.Engine, a.eff.Addr, r)
	}()
	return errCh
}

// healthzHandler handles the /healthz endpoint.
func healthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("{\"status\":\"ok\"}"))
}

// statzHandler returns a JSON snapshot of the queue and allocator
// counters.
func (a *App) statzHandler(w http.ResponseWriter, _ *http.Request) {
	out := struct {
		Queue      any    `json:"queue"`
		AllocTotal uint64 `json:"alloc_total"`
		AllocBytes uint64 `json:"alloc_bytes"`
		Version    string `json:"version"`
	}{
		Queue:      a.producer.Core().Stats(),
		AllocTotal: a.alloc.Allocs(),
		AllocBytes: a.alloc.AllocBytes(),
		Version:    a.version,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
