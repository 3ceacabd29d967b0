// Package httpx serves an http.Handler over a selectable engine. The
// debug surface is tiny, so both engines wrap the same mux: net/http is
// the default, fasthttp is available for deployments that already
// standardize on it.
package httpx

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Engine names accepted by Serve.
const (
	EngineNetHTTP  = "nethttp"
	EngineFastHTTP = "fasthttp"
)

const shutdownGrace = 5 * time.Second

// Serve runs handler on addr with the named engine until ctx is
// canceled, then shuts down gracefully. An empty engine selects
// net/http. The returned error is the server's fatal error, nil on
// clean shutdown.
func Serve(ctx context.Context, engine, addr string, handler http.Handler) error {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", EngineNetHTTP:
		return serveNetHTTP(ctx, addr, handler)
	case EngineFastHTTP:
		return serveFastHTTP(ctx, addr, handler)
	}
	return fmt.Errorf("httpx: unknown engine %q", engine)
}

func serveNetHTTP(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = srv.Shutdown(sctx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func serveFastHTTP(ctx context.Context, addr string, handler http.Handler) error {
	srv := &fasthttp.Server{Handler: fasthttpadaptor.NewFastHTTPHandler(handler)}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(addr) }()

	select {
	case <-ctx.Done():
		_ = srv.Shutdown()
		return nil
	case err := <-errCh:
		return err
	}
}
