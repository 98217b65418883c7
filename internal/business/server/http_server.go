package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/samber/oops"

	slogctx "github.com/veqryn/slog-context"

	"github.com/hoppermq/streamly-console/internal/config"
)

const readHeaderTimeout = 10 * time.Second

// createHTTPServer creates the console http server using the given config
func createHTTPServer(_ context.Context, cfg *config.Config, deps Deps) (*http.Server, error) {
	handler, err := newHandler(cfg, deps)
	if err != nil {
		return nil, oops.In("HTTP Server").Wrapf(err, "creating the console handler")
	}

	return &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}, nil
}

// StartHTTPServer serves the console until ctx is done, then shuts the server
// down within the configured timeout.
func StartHTTPServer(ctx context.Context, cfg *config.Config, deps Deps) error {
	if err := initMeters(ctx, cfg); err != nil {
		return err
	}

	server, err := createHTTPServer(ctx, cfg, deps)
	if err != nil {
		return err
	}

	listener, err := listen(ctx, server.Addr)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed to create a listener")
	}

	serveErr := make(chan error, 1)
	go func() {
		slogctx.Info(ctx, "Serving the console", "address", listener.Addr().String())
		serveErr <- server.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return oops.In("HTTP Server").
				WithContext(ctx).
				Wrapf(err, "Failed to serve the console")
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownRelease := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer shutdownRelease()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed shutting down HTTP server")
	}

	slogctx.Info(ctx, "Completed graceful shutdown of HTTP server")

	return nil
}

// listen binds addr. A unix socket left over by a previous process is
// replaced.
func listen(ctx context.Context, addr string) (net.Listener, error) {
	network, address := splitNetwork(addr)
	if network == "unix" {
		if err := os.Remove(address); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	return new(net.ListenConfig).Listen(ctx, network, address)
}

// splitNetwork parses addresses of the form network://address. Anything else
// is a tcp address.
func splitNetwork(addr string) (string, string) {
	network, address, ok := strings.Cut(addr, "://")
	if !ok || network == "" {
		return "tcp", addr
	}

	return network, address
}
