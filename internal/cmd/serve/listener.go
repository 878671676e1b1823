package serve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/yanthraa/chat-memory/internal/config"
)

// RunningServer holds a started HTTP server and its bound port.
type RunningServer struct {
	Port     int
	server   *http.Server
	listener net.Listener
}

// Close drains in-flight requests and stops the server.
func (r *RunningServer) Close(ctx context.Context) error {
	return r.server.Shutdown(ctx)
}

// StartHTTPServer binds the listener and serves the handler in the background.
// Serves TLS when both a cert and key file are configured.
func StartHTTPServer(cfg config.ListenerConfig, handler http.Handler) (*RunningServer, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to bind port %d: %w", cfg.Port, err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	go func() {
		var err error
		if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
			err = srv.ServeTLS(ln, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "err", err)
		}
	}()

	return &RunningServer{
		Port:     ln.Addr().(*net.TCPAddr).Port,
		server:   srv,
		listener: ln,
	}, nil
}
