package serve

import (
	"context"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/yanthraa/chat-memory/internal/config"
)

// startManagementServer serves health, readiness, and metrics on a dedicated
// port so the main listener can stay behind an authenticating proxy.
// Returns the bound port and a close function.
func startManagementServer(cfg config.ListenerConfig, handler http.Handler) (int, func(context.Context) error, error) {
	running, err := StartHTTPServer(cfg, handler)
	if err != nil {
		return 0, nil, err
	}

	log.Info("Management server listening",
		"port", running.Port,
		"tls", cfg.TLSCertFile != "",
	)
	return running.Port, running.Close, nil
}
