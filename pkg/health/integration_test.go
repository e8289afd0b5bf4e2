package health

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/go-tankwars/pkg/config"
	"github.com/opd-ai/go-tankwars/pkg/engine"
	"github.com/opd-ai/go-tankwars/pkg/logging"
	"github.com/opd-ai/go-tankwars/pkg/network"
	"github.com/opd-ai/go-tankwars/pkg/replay"
)

func readiness(t *testing.T, hc *HealthChecker) (int, HealthStatus) {
	t.Helper()
	w := httptest.NewRecorder()
	hc.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/ready", nil))

	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	return w.Code, status
}

// TestHealthCheckIntegration wires the checks to a real runner, websocket
// server and replay store.
func TestHealthCheckIntegration(t *testing.T) {
	logger := logging.NewLoggerWithWriter(io.Discard, slog.LevelError)

	cfg := config.DefaultConfig()
	cfg.Network.ListenAddress = "127.0.0.1:0"

	store, err := replay.Open(filepath.Join(t.TempDir(), "replay.db"), replay.WithLogger(logger))
	require.NoError(t, err)

	server := network.NewGameServer(cfg.Network, logger)
	runner := engine.NewRunner(server, store.JournalFactory(), nil, logger)
	match, err := runner.Create(cfg)
	require.NoError(t, err)
	server.Attach(match)

	hc := NewHealthChecker()
	hc.AddCheck(NewRunnerHealthCheck(runner, time.Second))
	hc.AddCheck(NewNetworkHealthCheck(server.Addr))
	hc.AddCheck(NewReplayHealthCheck(store))

	t.Run("not ready before start", func(t *testing.T) {
		code, status := readiness(t, hc)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "unhealthy", status.Checks["runner"].Status)
		assert.Equal(t, "unhealthy", status.Checks["network"].Status)
		assert.Equal(t, "healthy", status.Checks["replay"].Status)
	})

	require.NoError(t, server.Start())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	t.Run("ready once ticking", func(t *testing.T) {
		require.Eventually(t, func() bool {
			return !runner.LastTick().IsZero()
		}, 2*time.Second, 10*time.Millisecond)

		code, status := readiness(t, hc)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "healthy", status.Status)
	})

	cancel()
	require.NoError(t, <-done)
	shutdownCtx, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()
	require.NoError(t, server.Shutdown(shutdownCtx))

	t.Run("not ready after shutdown", func(t *testing.T) {
		require.NoError(t, store.Close())

		code, status := readiness(t, hc)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "unhealthy", status.Checks["runner"].Status)
		assert.Equal(t, "unhealthy", status.Checks["replay"].Status)
	})
}
