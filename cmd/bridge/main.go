// Command bridge is the entry point for the RingCentral Team Messaging
// channel bridge (SPEC_FULL.md §2 C12): it loads the accounts
// configuration, builds a Bridge composition root, starts one
// subscription per enabled account, serves /metrics and /healthz, and
// waits for SIGINT/SIGTERM to drive graceful shutdown. Grounded on the
// teacher's cmd/server/main.go shutdown shape (signal.Notify + a single
// blocking receive + bounded Shutdown calls), adapted from an HTTP
// server's listener lifecycle to the bridge's per-account subscription
// supervisors.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openclaw/ringcentral-bridge/internal/bridge"
	"github.com/openclaw/ringcentral-bridge/internal/logger"
	"github.com/openclaw/ringcentral-bridge/internal/metrics"
	"github.com/openclaw/ringcentral-bridge/internal/rcconfig"
	"github.com/openclaw/ringcentral-bridge/internal/runtime"
)

func main() {
	accountsPath := flag.String("accounts", "accounts.yaml", "path to the accounts configuration file")
	flag.Parse()

	file, err := rcconfig.Load(*accountsPath)
	if err != nil {
		// No logger yet; this is a startup-time configuration failure.
		os.Stderr.WriteString("ringcentral-bridge: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(logger.FromConfig(file.LogLevel, file.LogFormat))
	log.Info("ringcentral-bridge starting", "accounts", len(file.Accounts), "metrics_addr", file.MetricsAddr)

	reg := metrics.New()
	b := bridge.New(log, runtime.DefaultCollaborators(), reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopAll, err := b.StartAll(ctx, file)
	if err != nil {
		log.Error("failed to start accounts", "error", err)
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:    file.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		log.Info("metrics server listening", "addr", file.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	cancel()
	stopAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("metrics server forced to shutdown", "error", err)
	}

	log.Info("shutdown complete")
}
