package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/meridiancompliance/opcheck/internal/app"
	"github.com/meridiancompliance/opcheck/internal/common"
)

// opcheck-worker runs the background job-processing pool (§4.6) without the
// HTTP API, so operators can scale screening throughput independently of
// request handling by running several of this binary against the same
// storage backend.
func main() {
	configPath := os.Getenv("OPCHECK_CONFIG")

	a, err := app.NewApp(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	common.PrintBanner(a.Config, a.Logger)

	a.StartWorkerPool()
	a.StartBacklogMonitor()

	a.Logger.Info().Msg("Worker ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	a.Logger.Info().Msg("Shutdown signal received")
	common.PrintShutdownBanner(a.Logger)
	a.Close()
	a.Logger.Info().Msg("Worker stopped")
}
