package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"go.uber.org/zap"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/config"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/pkg/logger"
)

// main is the bridge's process entry point: the thin CLI wrapper around
// Start/Stop (spec §6.5), exiting 0 on a clean shutdown, 1 on a fatal
// startup error, 130 on SIGINT — mirroring the teacher's cmd/api/main.go
// shape of "build config path relative to this file, load it, run."
func main() {
	os.Exit(run())
}

func run() int {
	_, filename, _, _ := runtime.Caller(0)
	root := filepath.Dir(filename)
	configPath := config.Path(root).Join("..", "..", "config.toml")

	var cfg config.Config
	if err := config.Load(configPath, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: load config: %v\n", err)
		return 1
	}

	bridge, err := Start(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: start bridge: %v\n", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("bridge received shutdown signal", zap.String("signal", sig.String()))
	bridge.Stop()

	if sig == syscall.SIGINT {
		return 130
	}
	return 0
}
