// Package daemon bootstraps the relay core: it builds the logger, the
// listeners, the stats reporter, and runs them until SIGINT/SIGTERM.
package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caststream/termcastd/internal/config"
	"github.com/caststream/termcastd/internal/logger"
	"github.com/caststream/termcastd/internal/relay"
)

// Run builds the relay core from cfg and blocks until it is told to stop.
func Run(cfg config.Config) error {
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log := logger.Log

	srv := relay.NewServer(relay.Config{
		CasterAddr:  cfg.CasterAddr,
		WatcherAddr: cfg.WatcherAddr,
		MOTD:        cfg.MOTD,
	}, log)

	if err := srv.Listen(); err != nil {
		return fmt.Errorf("bind listeners: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	statsCron, err := relay.StartStatsReporter(srv, log, cfg.StatsInterval)
	if err != nil {
		return fmt.Errorf("start stats reporter: %w", err)
	}
	defer statsCron.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	errCh := make(chan error, 1)
	go func() {
		log.Info("relay core started", "caster_addr", cfg.CasterAddr, "watcher_addr", cfg.WatcherAddr)
		errCh <- srv.Run(ctx)
	}()

	select {
	case sig := <-sigCh:
		log.Info("received signal, shutting down", "signal", sig.String())
		cancel()
		time.Sleep(100 * time.Millisecond)
	case err := <-errCh:
		if err != nil {
			cancel()
			return fmt.Errorf("relay core: %w", err)
		}
	}

	return nil
}
