// Command upitquest-proxy serves the tutor API for a browser frontend without
// the desktop shell.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"

	"upitquest/internal/bootstrap"
	"upitquest/internal/config"
)

const shutdownTimeout = 5 * time.Second

var logger = otelslog.NewLogger("upitquest/cmd/upitquest-proxy")

func main() {
	if err := run(); err != nil {
		logger.Error("proxy exited", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	server := bootstrap.BuildProxy(cfg)
	listener, err := net.Listen("tcp", cfg.Proxy.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Proxy.Addr, err)
	}
	fmt.Printf("upitquest proxy listening on http://%s\n", listener.Addr())
	logger.Info("proxy listening", "addr", listener.Addr().String(), "stt_provider", cfg.Proxy.STTProvider)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown proxy: %w", err)
	}
	return <-errCh
}
