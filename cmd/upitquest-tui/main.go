// Command upitquest-tui runs the interview tutor in a terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.opentelemetry.io/contrib/bridges/otelslog"

	"upitquest/internal/bootstrap"
	"upitquest/internal/domain"
	"upitquest/internal/tui"
)

const shutdownTimeout = 3 * time.Second

var logger = otelslog.NewLogger("upitquest/cmd/upitquest-tui")

func main() {
	if err := run(); err != nil {
		logger.Error("terminal session failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	sink := tui.NewSink()
	services, err := bootstrap.Build(sink)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := services.Close(ctx); err != nil {
			logger.Warn("shutdown incomplete", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model := tui.NewModel(ctx, tui.NewServicesBackend(services))
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	sink.Attach(program)

	if !services.Preferences.HasCredential() {
		go program.Send(tui.ErrorMsg{Code: domain.ErrorCodeMissingCredential})
	}

	_, err = program.Run()
	return err
}
