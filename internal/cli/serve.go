package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openstage/verity/internal/config"
	"github.com/openstage/verity/internal/httpapi"
	"github.com/openstage/verity/internal/remote"
	"github.com/openstage/verity/internal/runner"
	"github.com/openstage/verity/internal/sandbox"
	"github.com/openstage/verity/internal/store"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the verification HTTP service",
		Long: `Run the verification HTTP service.

Serves the run and script API and executes verification scripts in the
background. Configuration comes from the --config file.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts)
		},
	}
}

func runServe(opts *RootOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "loading configuration", err)
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "opening database", err)
	}
	defer st.Close()

	client := remote.New(cfg.Remote.BaseURL, cfg.Remote.Token)
	box := sandbox.New(sandbox.Capabilities{
		Get:    client.Get,
		Search: client.Search,
	}, sandbox.Options{
		Timeout:     cfg.Timeout(),
		MemoryLimit: cfg.MemoryLimit(),
	})
	runs := runner.New(st, box, nil)
	api := httpapi.New(runs, st, nil)

	srv := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("serving", "addr", cfg.HTTP.Listen, "database", cfg.Database.Path)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitCommandError, "server failed", err)
		}
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "error", err)
		}
		// In-flight runs finish and persist their outcomes before exit.
		runs.Wait()
	}
	return nil
}
