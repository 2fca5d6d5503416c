// Botster Orchestrator - virtualized terminal orchestration daemon with
// context-aware tool dispatch.
//
// This is the main entry point for the botster-orchestrator CLI. `serve`
// runs the daemon (session pool, registry, admin API, event stream, optional
// SSH attach surface); the remaining subcommands are a thin client against a
// running daemon's admin API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/trybotster/botster-orchestrator/internal/adminapi"
	"github.com/trybotster/botster-orchestrator/internal/config"
	"github.com/trybotster/botster-orchestrator/internal/orchestrator"
	"github.com/trybotster/botster-orchestrator/internal/sshapi"
	"github.com/trybotster/botster-orchestrator/internal/wsapi"
)

// Version is set at build time via ldflags.
var Version = "dev"

// adminAddr is the admin API address the client subcommands talk to; the
// daemon always listens on it in addition to wsapi/sshapi, the way
// botster-hub always stood up its Tailscale listener regardless of mode.
const adminAddr = "127.0.0.1:7781"

func main() {
	rootCmd := &cobra.Command{
		Use:     "botster-orchestrator",
		Short:   "Virtualized terminal orchestrator with context-aware tool dispatch",
		Version: Version,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSessionCmd())
	rootCmd.AddCommand(newProvidersCmd())
	rootCmd.AddCommand(newStatusCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the orchestrator daemon",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if os.Getenv("BOTSTER_ORCH_LOG_LEVEL") == "debug" {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	orch, err := orchestrator.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	go func() {
		if err := orch.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("orchestrator run loop error", "error", err)
		}
	}()

	adminSrv := &http.Server{Addr: adminAddr, Handler: adminapi.New(orch, logger)}
	go func() {
		logger.Info("admin API listening", "addr", adminAddr)
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin API error", "error", err)
		}
	}()

	var wsSrv *http.Server
	if cfg.WSAPIAddr != "" {
		wsSrv = &http.Server{Addr: cfg.WSAPIAddr, Handler: wsapi.New(orch, logger)}
		go func() {
			logger.Info("wsapi listening", "addr", cfg.WSAPIAddr)
			if err := wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("wsapi error", "error", err)
			}
		}()
	}

	var sshSrv *sshapi.Server
	if cfg.SSHAPIAddr != "" {
		ln, err := net.Listen("tcp", cfg.SSHAPIAddr)
		if err != nil {
			logger.Error("sshapi listen failed", "error", err)
		} else {
			sshSrv = sshapi.New(ln, orch, logger)
			go func() {
				if err := sshSrv.Serve(ctx); err != nil && ctx.Err() == nil {
					logger.Error("sshapi error", "error", err)
				}
			}()
		}
	}

	<-ctx.Done()

	logger.Info("shutting down")
	_ = adminSrv.Close()
	if wsSrv != nil {
		_ = wsSrv.Close()
	}
	if sshSrv != nil {
		_ = sshSrv.Close()
	}
	orch.Shutdown()

	return nil
}
