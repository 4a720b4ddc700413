package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"genestore/internal/api"
)

var (
	servePort int
	serveHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the genestore HTTP API server over the storage root. The server
exposes projects, blocks, saves, orders, extension files and sequences as
REST endpoints, plus a websocket change feed under /events.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default: server.port)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default: server.host)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	serverCfg, err := a.serverConfig()
	if err != nil {
		return err
	}
	manager, err := a.authManager(serverCfg)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	manager.StartBackgroundTasks(ctx)

	host, port := a.cfg.Server.Host, a.cfg.Server.Port
	if serveHost != "" {
		host = serveHost
	}
	if servePort != 0 {
		port = servePort
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	server, err := api.NewServer(addr, api.Deps{
		Store:      a.store,
		Sequences:  a.sequences,
		Auth:       manager,
		Access:     a.perms,
		UserConfig: a.userCfg,
		Events:     a.hub,
	}, serverCfg, logger)
	if err != nil {
		return err
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Serving storage root",
			"storage_root", a.cfg.StorageRoot,
			"auth", manager.Enabled(),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "genestore listening on http://%s\n", addr)
		fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to stop")
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
	case sig := <-shutdown:
		logger.Info("Received shutdown signal", "signal", sig.String())

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during shutdown", "error", err)
			return err
		}

		logger.Info("Server stopped gracefully")
	}

	return nil
}
