// Package main provides the finassist server binary.
// The server exposes the retrieval and agent-performance HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nivesh/finassist/internal/config"
	"github.com/nivesh/finassist/internal/pkg/logger"
	"github.com/nivesh/finassist/internal/server"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "finassist-server",
		Short: "Finassist server - adaptive retrieval and agent routing weights",
		Long: `Finassist server provides the retrieval-and-routing core of the
finance assistant over HTTP:

  POST /v1/retrieve                      semantic context retrieval
  POST /v1/executions                    record an agent execution
  POST /v1/feedback                      record user feedback
  GET  /v1/agents/{type}/performance     per-agent performance report
  GET  /v1/agents/{type}/weight          live selection weight
  GET  /health                           health and cache stats`,
		SilenceUsage: true,
		RunE:         runServer,
	}

	rootCmd.Flags().StringP("config", "c", "", "config file path")
	rootCmd.Flags().BoolP("verbose", "v", false, "verbose logging")
	rootCmd.Flags().Int("port", 0, "HTTP port (overrides config)")
	rootCmd.Flags().String("host", "", "server host (overrides config)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("finassist-server %s (commit %s, built %s)\n", version, commit, date)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	portFlag, _ := cmd.Flags().GetInt("port")
	hostFlag, _ := cmd.Flags().GetString("host")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if portFlag != 0 {
		cfg.Port = portFlag
	}
	if hostFlag != "" {
		cfg.Host = hostFlag
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	log := logger.New(level, cfg.Log.Format)

	log.Info("Starting finassist server",
		"version", version,
		"addr", cfg.Address(),
		"collections", len(cfg.Retrieval.Collections),
	)

	srv, err := server.New(server.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		Version:         version,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}, cfg, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("Received signal, shutting down", "signal", sig)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
