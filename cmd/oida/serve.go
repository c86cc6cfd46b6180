package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/lemonberrylabs/oida/pkg/api"
	grpcapi "github.com/lemonberrylabs/oida/pkg/api/grpc"
	"github.com/lemonberrylabs/oida/pkg/runtime"
	"github.com/lemonberrylabs/oida/pkg/stdlib"
	"github.com/lemonberrylabs/oida/pkg/store"
	"github.com/lemonberrylabs/oida/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the REST API, the web UI and the gRPC service",
	Args:  cobra.NoArgs,
	RunE:  serve,
}

func init() {
	serveCmd.Flags().Int("port", 0, "HTTP server port (default 8787, env PORT)")
	serveCmd.Flags().Int("grpc-port", 0, "gRPC server port (default 8788, env GRPC_PORT)")
	serveCmd.Flags().String("host", "", "Bind address (default 0.0.0.0, env HOST)")
	serveCmd.Flags().String("scripts-dir", "", "Directory of *.oida files to deploy at startup (env SCRIPTS_DIR)")
	serveCmd.Flags().Int("max-steps", 0, "Statement limit per run (default 1000000, env MAX_STEPS)")
	serveCmd.Flags().Bool("allow-fetch", false, "Let programs use holma (env ALLOW_FETCH)")
}

// serveConfig is the resolved configuration of the serve command.
type serveConfig struct {
	Addr       string
	GRPCAddr   string
	ScriptsDir string
	MaxSteps   int
	AllowFetch bool
}

// loadServeConfig layers flags over environment variables over defaults.
func loadServeConfig(cmd *cobra.Command) (serveConfig, error) {
	port := envOrDefault("PORT", "8787")
	if v, _ := cmd.Flags().GetInt("port"); v != 0 {
		port = strconv.Itoa(v)
	}

	grpcPort := envOrDefault("GRPC_PORT", "8788")
	if v, _ := cmd.Flags().GetInt("grpc-port"); v != 0 {
		grpcPort = strconv.Itoa(v)
	}

	host := envOrDefault("HOST", "0.0.0.0")
	if v, _ := cmd.Flags().GetString("host"); v != "" {
		host = v
	}

	scriptsDir := os.Getenv("SCRIPTS_DIR")
	if v, _ := cmd.Flags().GetString("scripts-dir"); v != "" {
		scriptsDir = v
	}

	maxSteps, err := strconv.Atoi(envOrDefault("MAX_STEPS", strconv.Itoa(api.DefaultMaxSteps)))
	if err != nil {
		return serveConfig{}, fmt.Errorf("invalid MAX_STEPS: %w", err)
	}
	if v, _ := cmd.Flags().GetInt("max-steps"); v != 0 {
		maxSteps = v
	}

	allowFetch, err := strconv.ParseBool(envOrDefault("ALLOW_FETCH", "false"))
	if err != nil {
		return serveConfig{}, fmt.Errorf("invalid ALLOW_FETCH: %w", err)
	}
	if cmd.Flags().Changed("allow-fetch") {
		allowFetch, _ = cmd.Flags().GetBool("allow-fetch")
	}

	return serveConfig{
		Addr:       fmt.Sprintf("%s:%s", host, port),
		GRPCAddr:   fmt.Sprintf("%s:%s", host, grpcPort),
		ScriptsDir: scriptsDir,
		MaxSteps:   maxSteps,
		AllowFetch: allowFetch,
	}, nil
}

func serve(cmd *cobra.Command, _ []string) error {
	cfg, err := loadServeConfig(cmd)
	if err != nil {
		return err
	}

	var fetcher stdlib.Fetcher = stdlib.DisabledFetcher
	if cfg.AllowFetch {
		fetcher = stdlib.NewHTTPFetcher(stdlib.DefaultFetchTimeout)
	}

	s := store.New()
	server := api.New(s, api.Config{
		MaxSteps: cfg.MaxSteps,
		Fetcher:  fetcher,
		Logger:   logger,
	})

	if cfg.ScriptsDir != "" {
		if _, err := server.LoadDir(cfg.ScriptsDir); err != nil {
			logger.Warn("failed to load scripts directory", "dir", cfg.ScriptsDir, "error", err)
		}
	}

	runOpts := []runtime.Option{
		runtime.WithMaxSteps(cfg.MaxSteps),
		runtime.WithFetcher(fetcher),
		runtime.WithLogger(logger),
	}
	web.New(s, runOpts...).Register(server.App())

	grpcServer := grpcapi.New(s, logger, runOpts...)
	go func() {
		logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(cfg.GRPCAddr); err != nil {
			logger.Error("gRPC server error", "error", err)
			os.Exit(1)
		}
	}()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down")
		grpcServer.GracefulStop()
		if err := server.Shutdown(); err != nil {
			logger.Error("error during shutdown", "error", err)
		}
	}()

	logger.Info("oida server listening", "addr", cfg.Addr, "max_steps", cfg.MaxSteps, "fetch", cfg.AllowFetch)
	return server.Listen(cfg.Addr)
}
