package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gnucleus/gnucleus-mcp/internal/core"
	"github.com/gnucleus/gnucleus-mcp/internal/gnucleus"
	httpsvr "github.com/gnucleus/gnucleus-mcp/internal/http"
	mcpsvr "github.com/gnucleus/gnucleus-mcp/internal/mcp"
)

var (
	version   = ""
	gitCommit = ""
	buildTime = ""
)

var (
	configFile    string
	envFile       string
	transportFlag string
	listenFlag    string
	logLevelFlag  string
)

var rootCmd = &cobra.Command{
	Use:           "gnucleus-mcp",
	Short:         "gnucleus-mcp - text-to-CAD tool server for MCP clients",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the text_to_cad tool over stdio or HTTP",
	RunE:  runServe,
}

var callCmd = &cobra.Command{
	Use:   "call <prompt>",
	Short: "Run text_to_cad once and print the markdown result",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCall,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the effective configuration",
	RunE:  runStatus,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "version=%s commit=%s built=%s\n", displayOr(version, "dev"), displayOr(gitCommit, "unknown"), displayOr(buildTime, "unknown"))
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Path to a YAML config file")
	pf.StringVar(&envFile, "env-file", core.DefaultEnvFile, "Path to a .env file (ignored when absent)")
	pf.StringVar(&transportFlag, "transport", "", "MCP transport: stdio or http")
	pf.StringVar(&listenFlag, "listen", "", "Listen address for the http transport")
	pf.StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.AddCommand(serveCmd, callCmd, statusCmd, versionCmd)
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Uncaught panic: %v\n%s", r, debug.Stack())
			panic(r)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig layers command-line flags over core.LoadConfig.
func loadConfig(cmd *cobra.Command) (*core.Config, error) {
	cfg, err := core.LoadConfig(core.LoadOptions{ConfigFile: configFile, EnvFile: envFile})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("transport") {
		cfg.Transport = transportFlag
	}
	if flags.Changed("listen") {
		cfg.HTTPListen = listenFlag
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevelFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func newToolServer(cfg *core.Config, logger *slog.Logger) *mcpsvr.Server {
	client := gnucleus.NewClient(cfg.Upstream(), gnucleus.WithLogger(logger))
	return mcpsvr.NewServer(client, logger, cfg.ToolTimeout, displayOr(version, "dev"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := core.NewLogger(os.Stderr, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Starting gNucleus MCP Server...", "version", displayOr(version, "dev"))
	logger.Info("effective config",
		"host", cfg.Host,
		"org_id", cfg.OrgID,
		"api_key", cfg.MaskedAPIKey(),
		"port", cfg.Port,
		"transport", cfg.Transport,
		"tool_timeout", cfg.ToolTimeout.String(),
	)
	if !cfg.Upstream().HasCredentials() {
		logger.Warn("GNUCLEUS_HOST or GNUCLEUS_API_KEY not set; text_to_cad calls will report a configuration error")
	}

	server := newToolServer(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Transport == core.TransportHTTP {
		return serveHTTP(ctx, cfg, server, logger)
	}

	if err := server.RunStdio(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server error", "err", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func serveHTTP(ctx context.Context, cfg *core.Config, server *mcpsvr.Server, logger *slog.Logger) error {
	httpServer := httpsvr.NewServer(cfg.HTTPListen, server.HTTPHandler(), cfg.ToolTimeout, logger, httpsvr.BuildInfo{
		Version:   version,
		GitCommit: gitCommit,
		BuildTime: buildTime,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down", "reason", context.Cause(ctx).Error())
	case serveErr = <-errCh:
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		} else {
			logger.Error("server error", "err", serveErr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("shutdown complete")
	return serveErr
}

func runCall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := core.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel)

	prompt := strings.Join(args, " ")
	out := newToolServer(cfg, logger).TextToCAD(cmd.Context(), prompt)
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := loadConfig(cmd)
	if err != nil {
		fmt.Fprintf(out, "Config: error (%v)\n", err)
		return nil
	}

	if configFile != "" {
		fmt.Fprintf(out, "Config file: %s\n", configFile)
	}
	fmt.Fprintf(out, "Host: %s\n", displayOr(cfg.Host, "not set"))
	fmt.Fprintf(out, "API Key: %s\n", cfg.MaskedAPIKey())
	fmt.Fprintf(out, "Org ID: %s\n", displayOr(cfg.OrgID, "not set"))
	fmt.Fprintf(out, "Endpoint: %s\n", gnucleus.NewClient(cfg.Upstream()).EndpointURL(gnucleus.EndpointTextToCAD))
	fmt.Fprintf(out, "Transport: %s\n", cfg.Transport)
	if cfg.Transport == core.TransportHTTP {
		fmt.Fprintf(out, "Listen: %s%s\n", cfg.HTTPListen, httpsvr.MCPPath)
	}
	fmt.Fprintf(out, "Tool timeout: %s\n", cfg.ToolTimeout)
	return nil
}

func displayOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
