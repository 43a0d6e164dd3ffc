package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kong-mcp/bridge/pkg/config"
	"github.com/kong-mcp/bridge/pkg/runtime"
)

var configPath string
var listenAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "bridge.yaml", "bridge configuration file")
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", ":8000", "address to listen on")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP bridge server",
	RunE:  executeServeCmd,
}

func executeServeCmd(cobraCmd *cobra.Command, args []string) error {
	logger, err := buildLogger()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if addr := os.Getenv("MCP_BRIDGE_LISTEN"); addr != "" && !cobraCmd.Flags().Changed("listen") {
		listenAddr = addr
	}

	cfg, err := config.LoadServerConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config from %s: %w", configPath, err)
	}

	server := runtime.NewServer(logger)
	report, err := server.Load(cfg)
	if err != nil {
		return fmt.Errorf("failed to build tool registry: %w", err)
	}

	logger.Info("bridge configured",
		zap.String("config_path", configPath),
		zap.String("server_name", cfg.ServerName),
		zap.Int("routes", report.RoutesLoaded),
		zap.Int("tools", report.ToolsRegistered))

	ctx, stop := signal.NotifyContext(cobraCmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.Run(ctx, listenAddr)
}
