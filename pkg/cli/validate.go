package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kong-mcp/bridge/pkg/config"
	"github.com/kong-mcp/bridge/pkg/runtime"
)

var validateConfigPath string

func init() {
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(schemaCmd)
	validateCmd.Flags().StringVarP(&validateConfigPath, "config", "c", "bridge.yaml", "bridge configuration file")
}

var validateCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Validate a bridge configuration file and report the tools it would produce",
	RunE:  executeValidateCmd,
}

func executeValidateCmd(cobraCmd *cobra.Command, args []string) error {
	cfg, err := config.LoadServerConfig(validateConfigPath)
	if err != nil {
		return fmt.Errorf("config is invalid: %w", err)
	}

	// Dry-run the registry build so operators see synthesis problems
	// (unparseable specifications, duplicate tool names) before deploy.
	manager := runtime.NewManager(zap.NewNop())
	report, err := manager.Load(cfg)
	if err != nil {
		return fmt.Errorf("failed to build tool registry: %w", err)
	}

	fmt.Printf("config %s is valid\n", validateConfigPath)
	fmt.Printf("  routes loaded: %d\n", report.RoutesLoaded)
	for _, routeID := range report.RoutesFailed {
		fmt.Printf("  route failed: %s\n", routeID)
	}
	fmt.Printf("  tools: %d\n", report.ToolsRegistered)
	if report.DuplicatesDropped > 0 {
		fmt.Printf("  duplicate tool names dropped: %d\n", report.DuplicatesDropped)
	}
	if report.ToolsOverLimit > 0 {
		fmt.Printf("  tools over max_tools limit: %d\n", report.ToolsOverLimit)
	}

	return nil
}

var schemaCmd = &cobra.Command{
	Use:   "config-schema",
	Short: "Print the JSON Schema of the bridge configuration format",
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		out, err := config.GenerateSchema()
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}
