// Package cli implements the bridge's command surface: serve,
// validate-config, config-schema, and version.
package cli

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kong-mcp/bridge/pkg/observability/logging"
)

var cliVersion string
var debugMode bool

var rootCmd = &cobra.Command{
	Use:   "mcp-bridge",
	Short: "mcp-bridge exposes HTTP APIs as MCP tools for AI clients",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Local overrides (the MCP_BRIDGE_LISTEN listen address) may live
		// in a .env file in the working directory; a missing file is not
		// an error.
		_ = godotenv.Load()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&debugMode, "debug", "v", false, "enable debug/verbose logging")
}

func Execute(version string) {
	if version == "" {
		cliVersion = getDevVersion().String()
	} else {
		cliVersion = version
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// buildLogger creates the process-wide base logger, honoring the
// --debug flag.
func buildLogger() (*zap.Logger, error) {
	cfg := logging.DefaultConfig()
	if debugMode {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.Development = true
		cfg.Encoding = "console"
	}
	return cfg.BuildBase()
}

type devVersion struct {
	commit               string
	hasUncommitedChanges bool
}

func (dv devVersion) String() string {
	if dv.hasUncommitedChanges {
		return fmt.Sprintf("development@%s+uncommitedChanges", dv.commit)
	}
	return fmt.Sprintf("development@%s", dv.commit)
}

func getDevVersion() devVersion {
	dv := devVersion{}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if len(setting.Value) >= 7 {
					dv.commit = setting.Value[:7]
				} else {
					dv.commit = setting.Value
				}
			case "vcs.modified":
				dv.hasUncommitedChanges = setting.Value == "true"
			}
		}
	}

	return dv
}
