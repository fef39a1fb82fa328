package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	safetyLevel string
	profileName string
	catalogPath string
	logLevel    string
	logFormat   string
)

var rootCmd = &cobra.Command{
	Use:   "busgate",
	Short: "Permission gate for desktop message bus access",
	Long: "Classifies desktop bus method calls into categories, gates them by a configured\n" +
		"safety level and system profile, rate limits tool calls and audits every decision.\n" +
		"Serves the gated tools to AI assistants over MCP.",
	SilenceUsage: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to busgate.yaml (default: ./busgate.yaml or $XDG_CONFIG_HOME/busgate/busgate.yaml)")
	pf.StringVar(&safetyLevel, "safety-level", "", "Safety level: high, medium or low")
	pf.StringVar(&profileName, "profile", "", "System profile name, or auto to detect")
	pf.StringVar(&catalogPath, "catalog", "", "Path to a category catalog YAML (default: built-in)")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	pf.StringVar(&logFormat, "log-format", "", "Log format: json or console")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
