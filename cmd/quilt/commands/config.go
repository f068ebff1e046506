package commands

import (
	"encoding/json"
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/quiltlab/quilt/config"
)

// ConfigCmd represents the config command
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage quilt configuration",
	Long: `config — Manage quilt configuration

Configuration sources (in order of precedence):
1. Environment variables (QUILT_* prefix)
2. Project config (./quilt.toml, searched upward)
3. User config (~/.quilt/quilt.toml)
4. Default values

Examples:
  quilt config show                 # Show current configuration
  quilt config show --format json   # Show configuration in JSON format
  quilt config get cache.dir        # Get specific config value`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the current quilt configuration from all sources",
	RunE:  runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., cache.dir, runner.workers)",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configFormat string

func init() {
	configShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json")

	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configGetCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
		fmt.Println(string(data))
	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to TOML: %w", err)
		}
		fmt.Print(string(data))
	default:
		return fmt.Errorf("unknown format %q (want toml or json)", configFormat)
	}
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	v := config.GetViper()
	key := args[0]
	if !v.IsSet(key) {
		return fmt.Errorf("unknown configuration key %q", key)
	}
	fmt.Println(v.Get(key))
	return nil
}
