package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ebarros/kestrel/internal/config"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write the configuration file with defaults filled in",
	Long: `Configure writes the effective configuration to the config path
(default $HOME/.kestrel/kestrel.json). Values from an existing file are
kept; missing keys are filled with defaults.`,
	RunE: runConfigure,
}

var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE:  runShowConfig,
}

func init() {
	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(showConfigCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Println("configuration written")
	return nil
}

func runShowConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	// API keys never reach stdout.
	cfg.LLM.APIKey = ""

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
