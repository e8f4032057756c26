package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and create sfctl configuration",
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View the effective configuration",
	Long:  "Display the configuration merged from the config file, SF_* environment variables and flags. Credentials are redacted.",
	RunE:  runConfigView,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with default values",
	RunE:  runConfigInit,
}

var (
	configFormat string
	configForce  bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configInitCmd)

	configViewCmd.Flags().StringVarP(&configFormat, "format", "f", "yaml", "output format (yaml, json)")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing config file")
}

func runConfigView(cmd *cobra.Command, args []string) error {
	settings := viper.AllSettings()
	if creds, ok := settings["credentials"].(map[string]interface{}); ok {
		for k, v := range creds {
			if v != nil && fmt.Sprint(v) != "" && fmt.Sprint(v) != "[]" {
				creds[k] = "***SET***"
			}
		}
	}

	switch configFormat {
	case "yaml":
		out, err := yaml.Marshal(settings)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Print(string(out))
	case "json":
		out, err := json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Println(string(out))
	default:
		return fmt.Errorf("unsupported format: %s", configFormat)
	}

	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(os.Stderr, "# source: %s\n", used)
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configFile := cfgFile
	if configFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot locate home directory: %w", err)
		}
		configFile = filepath.Join(home, ".securefoundation.yaml")
	}

	if _, err := os.Stat(configFile); err == nil && !configForce {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configFile)
	}

	defaults := map[string]interface{}{
		"data_dir":           ".securefoundation",
		"store":              "filesystem",
		"key_size":           16,
		"enable_memory_lock": false,
		"auto_sync":          false,
		"audit": map[string]interface{}{
			"enabled":   false,
			"type":      "file",
			"log_level": "info",
			"options": map[string]interface{}{
				"max_size":    10,
				"max_backups": 3,
			},
		},
	}

	data, err := yaml.Marshal(defaults)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err = os.MkdirAll(filepath.Dir(configFile), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err = os.WriteFile(configFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Configuration file created: %s\n", configFile)
	return nil
}
