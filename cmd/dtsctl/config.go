package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/duotrack/substrate/internal/config"
)

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "ops",
	Short:   "Inspect and override bound configuration values",
	Long: `Inspect and override the engine's bound configuration values.

Values come from (highest to lowest precedence): an in-process "set" for
this run, DTS_-prefixed environment variables, the config file bound with
--config, and built-in defaults.

Examples:
  dtsctl config list
  dtsctl config get loss.ethical-floor
  dtsctl config set coordinator.tail-window 64`,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]
		all := config.AllSettings()
		if _, ok := lookupKey(all, key); !ok {
			return fmt.Errorf("dtsctl config get: unknown key %q", key)
		}
		fmt.Println(config.GetString(key))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Override a configuration value for this run",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		config.Set(key, value)
		fmt.Printf("%s %s = %s (this run only; not written to a config file)\n", renderAccent("set"), key, value)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every bound configuration key and its effective value",
	RunE: func(cmd *cobra.Command, args []string) error {
		all := config.AllSettings()
		keys := flattenKeys(all, "")
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s = %v\n", renderCommand(k), config.GetString(k))
		}
		return nil
	},
}

// flattenKeys walks viper's nested AllSettings map into dotted keys,
// since this package's keys are dotted (loss.ethical-floor) but
// AllSettings returns them as nested maps keyed by path segment.
func flattenKeys(m map[string]any, prefix string) []string {
	var keys []string
	for k, val := range m {
		full := k
		if prefix != "" {
			full = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			keys = append(keys, flattenKeys(nested, full)...)
			continue
		}
		keys = append(keys, full)
	}
	return keys
}

func lookupKey(m map[string]any, key string) (any, bool) {
	for _, k := range flattenKeys(m, "") {
		if k == key {
			return nil, true
		}
	}
	return nil, false
}

func init() {
	configCmd.AddCommand(configGetCmd, configSetCmd, configListCmd)
}
