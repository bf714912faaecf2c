package cmd

import (
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lumin-project/lumin/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing lumind configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the default configuration",
	Long: `Dump the default configuration values in YAML format.

This shows all available configuration options with their default values.
You can redirect this output to a file to create a configuration template:

  lumind config dump > config.yaml

Configuration can be set via:
  - Config file (config.yaml, /etc/lumin/config.yaml, $HOME/.lumin/config.yaml)
  - Environment variables (LUMIN_SERVER_PORT, LUMIN_DATABASE_PATH, etc.)
  - Command-line flags (for some options)

Environment variables use the LUMIN_ prefix and underscores for nesting.
Example: server.port -> LUMIN_SERVER_PORT`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

// toMap converts a struct to a map, formatting durations for human readability.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = fieldType.Name
		}

		switch v := field.Interface().(type) {
		case time.Duration:
			result[key] = v.String()
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(field.Interface())
			} else {
				result[key] = field.Interface()
			}
		}
	}
	return result
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfgMap := toMap(cfg)

	yamlData, err := yaml.Marshal(cfgMap)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Println("# lumind configuration file")
	fmt.Println("# =========================")
	fmt.Println("#")
	fmt.Println("# All values shown below are defaults.")
	fmt.Println("# Duration format: 30s, 5m, 1h")
	fmt.Println("#")
	fmt.Println("# Environment variable overrides:")
	fmt.Println("#   LUMIN_SERVER_PORT, LUMIN_SERVER_UUID")
	fmt.Println("#   LUMIN_NETWORK_SSDP_PORT, LUMIN_NETWORK_INTERFACE")
	fmt.Println("#   LUMIN_DATABASE_PATH")
	fmt.Println("#   LUMIN_LOGGING_LEVEL, LUMIN_LOGGING_FORMAT")
	fmt.Println("#   etc.")
	fmt.Println("#")
	fmt.Println("")
	fmt.Print(string(yamlData))

	return nil
}
