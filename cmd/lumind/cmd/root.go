// Package cmd implements the lumind CLI commands.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lumin-project/lumin/internal/config"
	"github.com/lumin-project/lumin/internal/observability"
	"github.com/lumin-project/lumin/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "lumind",
	Short:   "A DLNA/UPnP media server",
	Version: version.Short(),
	Long: `lumind serves a local media library to DLNA/UPnP renderers on the
local network: it discovers itself over SSDP, exposes a ContentDirectory
and ConnectionManager over SOAP, and streams files over HTTP with
byte-range support.`,
	// PersistentPreRunE is set in init() to avoid an initialization cycle.
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initLogging()
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml, $HOME/.lumin/config.yaml, or /etc/lumin/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}

// initConfig reads the config file and environment variables if set.
func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("/etc/lumin")
		viper.AddConfigPath("$HOME/.lumin")
	}

	viper.SetEnvPrefix("LUMIN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// initLogging configures the slog logger based on configuration.
//
// Priority order (highest to lowest):
//  1. CLI flags (--log-level, --log-format), only if explicitly provided
//  2. Environment variables (LUMIN_LOGGING_LEVEL, LUMIN_LOGGING_FORMAT)
//  3. Config file values
//  4. Built-in defaults (info, json)
func initLogging() error {
	level := viper.GetString("logging.level")
	format := viper.GetString("logging.format")

	if rootCmd.PersistentFlags().Changed("log-level") {
		level, _ = rootCmd.PersistentFlags().GetString("log-level")
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		format, _ = rootCmd.PersistentFlags().GetString("log-format")
	}

	if level == "" {
		level = "info"
	}
	if format == "" {
		format = "json"
	}

	logCfg := config.LoggingConfig{
		Level:  strings.ToLower(level),
		Format: strings.ToLower(format),
	}
	if logCfg.Level == "warning" {
		logCfg.Level = "warn"
	}

	logger := observability.NewLoggerWithWriter(logCfg, os.Stderr)
	logger = observability.WithApp(logger, version.ApplicationName)
	observability.SetDefault(logger)

	return nil
}

// mustBindPFlag binds a viper key to a cobra flag and panics if binding fails.
func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %q to key %q: %v", flag.Name, key, err))
	}
}
