// Package config loads and validates lumin's configuration from a layered
// stack of defaults, an optional config file, and environment variables
// using Viper. The result is unmarshaled once at startup into a Config and
// handed to internal/core as an immutable value.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort            = 8080
	defaultServerName            = "DLNA Server"
	defaultSSDPPort              = 1900
	defaultMulticastTTL          = 4
	defaultAnnounceIntervalSecs  = 30
	defaultReconcileIntervalMins = 30
	defaultShutdownTimeout       = 10 * time.Second
	defaultWriteTimeout          = 30 * time.Second
	defaultSOAPTimeout           = 5 * time.Second
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Network  NetworkConfig  `mapstructure:"network"`
	Media    MediaConfig    `mapstructure:"media"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP server and device-description configuration.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	UUID            string        `mapstructure:"uuid"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	SOAPTimeout     time.Duration `mapstructure:"soap_timeout"`
	HealthzEnabled  bool          `mapstructure:"healthz_enabled"`
}

// NetworkConfig holds SSDP and interface-selection configuration.
type NetworkConfig struct {
	SSDPPort                int    `mapstructure:"ssdp_port"`
	SSDPPortFallback        []int  `mapstructure:"ssdp_port_fallback"`
	Interface               string `mapstructure:"interface"`
	MulticastTTL            int    `mapstructure:"multicast_ttl"`
	AnnounceIntervalSeconds int    `mapstructure:"announce_interval_seconds"`
}

// MediaDirectory is one configured scan root.
type MediaDirectory struct {
	Path            string   `mapstructure:"path"`
	Recursive       bool     `mapstructure:"recursive"`
	Extensions      []string `mapstructure:"extensions"`
	ExcludePatterns []string `mapstructure:"exclude_patterns"`
}

// MediaConfig holds indexing configuration.
type MediaConfig struct {
	Directories              []MediaDirectory `mapstructure:"directories"`
	ScanOnStartup            bool             `mapstructure:"scan_on_startup"`
	ReconcileIntervalMinutes int              `mapstructure:"reconcile_interval_minutes"`
}

// DatabaseConfig holds the embedded store's file location and GORM tuning.
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level               string `mapstructure:"level"`  // debug, info, warn, error
	Format              string `mapstructure:"format"` // json, text
	AddSource           bool   `mapstructure:"add_source"`
	TimeFormat          string `mapstructure:"time_format"`
	LogSuccessfulAccess bool   `mapstructure:"log_successful_access"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and are
// prefixed with LUMIN_, using underscores for nesting (LUMIN_SERVER_PORT=8080).
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/lumin")
		v.AddConfigPath("$HOME/.lumin")
	}

	v.SetEnvPrefix("LUMIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.name", defaultServerName)
	v.SetDefault("server.uuid", "")
	v.SetDefault("server.write_timeout", defaultWriteTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.soap_timeout", defaultSOAPTimeout)
	v.SetDefault("server.healthz_enabled", true)

	v.SetDefault("network.ssdp_port", defaultSSDPPort)
	v.SetDefault("network.ssdp_port_fallback", []int{8082, 8083, 8084})
	v.SetDefault("network.interface", "auto")
	v.SetDefault("network.multicast_ttl", defaultMulticastTTL)
	v.SetDefault("network.announce_interval_seconds", defaultAnnounceIntervalSecs)

	v.SetDefault("media.directories", []map[string]any{})
	v.SetDefault("media.scan_on_startup", true)
	v.SetDefault("media.reconcile_interval_minutes", defaultReconcileIntervalMins)

	v.SetDefault("database.path", "lumin.db")
	v.SetDefault("database.max_open_conns", 6)
	v.SetDefault("database.max_idle_conns", 3)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
	v.SetDefault("logging.log_successful_access", false)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	if c.Network.SSDPPort < 1 || c.Network.SSDPPort > maxPort {
		return fmt.Errorf("network.ssdp_port must be between 1 and %d", maxPort)
	}
	if c.Network.MulticastTTL < 1 || c.Network.MulticastTTL > 32 {
		return fmt.Errorf("network.multicast_ttl must be between 1 and 32")
	}
	if c.Network.AnnounceIntervalSeconds < 1 {
		return fmt.Errorf("network.announce_interval_seconds must be at least 1")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	for i, dir := range c.Media.Directories {
		if dir.Path == "" {
			return fmt.Errorf("media.directories[%d].path is required", i)
		}
	}

	return nil
}

// Address returns the server address in host:port format, always binding
// every interface; NetworkProbe (not this config) decides which address to
// advertise in description.xml and SSDP LOCATION headers.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("0.0.0.0:%d", c.Port)
}

// ReconcileInterval returns the safety-net reconcile period as a Duration.
func (c *MediaConfig) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalMinutes) * time.Minute
}
