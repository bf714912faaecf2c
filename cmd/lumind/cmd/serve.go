package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lumin-project/lumin/internal/config"
	"github.com/lumin-project/lumin/internal/core"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the lumin media server",
	Long: `Start the lumin DLNA/UPnP media server.

The server:
- Probes the local network and advertises over SSDP
- Indexes the configured media directories and watches them for changes
- Serves ContentDirectory/ConnectionManager SOAP control and byte-range
  HTTP streaming`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "HTTP port to listen on (overrides config)")
	serveCmd.Flags().String("database", "", "database file path (overrides config)")

	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("database.path", serveCmd.Flags().Lookup("database"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if v := viper.GetInt("server.port"); cmd.Flags().Changed("port") && v > 0 {
		cfg.Server.Port = v
	}
	if v := viper.GetString("database.path"); cmd.Flags().Changed("database") && v != "" {
		cfg.Database.Path = v
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server, err := core.New(ctx, cfg, cfgFile, logger)
	if err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("received shutdown signal", slog.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	return server.Shutdown(shutdownCtx)
}
