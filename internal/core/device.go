package core

import (
	"log/slog"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/lumin-project/lumin/internal/config"
)

// ensureDeviceUUID fills cfg.Server.UUID on first launch and persists it to
// configPath so later restarts advertise the same device identity (§6.1).
// A config file is rewritten in place; a missing configPath only keeps the
// generated UUID in memory for this process's lifetime.
func ensureDeviceUUID(cfg *config.Config, configPath string, logger *slog.Logger) error {
	if cfg.Server.UUID != "" {
		return nil
	}

	id := uuid.NewString()
	cfg.Server.UUID = id

	if configPath == "" {
		logger.Warn("no config file path given; generated device UUID will not persist across restarts",
			slog.String("uuid", id))
		return nil
	}

	if err := persistUUID(configPath, id); err != nil {
		return err
	}
	logger.Info("generated and persisted device UUID", slog.String("uuid", id), slog.String("config", configPath))
	return nil
}

func persistUUID(path, id string) error {
	doc := map[string]any{}

	if data, err := os.ReadFile(path); err == nil {
		if uerr := yaml.Unmarshal(data, &doc); uerr != nil || doc == nil {
			doc = map[string]any{}
		}
	}

	server, ok := doc["server"].(map[string]any)
	if !ok {
		server = map[string]any{}
	}
	server["uuid"] = id
	doc["server"] = server

	out, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0644)
}
