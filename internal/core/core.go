// Package core wires the six components (NetworkProbe, MediaStore,
// FileWatcher, Indexer, SsdpEngine, HttpServer) into one running server and
// owns the startup and graceful-shutdown sequence described in §2: probe
// the network, open the store, start watching and indexing every configured
// root, bring up the HTTP surface, then start SSDP advertising once the
// HTTP address is known.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lumin-project/lumin/internal/config"
	"github.com/lumin-project/lumin/internal/httpserver"
	"github.com/lumin-project/lumin/internal/indexer"
	"github.com/lumin-project/lumin/internal/netprobe"
	"github.com/lumin-project/lumin/internal/ssdp"
	"github.com/lumin-project/lumin/internal/store"
	"github.com/lumin-project/lumin/internal/version"
	"github.com/lumin-project/lumin/internal/watcher"
)

const (
	netprobeInterval   = 10 * time.Second
	deviceManufacturer = "Lumin Project"
	deviceModelName    = "Lumin Media Server"
	deviceModelNumber  = version.ApplicationName
)

// Server owns every running component and coordinates shutdown order.
type Server struct {
	logger *slog.Logger
	cfg    *config.Config

	probe   *netprobe.Probe
	store   *store.Store
	watcher *watcher.Watcher
	indexer *indexer.Indexer
	ssdp    *ssdp.Engine
	http    *httpserver.Server

	probeCancel context.CancelFunc
}

// New performs the full startup sequence: ensure a device UUID, probe the
// network once, open the store, build the watcher/indexer/ssdp/http
// components, and start all of them. It returns once the HTTP listener is
// bound and SSDP is advertising.
func New(ctx context.Context, cfg *config.Config, configPath string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := ensureDeviceUUID(cfg, configPath, logger); err != nil {
		return nil, fmt.Errorf("ensuring device UUID: %w", err)
	}

	probe := netprobe.New(logger, netprobeInterval)
	if _, err := probe.ChoosePrimary(ctx); err != nil {
		logger.Warn("no usable network interface at startup; will retry in the background",
			slog.String("error", err.Error()))
	}

	mediaStore, err := store.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("opening media store: %w", err)
	}

	roots := make([]watcher.Root, 0, len(cfg.Media.Directories))
	for _, dir := range cfg.Media.Directories {
		roots = append(roots, watcher.Root{
			Path:            dir.Path,
			ExcludePatterns: dir.ExcludePatterns,
			Extensions:      dir.Extensions,
		})
	}

	fsWatcher, err := watcher.New(logger, roots)
	if err != nil {
		mediaStore.Close()
		return nil, fmt.Errorf("constructing file watcher: %w", err)
	}

	ix := indexer.New(logger, mediaStore, fsWatcher.Events(), cfg.Media.Directories)

	srv := &Server{
		logger:  logger,
		cfg:     cfg,
		probe:   probe,
		store:   mediaStore,
		watcher: fsWatcher,
		indexer: ix,
	}

	primary, err := probe.ChoosePrimary(ctx)
	streamBaseURL := ""
	if err == nil {
		streamBaseURL = fmt.Sprintf("http://%s:%d", primary.IPv4.String(), cfg.Server.Port)
	} else {
		streamBaseURL = fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	}

	device := httpserver.DeviceInfo{
		FriendlyName: cfg.Server.Name,
		UUID:         cfg.Server.UUID,
		Manufacturer: deviceManufacturer,
		ModelName:    deviceModelName,
		ModelNumber:  deviceModelNumber,
	}

	httpSrv := httpserver.NewServer(cfg.Server, device, logger)
	httpSrv.WithMediaStore(mediaStore, streamBaseURL)
	httpSrv.RegisterRoutes()
	srv.http = httpSrv

	ix.OnChange(func() {
		notifyCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.SOAPTimeout)
		defer cancel()
		httpSrv.NotifySystemUpdateID(notifyCtx, mustSystemUpdateID(notifyCtx, mediaStore, logger))
	})

	if err := fsWatcher.Start(ctx); err != nil {
		mediaStore.Close()
		return nil, fmt.Errorf("starting file watcher: %w", err)
	}

	if err := ix.Start(ctx, cfg.Media.ReconcileIntervalMinutes); err != nil {
		fsWatcher.Close()
		mediaStore.Close()
		return nil, fmt.Errorf("starting indexer: %w", err)
	}

	if _, err := httpSrv.Start(); err != nil {
		fsWatcher.Close()
		mediaStore.Close()
		return nil, fmt.Errorf("starting http server: %w", err)
	}

	ssdpEngine := ssdp.New(logger, probe, ssdp.Config{
		DeviceUUID:          cfg.Server.UUID,
		HTTPPort:            cfg.Server.Port,
		Port:                cfg.Network.SSDPPort,
		PortFallback:        cfg.Network.SSDPPortFallback,
		MulticastTTL:        cfg.Network.MulticastTTL,
		AnnounceIntervalSec: cfg.Network.AnnounceIntervalSeconds,
	})
	if err := ssdpEngine.Start(ctx); err != nil {
		logger.Warn("ssdp engine failed to start; continuing without discovery", slog.String("error", err.Error()))
	}
	srv.ssdp = ssdpEngine

	probeCtx, probeCancel := context.WithCancel(context.Background())
	srv.probeCancel = probeCancel
	go probe.Run(probeCtx, func(netprobe.Interface) {
		logger.Info("network interface changed, SSDP will re-announce on its own schedule")
	})

	logger.Info("lumin server started",
		slog.String("uuid", cfg.Server.UUID),
		slog.Int("port", cfg.Server.Port),
		slog.Int("roots", len(roots)),
	)

	return srv, nil
}

func mustSystemUpdateID(ctx context.Context, s *store.Store, logger *slog.Logger) int64 {
	suid, err := s.SystemUpdateID(ctx)
	if err != nil {
		logger.Error("reading SystemUpdateID for GENA notify failed", slog.String("error", err.Error()))
		return 0
	}
	return suid
}

// Shutdown stops every component in reverse startup order, giving each the
// configured grace period.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.probeCancel != nil {
		s.probeCancel()
	}
	if s.ssdp != nil {
		s.ssdp.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("http shutdown failed", slog.String("error", err.Error()))
	}

	s.indexer.Stop()

	if err := s.watcher.Close(); err != nil {
		s.logger.Error("watcher close failed", slog.String("error", err.Error()))
	}

	if err := s.store.Close(); err != nil {
		return fmt.Errorf("closing media store: %w", err)
	}
	return nil
}
