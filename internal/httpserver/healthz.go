package httpserver

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// healthzStatus is the diagnostic payload served at /healthz (§10.6): a
// plain JSON snapshot meant for operators and CI probes, not UPnP clients.
type healthzStatus struct {
	Status         string `json:"status"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	SystemUpdateID int64  `json:"system_update_id"`
	PrimaryAddr    string `json:"primary_interface_addr,omitempty"`
	WatcherAlive   bool   `json:"watcher_alive"`
	IndexerAlive   bool   `json:"indexer_alive"`
	SSDPAlive      bool   `json:"ssdp_alive"`
}

// LivenessReporter lets C1/C3/C4/C5 publish a simple alive/dead flag the
// /healthz handler can read without importing those packages directly.
type LivenessReporter struct {
	alive atomic.Bool
}

func (l *LivenessReporter) SetAlive(v bool) { l.alive.Store(v) }
func (l *LivenessReporter) Alive() bool     { return l.alive.Load() }

// Health aggregates the liveness reporters the core wiring layer hands the
// server at startup, plus the primary-interface address NetworkProbe last
// observed.
type Health struct {
	startedAt   time.Time
	Watcher     *LivenessReporter
	Indexer     *LivenessReporter
	SSDP        *LivenessReporter
	primaryAddr atomic.Value // string
}

func NewHealth() *Health {
	h := &Health{
		startedAt: time.Now(),
		Watcher:   &LivenessReporter{},
		Indexer:   &LivenessReporter{},
		SSDP:      &LivenessReporter{},
	}
	h.primaryAddr.Store("")
	return h
}

func (h *Health) SetPrimaryAddr(addr string) {
	h.primaryAddr.Store(addr)
}

// WithHealth wires the health aggregator the /healthz handler reads from.
func (s *Server) WithHealth(h *Health) *Server {
	s.health = h
	return s
}

func (s *Server) registerHealthzRoutes() {
	if !s.config.HealthzEnabled {
		return
	}
	s.router.Get("/healthz", s.handleHealthz)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	suid, _ := s.mediaStore.SystemUpdateID(r.Context())

	status := healthzStatus{
		Status:         "ok",
		SystemUpdateID: suid,
	}

	if s.health != nil {
		status.UptimeSeconds = int64(time.Since(s.health.startedAt).Seconds())
		status.WatcherAlive = s.health.Watcher.Alive()
		status.IndexerAlive = s.health.Indexer.Alive()
		status.SSDPAlive = s.health.SSDP.Alive()
		if addr, ok := s.health.primaryAddr.Load().(string); ok {
			status.PrimaryAddr = addr
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(status)
}
