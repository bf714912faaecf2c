// Package ssdp implements the SSDP discovery engine (§4.5): multicast
// ssdp:alive/ssdp:byebye announcements, an M-SEARCH responder, and the
// periodic re-announce that keeps renderers aware of this server.
package ssdp

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/lumin-project/lumin/internal/netprobe"
)

// State is the engine's position in its lifecycle state machine. Start moves
// it Starting -> Advertising and Stop moves it to Stopping. StateSuspended is
// defined, but no code path enters it: advertising continues through a
// network loss.
type State int

const (
	StateStarting State = iota
	StateAdvertising
	StateSuspended
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateAdvertising:
		return "advertising"
	case StateSuspended:
		return "suspended"
	case StateStopping:
		return "stopping"
	default:
		return "starting"
	}
}

// Config holds everything the engine needs to construct LOCATION URLs and
// advertisement headers.
type Config struct {
	DeviceUUID          string
	HTTPPort            int
	Port                int
	PortFallback        []int
	MulticastTTL        int
	AnnounceIntervalSec int
}

const (
	announceSpacingMin = 100 * time.Millisecond
	announceSpacingMax = 200 * time.Millisecond
	readBufferSize     = 2048
	repeatCount        = 3
)

// Engine runs the multicast listener, the per-interface announcer, and the
// M-SEARCH responder.
type Engine struct {
	cfg    Config
	probe  *netprobe.Probe
	logger *slog.Logger

	mu    sync.Mutex
	state State
	pc    *ipv4.PacketConn

	wg   sync.WaitGroup
	stop context.CancelFunc
}

// New constructs an Engine. probe supplies the set of multicast-capable
// interfaces to join and the primary address used in LOCATION URLs.
func New(logger *slog.Logger, probe *netprobe.Probe, cfg Config) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MulticastTTL <= 0 {
		cfg.MulticastTTL = 4
	}
	if cfg.AnnounceIntervalSec <= 0 {
		cfg.AnnounceIntervalSec = 30
	}
	return &Engine{cfg: cfg, probe: probe, logger: logger}
}

// State reports the engine's current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Start binds the multicast socket, joins every multicast-capable
// interface, and launches the announce loop and the M-SEARCH responder.
// It returns once the initial ssdp:alive burst has been sent.
func (e *Engine) Start(ctx context.Context) error {
	e.setState(StateStarting)

	pc, boundPort, err := openMulticastListener(e.cfg.Port, e.cfg.PortFallback)
	if err != nil {
		return err
	}
	if boundPort != e.cfg.Port {
		e.logger.Warn("ssdp bound to fallback port, strict discovery clients expecting 1900 may fail",
			slog.Int("configured_port", e.cfg.Port), slog.Int("bound_port", boundPort))
	}
	e.cfg.Port = boundPort

	ifaces, ifErr := e.probe.ListInterfaces(ctx)
	if ifErr != nil {
		_ = pc.Close()
		return ifErr
	}
	names := multicastCapableNames(ifaces)
	joined, failed := joinInterfaces(pc, boundPort, names)
	for name, joinErr := range failed {
		e.logger.Warn("failed to join multicast group on interface", slog.String("interface", name), slog.String("error", joinErr.Error()))
	}
	if len(joined) == 0 {
		_ = pc.Close()
		return fmt.Errorf("ssdp: joined no multicast-capable interface")
	}

	e.mu.Lock()
	e.pc = pc
	e.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	e.stop = cancel

	e.announceAll(ctx, "ssdp:alive")
	e.setState(StateAdvertising)

	e.wg.Add(2)
	go e.announceLoop(ctx)
	go e.listenLoop(ctx)

	return nil
}

// Stop sends best-effort ssdp:byebye NOTIFYs and releases the socket. It
// does not block shutdown for more than a second (§4.5).
func (e *Engine) Stop() {
	e.setState(StateStopping)

	byebyeCtx, byebyeCancel := context.WithTimeout(context.Background(), time.Second)
	e.announceAll(byebyeCtx, "ssdp:byebye")
	byebyeCancel()

	if e.stop != nil {
		e.stop()
	}
	e.mu.Lock()
	pc := e.pc
	e.mu.Unlock()
	if pc != nil {
		_ = pc.Close()
	}
	e.wg.Wait()
}

func (e *Engine) announceLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(time.Duration(e.cfg.AnnounceIntervalSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.announceAll(ctx, "ssdp:alive")
		}
	}
}

// announceAll sends every NT three times, spaced 100-200ms apart, on every
// multicast-capable interface (§4.5).
func (e *Engine) announceAll(ctx context.Context, nts string) {
	ifaces, err := e.probe.ListInterfaces(ctx)
	if err != nil {
		e.logger.Warn("failed to list interfaces for announce", slog.String("error", err.Error()))
		return
	}

	primary, err := e.probe.ChoosePrimary(ctx)
	if err != nil {
		e.logger.Warn("no primary interface to advertise", slog.String("error", err.Error()))
		return
	}
	location := fmt.Sprintf("http://%s:%d/description.xml", primary.IPv4.String(), e.cfg.HTTPPort)
	maxAge := e.cfg.AnnounceIntervalSec * 2

	e.mu.Lock()
	pc := e.pc
	e.mu.Unlock()
	if pc == nil {
		return
	}

	dst := groupAddr(e.cfg.Port)
	for _, iface := range multicastCapableNames(ifaces) {
		ifi, err := net.InterfaceByName(iface)
		if err != nil {
			continue
		}
		if err := pc.SetMulticastInterface(ifi); err != nil {
			continue
		}
		_ = pc.SetMulticastTTL(e.cfg.MulticastTTL)

		for _, nt := range notificationTypes(e.cfg.DeviceUUID) {
			payload := buildNotify(nts, location, e.cfg.DeviceUUID, nt, maxAge, e.cfg.Port)
			for i := 0; i < repeatCount; i++ {
				if _, err := pc.WriteTo(payload, nil, dst); err != nil {
					e.logger.Debug("announce write failed", slog.String("interface", iface), slog.String("error", err.Error()))
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(jitter(announceSpacingMin, announceSpacingMax)):
				}
			}
		}
	}
}

// listenLoop reads inbound M-SEARCH datagrams off the multicast socket and
// dispatches a response goroutine per matching target.
func (e *Engine) listenLoop(ctx context.Context) {
	defer e.wg.Done()

	e.mu.Lock()
	pc := e.pc
	e.mu.Unlock()
	if pc == nil {
		return
	}

	buf := make([]byte, readBufferSize)
	for {
		if ctx.Err() != nil {
			return
		}
		n, _, src, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		req, ok := parseMSearch(buf[:n])
		if !ok {
			continue
		}
		udpSrc, ok := src.(*net.UDPAddr)
		if !ok {
			continue
		}
		go e.respondToSearch(ctx, req, udpSrc)
	}
}

func (e *Engine) respondToSearch(ctx context.Context, req msearchRequest, src *net.UDPAddr) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(jitter(0, time.Duration(req.mx)*time.Second)):
	}

	targets := matchingTargets(req.st, e.cfg.DeviceUUID)
	if len(targets) == 0 {
		return
	}

	primary, err := e.probe.ChoosePrimary(ctx)
	if err != nil {
		return
	}
	location := fmt.Sprintf("http://%s:%d/description.xml", primary.IPv4.String(), e.cfg.HTTPPort)
	maxAge := e.cfg.AnnounceIntervalSec * 2

	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return
	}
	defer conn.Close()

	for _, nt := range targets {
		resp := buildMSearchResponse(location, e.cfg.DeviceUUID, nt, maxAge)
		if _, err := conn.WriteTo(resp, src); err != nil {
			e.logger.Debug("m-search response failed", slog.String("target", nt), slog.String("error", err.Error()))
		}
	}
}

func multicastCapableNames(ifaces []netprobe.Interface) []string {
	names := make([]string, 0, len(ifaces))
	for _, iface := range ifaces {
		if iface.MulticastCapable {
			names = append(names, iface.Name)
		}
	}
	return names
}

func jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	span := max - min
	return min + time.Duration(rand.Int63n(int64(span)))
}
