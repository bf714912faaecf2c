// Package netprobe enumerates usable IPv4 interfaces and tracks which one is
// primary, so the HTTP and SSDP layers always advertise a reachable address
// even as a host's network configuration changes under them (§4.1).
package netprobe

import (
	"context"
	"log/slog"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	gopsutilnet "github.com/shirou/gopsutil/v4/net"
)

// Kind classifies an interface for the sort order §4.1 requires: Ethernet
// before WiFi before Vpn before everything else.
type Kind int

const (
	KindEthernet Kind = iota
	KindWiFi
	KindVpn
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindEthernet:
		return "ethernet"
	case KindWiFi:
		return "wifi"
	case KindVpn:
		return "vpn"
	default:
		return "other"
	}
}

// Interface describes one network interface as NetworkProbe reports it.
type Interface struct {
	Name             string
	IPv4             net.IP
	IsUp             bool
	IsLoopback       bool
	Kind             Kind
	MulticastCapable bool
}

func (i Interface) isLinkLocal() bool {
	return i.IPv4 != nil && i.IPv4.IsLinkLocalUnicast()
}

// Probe polls the host's interfaces on a fixed interval and reports primary
// address changes. The zero value is not usable; construct with New.
type Probe struct {
	logger   *slog.Logger
	interval time.Duration

	lister func(ctx context.Context) ([]Interface, error)

	mu      sync.Mutex
	primary Interface
}

// New constructs a Probe polling every interval (§4.1 specifies 10s).
func New(logger *slog.Logger, interval time.Duration) *Probe {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Probe{
		logger:   logger,
		interval: interval,
		lister:   listInterfaces,
	}
}

// ListInterfaces returns every interface the probe considers usable,
// sorted per §4.1: Ethernet < WiFi < Vpn < Other, then lexicographically by
// name. Down interfaces are dropped. Loopback interfaces are dropped unless
// nothing else is left, so single-host testing still works.
func (p *Probe) ListInterfaces(ctx context.Context) ([]Interface, error) {
	all, err := p.lister(ctx)
	if err != nil {
		return nil, err
	}

	var usable []Interface
	for _, iface := range all {
		if !iface.IsUp {
			continue
		}
		if iface.IsLoopback {
			continue
		}
		usable = append(usable, iface)
	}
	if len(usable) == 0 {
		for _, iface := range all {
			if iface.IsUp {
				usable = append(usable, iface)
			}
		}
	}

	sort.Slice(usable, func(i, j int) bool {
		if usable[i].Kind != usable[j].Kind {
			return usable[i].Kind < usable[j].Kind
		}
		return usable[i].Name < usable[j].Name
	})

	return usable, nil
}

// ChoosePrimary returns the first sorted interface whose address is not
// link-local, falling back to a link-local address only if nothing else is
// available (§4.1).
func (p *Probe) ChoosePrimary(ctx context.Context) (Interface, error) {
	ifaces, err := p.ListInterfaces(ctx)
	if err != nil {
		return Interface{}, err
	}
	if len(ifaces) == 0 {
		return Interface{}, ErrNoInterfaces
	}

	for _, iface := range ifaces {
		if !iface.isLinkLocal() {
			return iface, nil
		}
	}
	return ifaces[0], nil
}

// Current returns the last primary interface observed by Run, or the zero
// value if Run has not completed a cycle yet.
func (p *Probe) Current() Interface {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.primary
}

// Run polls on the configured interval until ctx is canceled, invoking
// onChange whenever the primary interface's address changes (§4.1's
// InterfaceChanged event). The core's onChange only logs the change; the
// SSDP engine is not told and re-announces on its own interval.
func (p *Probe) Run(ctx context.Context, onChange func(Interface)) {
	p.pollOnce(ctx, onChange)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx, onChange)
		}
	}
}

func (p *Probe) pollOnce(ctx context.Context, onChange func(Interface)) {
	next, err := p.ChoosePrimary(ctx)
	if err != nil {
		p.logger.Warn("no usable network interface found", slog.String("error", err.Error()))
		return
	}

	p.mu.Lock()
	prev := p.primary
	changed := prev.Name != next.Name || !prev.IPv4.Equal(next.IPv4)
	p.primary = next
	p.mu.Unlock()

	if changed {
		p.logger.Info("primary interface changed",
			slog.String("name", next.Name),
			slog.String("addr", next.IPv4.String()),
			slog.String("kind", next.Kind.String()),
		)
		if onChange != nil {
			onChange(next)
		}
	}
}

// listInterfaces is the gopsutil-backed enumeration strategy (§10.3):
// gopsutil/v4/net for cross-platform interface/flag/address data, layered
// under the same classification rules §4.1 specifies.
func listInterfaces(ctx context.Context) ([]Interface, error) {
	stats, err := gopsutilnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Interface, 0, len(stats))
	for _, stat := range stats {
		ipv4 := firstIPv4(stat.Addrs)
		if ipv4 == nil {
			continue
		}

		flags := make(map[string]bool, len(stat.Flags))
		for _, f := range stat.Flags {
			flags[strings.ToLower(f)] = true
		}

		result = append(result, Interface{
			Name:             stat.Name,
			IPv4:             ipv4,
			IsUp:             flags["up"],
			IsLoopback:       flags["loopback"],
			Kind:             classifyKind(stat.Name),
			MulticastCapable: flags["multicast"],
		})
	}
	return result, nil
}

func firstIPv4(addrs gopsutilnet.InterfaceAddrList) net.IP {
	for _, a := range addrs {
		host := a.Addr
		if idx := strings.IndexByte(host, '/'); idx >= 0 {
			host = host[:idx]
		}
		ip := net.ParseIP(host)
		if ip != nil && ip.To4() != nil {
			return ip.To4()
		}
	}
	return nil
}

// classifyKind infers an interface's Kind from its name, following the
// naming conventions of Linux, macOS and Windows drivers. There is no
// portable "is this WiFi" syscall, so a name heuristic is the practical
// option every one of these platforms' driver stacks converges on.
func classifyKind(name string) Kind {
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, "wl"), strings.HasPrefix(lower, "wi-fi"), strings.Contains(lower, "wifi"), strings.HasPrefix(lower, "wlan"):
		return KindWiFi
	case strings.HasPrefix(lower, "tun"), strings.HasPrefix(lower, "tap"), strings.HasPrefix(lower, "wg"), strings.HasPrefix(lower, "ppp"), strings.Contains(lower, "vpn"):
		return KindVpn
	case strings.HasPrefix(lower, "eth"), strings.HasPrefix(lower, "en"), strings.HasPrefix(lower, "eno"), strings.HasPrefix(lower, "ens"):
		return KindEthernet
	default:
		return KindOther
	}
}
