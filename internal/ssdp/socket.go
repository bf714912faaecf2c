package ssdp

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
)

// openMulticastListener binds a UDP4 socket on port and wraps it with the
// extended IPv4 packet-connection primitives the standard net package does
// not expose (JoinGroup/SetMulticastInterface/SetMulticastTTL — §4.5,
// §10.4). It tries the fallback ports in order if the primary port fails
// with a permission or address-in-use error.
func openMulticastListener(port int, fallback []int) (*ipv4.PacketConn, int, error) {
	ports := append([]int{port}, fallback...)
	var lastErr error

	for _, p := range ports {
		conn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", p))
		if err != nil {
			lastErr = err
			continue
		}
		return ipv4.NewPacketConn(conn), p, nil
	}
	return nil, 0, fmt.Errorf("ssdp: no usable port among %v: %w", ports, lastErr)
}

// groupAddr is the SSDP multicast group address on port, the socket the
// engine actually bound (§4.5, §10.4).
func groupAddr(port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(239, 255, 255, 250), Port: port}
}

// joinInterfaces joins pc to the SSDP multicast group on every given
// network interface, skipping (and reporting in the returned map of
// failures, keyed by interface name) any interface that refuses to join.
func joinInterfaces(pc *ipv4.PacketConn, port int, names []string) (joined []string, failed map[string]error) {
	failed = make(map[string]error)
	group := groupAddr(port)

	for _, name := range names {
		ifi, err := net.InterfaceByName(name)
		if err != nil {
			failed[name] = err
			continue
		}
		if err := pc.JoinGroup(ifi, group); err != nil {
			failed[name] = err
			continue
		}
		joined = append(joined, name)
	}
	return joined, failed
}
