package ssdp

import (
	"bufio"
	"fmt"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

const (
	multicastIP = "239.255.255.250"

	ntRootDevice      = "upnp:rootdevice"
	ntMediaServer     = "urn:schemas-upnp-org:device:MediaServer:1"
	ntContentDir      = "urn:schemas-upnp-org:service:ContentDirectory:1"
	ntConnectionMgr   = "urn:schemas-upnp-org:service:ConnectionManager:1"
	serverProductName = "lumin/1.0"
)

// notificationTypes lists every NT this server advertises, per §4.5's
// three ssdp:alive/byebye targets plus the uuid target.
func notificationTypes(deviceUUID string) []string {
	return []string{
		ntRootDevice,
		"uuid:" + deviceUUID,
		ntMediaServer,
		ntContentDir,
		ntConnectionMgr,
	}
}

// usnFor formats the USN header for nt: the bare uuid target is USN itself;
// every other NT is suffixed "::<NT>".
func usnFor(deviceUUID, nt string) string {
	if nt == "uuid:"+deviceUUID {
		return nt
	}
	return "uuid:" + deviceUUID + "::" + nt
}

// buildNotify constructs one ssdp:alive or ssdp:byebye NOTIFY datagram. port
// is the socket the engine actually bound (the configured ssdp_port or one
// of its fallbacks), per §6.2's "HOST: 239.255.255.250:<ssdp_port>".
func buildNotify(nts, location, deviceUUID, nt string, maxAge, port int) []byte {
	var b strings.Builder
	b.WriteString("NOTIFY * HTTP/1.1\r\n")
	fmt.Fprintf(&b, "HOST: %s:%d\r\n", multicastIP, port)
	if nts == "ssdp:alive" {
		fmt.Fprintf(&b, "CACHE-CONTROL: max-age=%d\r\n", maxAge)
		fmt.Fprintf(&b, "LOCATION: %s\r\n", location)
	}
	fmt.Fprintf(&b, "NT: %s\r\n", nt)
	fmt.Fprintf(&b, "NTS: %s\r\n", nts)
	if nts == "ssdp:alive" {
		fmt.Fprintf(&b, "SERVER: UPnP/1.0 %s\r\n", serverProductName)
	}
	fmt.Fprintf(&b, "USN: %s\r\n", usnFor(deviceUUID, nt))
	b.WriteString("\r\n")
	return []byte(b.String())
}

// msearchRequest is a parsed M-SEARCH request.
type msearchRequest struct {
	st string
	mx int
}

// parseMSearch parses an M-SEARCH datagram, returning ok=false for anything
// that isn't a well-formed "MAN: \"ssdp:discover\"" M-SEARCH request.
func parseMSearch(data []byte) (msearchRequest, bool) {
	reader := bufio.NewReader(strings.NewReader(string(data)))
	requestLine, err := reader.ReadString('\n')
	if err != nil || !strings.HasPrefix(requestLine, "M-SEARCH") {
		return msearchRequest{}, false
	}

	tp := textproto.NewReader(reader)
	header, err := tp.ReadMIMEHeader()
	if err != nil && len(header) == 0 {
		return msearchRequest{}, false
	}

	man := strings.Trim(header.Get("Man"), `"`)
	if !strings.EqualFold(man, "ssdp:discover") {
		return msearchRequest{}, false
	}

	mx := 1
	if raw := header.Get("Mx"); raw != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			mx = n
		}
	}
	if mx < 1 {
		mx = 1
	}
	if mx > 5 {
		mx = 5
	}

	return msearchRequest{st: strings.TrimSpace(header.Get("St")), mx: mx}, true
}

// matchingTargets returns every NT the M-SEARCH ST target matches, per
// §4.5: ssdp:all matches everything, upnp:rootdevice/the uuid/any advertised
// URN matches itself only.
func matchingTargets(st, deviceUUID string) []string {
	all := notificationTypes(deviceUUID)
	if st == "ssdp:all" {
		return all
	}
	for _, nt := range all {
		if st == nt {
			return []string{nt}
		}
	}
	return nil
}

// buildMSearchResponse constructs the HTTP/1.1 200 OK unicast response to
// one matched M-SEARCH target.
func buildMSearchResponse(location, deviceUUID, nt string, maxAge int) []byte {
	var b strings.Builder
	b.WriteString("HTTP/1.1 200 OK\r\n")
	fmt.Fprintf(&b, "CACHE-CONTROL: max-age=%d\r\n", maxAge)
	fmt.Fprintf(&b, "DATE: %s\r\n", time.Now().UTC().Format(http.TimeFormat))
	b.WriteString("EXT:\r\n")
	fmt.Fprintf(&b, "LOCATION: %s\r\n", location)
	fmt.Fprintf(&b, "SERVER: UPnP/1.0 %s\r\n", serverProductName)
	fmt.Fprintf(&b, "ST: %s\r\n", nt)
	fmt.Fprintf(&b, "USN: %s\r\n", usnFor(deviceUUID, nt))
	b.WriteString("\r\n")
	return []byte(b.String())
}
