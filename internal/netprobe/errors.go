package netprobe

import "errors"

// ErrNoInterfaces is returned when the host has no interface NetworkProbe
// considers usable, not even a loopback fallback.
var ErrNoInterfaces = errors.New("netprobe: no usable network interface found")
