package ssdp

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lumin-project/lumin/internal/netprobe"
)

func TestNew_AppliesDefaults(t *testing.T) {
	e := New(nil, nil, Config{DeviceUUID: testUUID, HTTPPort: 8080, Port: 1900})
	assert.Equal(t, 4, e.cfg.MulticastTTL)
	assert.Equal(t, 30, e.cfg.AnnounceIntervalSec)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "advertising", StateAdvertising.String())
	assert.Equal(t, "suspended", StateSuspended.String())
	assert.Equal(t, "stopping", StateStopping.String())
}

func TestMulticastCapableNames(t *testing.T) {
	ifaces := []netprobe.Interface{
		{Name: "eth0", MulticastCapable: true},
		{Name: "lo", MulticastCapable: false},
		{Name: "wlan0", MulticastCapable: true},
	}
	assert.Equal(t, []string{"eth0", "wlan0"}, multicastCapableNames(ifaces))
}
