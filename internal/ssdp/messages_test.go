package ssdp

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUUID = "4d696e75-6c75-6d69-6e75-6c756d696e75"

func TestUsnFor(t *testing.T) {
	assert.Equal(t, "uuid:"+testUUID, usnFor(testUUID, "uuid:"+testUUID))
	assert.Equal(t, "uuid:"+testUUID+"::"+ntContentDir, usnFor(testUUID, ntContentDir))
}

func TestBuildNotify_Alive(t *testing.T) {
	msg := string(buildNotify("ssdp:alive", "http://10.0.0.5:8080/description.xml", testUUID, ntMediaServer, 1800, 1900))
	assert.True(t, strings.HasPrefix(msg, "NOTIFY * HTTP/1.1\r\n"))
	assert.Contains(t, msg, "HOST: 239.255.255.250:1900\r\n")
	assert.Contains(t, msg, "NTS: ssdp:alive\r\n")
	assert.Contains(t, msg, "CACHE-CONTROL: max-age=1800\r\n")
	assert.Contains(t, msg, "LOCATION: http://10.0.0.5:8080/description.xml\r\n")
	assert.Contains(t, msg, "USN: uuid:"+testUUID+"::"+ntMediaServer+"\r\n")
}

func TestBuildNotify_Byebye_OmitsLocationAndCacheControl(t *testing.T) {
	msg := string(buildNotify("ssdp:byebye", "http://10.0.0.5:8080/description.xml", testUUID, ntMediaServer, 1800, 1900))
	assert.Contains(t, msg, "NTS: ssdp:byebye\r\n")
	assert.NotContains(t, msg, "LOCATION:")
	assert.NotContains(t, msg, "CACHE-CONTROL:")
}

func TestBuildNotify_UsesFallbackPortInHost(t *testing.T) {
	msg := string(buildNotify("ssdp:alive", "http://10.0.0.5:8080/description.xml", testUUID, ntMediaServer, 1800, 1901))
	assert.Contains(t, msg, "HOST: 239.255.255.250:1901\r\n")
}

func TestParseMSearch_Valid(t *testing.T) {
	raw := "M-SEARCH * HTTP/1.1\r\nHOST: 239.255.255.250:1900\r\nMAN: \"ssdp:discover\"\r\nMX: 3\r\nST: ssdp:all\r\n\r\n"
	req, ok := parseMSearch([]byte(raw))
	require.True(t, ok)
	assert.Equal(t, "ssdp:all", req.st)
	assert.Equal(t, 3, req.mx)
}

func TestParseMSearch_ClampsMX(t *testing.T) {
	raw := "M-SEARCH * HTTP/1.1\r\nMAN: \"ssdp:discover\"\r\nMX: 99\r\nST: upnp:rootdevice\r\n\r\n"
	req, ok := parseMSearch([]byte(raw))
	require.True(t, ok)
	assert.Equal(t, 5, req.mx)

	raw2 := "M-SEARCH * HTTP/1.1\r\nMAN: \"ssdp:discover\"\r\nMX: 0\r\nST: upnp:rootdevice\r\n\r\n"
	req2, ok := parseMSearch([]byte(raw2))
	require.True(t, ok)
	assert.Equal(t, 1, req2.mx)
}

func TestParseMSearch_MissingMXDefaultsToOne(t *testing.T) {
	raw := "M-SEARCH * HTTP/1.1\r\nMAN: \"ssdp:discover\"\r\nST: upnp:rootdevice\r\n\r\n"
	req, ok := parseMSearch([]byte(raw))
	require.True(t, ok)
	assert.Equal(t, 1, req.mx)
}

func TestParseMSearch_RejectsNonDiscoverMan(t *testing.T) {
	raw := "M-SEARCH * HTTP/1.1\r\nMAN: \"ssdp:foo\"\r\nST: upnp:rootdevice\r\n\r\n"
	_, ok := parseMSearch([]byte(raw))
	assert.False(t, ok)
}

func TestParseMSearch_RejectsNonMSearchRequest(t *testing.T) {
	raw := "NOTIFY * HTTP/1.1\r\nNTS: ssdp:alive\r\n\r\n"
	_, ok := parseMSearch([]byte(raw))
	assert.False(t, ok)
}

func TestMatchingTargets_All(t *testing.T) {
	targets := matchingTargets("ssdp:all", testUUID)
	assert.Len(t, targets, 5)
}

func TestMatchingTargets_SpecificURN(t *testing.T) {
	targets := matchingTargets(ntContentDir, testUUID)
	assert.Equal(t, []string{ntContentDir}, targets)
}

func TestMatchingTargets_UUID(t *testing.T) {
	targets := matchingTargets("uuid:"+testUUID, testUUID)
	assert.Equal(t, []string{"uuid:" + testUUID}, targets)
}

func TestMatchingTargets_NoMatch(t *testing.T) {
	targets := matchingTargets("urn:schemas-upnp-org:device:Printer:1", testUUID)
	assert.Nil(t, targets)
}

func TestBuildMSearchResponse(t *testing.T) {
	resp := string(buildMSearchResponse("http://10.0.0.5:8080/description.xml", testUUID, ntRootDevice, 1800))
	assert.True(t, strings.HasPrefix(resp, "HTTP/1.1 200 OK\r\n"))
	assert.Contains(t, resp, "ST: "+ntRootDevice+"\r\n")
	assert.Contains(t, resp, "USN: uuid:"+testUUID+"::"+ntRootDevice+"\r\n")
	assert.Contains(t, resp, "EXT:\r\n")
}

func TestJitter_StaysWithinRange(t *testing.T) {
	for i := 0; i < 50; i++ {
		d := jitter(100*time.Millisecond, 200*time.Millisecond)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.Less(t, d, 200*time.Millisecond)
	}
}

func TestJitter_ZeroRangeCollapsesToMin(t *testing.T) {
	assert.Equal(t, 5*time.Second, jitter(5*time.Second, 5*time.Second))
}
