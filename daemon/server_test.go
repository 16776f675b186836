package daemon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnetd/vnetd/device"
	"github.com/vnetd/vnetd/netif/netiftest"
	"github.com/vnetd/vnetd/subnet"
)

func newTestServer(fake *netiftest.Adapter) *Server {
	return NewServer(
		device.NewRegistry(fake),
		subnet.NewAllocator(fake, subnet.DefaultParent),
	)
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestTunLifecycle(t *testing.T) {
	s := newTestServer(&netiftest.Adapter{})

	// first device on an empty registry gets the platform's first free slot
	rec := doJSON(t, s, http.MethodPost, "/tun", `{}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var dev device.Device
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dev))
	assert.Equal(t, "tun0", dev.Name)
	assert.Equal(t, "10.0.0.1", dev.IPAddr)
	assert.Equal(t, "255.255.255.0", dev.Netmask)
	assert.Equal(t, "10.0.0.255", dev.Broadcast)

	rec = doJSON(t, s, http.MethodGet, "/tun", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var devices []device.Device
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &devices))
	require.Len(t, devices, 1)
	assert.Equal(t, dev, devices[0])
}

func TestTunNamedCreateConflict(t *testing.T) {
	s := newTestServer(&netiftest.Adapter{})

	rec := doJSON(t, s, http.MethodPost, "/tun", `{"name":"tun9"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodPost, "/tun", `{"name":"tun9"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, "NameConflict", apiErr.Error)
	assert.NotEmpty(t, apiErr.Message)
}

func TestTunMalformedBody(t *testing.T) {
	fake := &netiftest.Adapter{}
	s := newTestServer(fake)

	rec := doJSON(t, s, http.MethodPost, "/tun", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	// fail fast: no adapter call, no registry mutation
	assert.Empty(t, fake.Calls())
}

func TestSubnetLifecycle(t *testing.T) {
	s := newTestServer(&netiftest.Adapter{})

	rec := doJSON(t, s, http.MethodPost, "/subnet", `{"cidr":"10.1.0.0/24"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var sub subnet.Subnet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sub))
	assert.Equal(t, "10.1.0.0/24", sub.Network)
	assert.NotEmpty(t, sub.Interface)

	// overlapping allocation is rejected and the registry is unchanged
	rec = doJSON(t, s, http.MethodPost, "/subnet", `{"cidr":"10.1.0.0/25"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, "Overlap", apiErr.Error)

	rec = doJSON(t, s, http.MethodGet, "/subnet", "")
	var subs []subnet.Subnet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &subs))
	require.Len(t, subs, 1)

	// the CIDR path segment is percent-encoded
	rec = doJSON(t, s, http.MethodDelete, "/subnet/10.1.0.0%2F24", "")
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = doJSON(t, s, http.MethodGet, "/subnet", "")
	subs = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &subs))
	assert.Empty(t, subs)
}

func TestSubnetBadRequests(t *testing.T) {
	fake := &netiftest.Adapter{}
	s := newTestServer(fake)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"cidr"`},
		{name: "missing cidr", body: `{}`},
		{name: "invalid cidr", body: `{"cidr":"not-a-cidr"}`},
		{name: "out of range", body: `{"cidr":"192.168.0.0/24"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, s, http.MethodPost, "/subnet", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Empty(t, fake.Calls(), "bad requests must not reach the adapter")
}

func TestSubnetDeleteNotFound(t *testing.T) {
	s := newTestServer(&netiftest.Adapter{})

	rec := doJSON(t, s, http.MethodDelete, "/subnet/10.9.0.0%2F24", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, "NotFound", apiErr.Error)
}

func TestStatusHandler(t *testing.T) {
	s := newTestServer(&netiftest.Adapter{})

	rec := doJSON(t, s, http.MethodPost, "/tun", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, s, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status daemonStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "running", status.State)
	assert.Equal(t, 1, status.Devices)
	assert.Equal(t, 0, status.Subnets)
	assert.Positive(t, status.Goroutines)
}

func TestHealthRoot(t *testing.T) {
	s := newTestServer(&netiftest.Adapter{})
	rec := doJSON(t, s, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
