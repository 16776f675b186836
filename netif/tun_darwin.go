//go:build darwin

package netif

import (
	"fmt"
	"net"
	"net/netip"
	"os/exec"
	"strings"

	"github.com/songgao/water"

	"github.com/vnetd/vnetd/neterr"
)

type darwinAdapter struct{}

func newAdapter() Adapter {
	return &darwinAdapter{}
}

type tunHandle struct {
	*water.Interface
}

// CreateTun attaches a utun device through the kernel control socket. The
// kernel only accepts names of the form utun<n>, so a nameHint outside that
// scheme fails before any device is created.
func (a *darwinAdapter) CreateTun(nameHint string) (TunHandle, error) {
	ifce, err := water.New(water.Config{
		DeviceType: water.TUN,
		PlatformSpecificParams: water.PlatformSpecificParams{
			Name: nameHint,
		},
	})
	if err != nil {
		if nameHint != "" && strings.Contains(err.Error(), "busy") {
			return nil, neterr.Wrap(neterr.NameConflict, err)
		}
		return nil, classify(fmt.Errorf("failed to create utun interface: %w", err))
	}
	return &tunHandle{ifce}, nil
}

func (a *darwinAdapter) DestroyTun(h TunHandle) error {
	// Closing the control socket detaches the utun device.
	if err := h.Close(); err != nil {
		return classify(fmt.Errorf("failed to close utun interface %s: %w", h.Name(), err))
	}
	return nil
}

func (a *darwinAdapter) ConfigureTun(h TunHandle, ip, netmask, broadcast netip.Addr) error {
	name := h.Name()
	// utun is point-to-point: source and destination are the same address.
	err := runIfconfig(name, ip.String(), ip.String(), "netmask", netmaskString(netmask), "up")
	if err != nil {
		return fmt.Errorf("failed to configure utun interface %s: %w", name, err)
	}
	return nil
}

func netmaskString(netmask netip.Addr) string {
	return net.IP(netmask.AsSlice()).String()
}

// runIfconfig runs ifconfig with the given arguments, translating a non-zero
// exit into the error taxonomy with the command output as detail.
func runIfconfig(args ...string) error {
	out, err := exec.Command("ifconfig", args...).CombinedOutput()
	if err == nil {
		return nil
	}
	detail := strings.TrimSpace(string(out))
	if detail == "" {
		detail = err.Error()
	}
	if strings.Contains(strings.ToLower(detail), "permission denied") {
		return neterr.New(neterr.PermissionDenied, "ifconfig %s: %s", strings.Join(args, " "), detail)
	}
	return neterr.New(neterr.PlatformFailure, "ifconfig %s: %s", strings.Join(args, " "), detail)
}
