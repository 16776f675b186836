//go:build linux

package netif

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/songgao/water"
	"github.com/vishvananda/netlink"
)

type linuxAdapter struct{}

func newAdapter() Adapter {
	return &linuxAdapter{}
}

type tunHandle struct {
	*water.Interface
}

func (a *linuxAdapter) CreateTun(nameHint string) (TunHandle, error) {
	ifce, err := water.New(water.Config{
		DeviceType: water.TUN,
		PlatformSpecificParams: water.PlatformSpecificParams{
			Name: nameHint,
			// do not persist the TUN device after the process exits
			Persist: false,
		},
	})
	if err != nil {
		return nil, classify(fmt.Errorf("failed to create TUN interface: %w", err))
	}
	return &tunHandle{ifce}, nil
}

func (a *linuxAdapter) DestroyTun(h TunHandle) error {
	name := h.Name()
	if err := h.Close(); err != nil {
		return classify(fmt.Errorf("failed to close TUN interface %s: %w", name, err))
	}
	// A non-persistent device disappears when its fd closes; delete any
	// leftover link so a half-torn-down device cannot linger.
	if link, err := netlink.LinkByName(name); err == nil {
		if err := netlink.LinkDel(link); err != nil {
			return classify(fmt.Errorf("failed to delete link %s: %w", name, err))
		}
	}
	return nil
}

func (a *linuxAdapter) ConfigureTun(h TunHandle, ip, netmask, broadcast netip.Addr) error {
	name := h.Name()
	link, err := netlink.LinkByName(name)
	if err != nil {
		return classify(fmt.Errorf("could not find TUN interface %s: %w", name, err))
	}
	ones, _ := net.IPMask(netmask.AsSlice()).Size()
	addr := &netlink.Addr{
		IPNet: &net.IPNet{
			IP:   net.IP(ip.AsSlice()),
			Mask: net.CIDRMask(ones, 32),
		},
		Broadcast: net.IP(broadcast.AsSlice()),
	}
	if err := netlink.AddrAdd(link, addr); err != nil {
		return classify(fmt.Errorf("failed to set IP address on TUN interface %s: %w", name, err))
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return classify(fmt.Errorf("failed to bring up TUN interface %s: %w", name, err))
	}
	return nil
}
