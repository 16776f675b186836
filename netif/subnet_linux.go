//go:build linux

package netif

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"

	"github.com/vnetd/vnetd/neterr"
)

const maxDummyIfaces = 255

// CreateSubnetIface creates a dummy-type link carrying the subnet's first
// usable address and brings it up. The link anchors routing for the subnet;
// it carries no traffic itself.
func (a *linuxAdapter) CreateSubnetIface(network netip.Prefix) (string, error) {
	name, err := freeDummyName()
	if err != nil {
		return "", err
	}
	link := &netlink.Dummy{LinkAttrs: netlink.LinkAttrs{Name: name}}
	if err := netlink.LinkAdd(link); err != nil {
		return "", classify(fmt.Errorf("failed to create dummy interface %s: %w", name, err))
	}
	if err := netlink.AddrAdd(link, anchorAddr(network)); err != nil {
		netlink.LinkDel(link)
		return "", classify(fmt.Errorf("failed to configure address on %s: %w", name, err))
	}
	if err := netlink.LinkSetUp(link); err != nil {
		netlink.LinkDel(link)
		return "", classify(fmt.Errorf("failed to bring up interface %s: %w", name, err))
	}
	return name, nil
}

func (a *linuxAdapter) DestroySubnetIface(name string, network netip.Prefix) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return classify(fmt.Errorf("could not find interface %s: %w", name, err))
	}
	if err := netlink.AddrDel(link, anchorAddr(network)); err != nil {
		return classify(fmt.Errorf("failed to remove address from %s: %w", name, err))
	}
	if err := netlink.LinkDel(link); err != nil {
		return classify(fmt.Errorf("failed to remove interface %s: %w", name, err))
	}
	return nil
}

func (a *linuxAdapter) ExistingSubnets(parent netip.Prefix) ([]ExistingSubnet, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list links: %w", err))
	}
	var subnets []ExistingSubnet
	for _, link := range links {
		if _, ok := link.(*netlink.Dummy); !ok {
			continue
		}
		addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
		if err != nil {
			return nil, classify(fmt.Errorf("failed to list addresses on %s: %w", link.Attrs().Name, err))
		}
		for _, addr := range addrs {
			prefix, ok := prefixFromIPNet(addr.IPNet)
			if !ok || !parent.Contains(prefix.Addr()) {
				continue
			}
			subnets = append(subnets, ExistingSubnet{
				Interface: link.Attrs().Name,
				Network:   prefix.Masked(),
			})
		}
	}
	return subnets, nil
}

// freeDummyName returns the lowest-numbered dummy interface name not present
// on the host.
func freeDummyName() (string, error) {
	for i := 0; i < maxDummyIfaces; i++ {
		name := fmt.Sprintf("dummy%d", i)
		if _, err := netlink.LinkByName(name); err != nil {
			return name, nil
		}
	}
	return "", neterr.New(neterr.ResourceExhausted, "no available dummy interfaces")
}

func anchorAddr(network netip.Prefix) *netlink.Addr {
	return &netlink.Addr{
		IPNet: &net.IPNet{
			IP:   net.IP(firstUsable(network).AsSlice()),
			Mask: net.CIDRMask(network.Bits(), 32),
		},
	}
}

func prefixFromIPNet(ipNet *net.IPNet) (netip.Prefix, bool) {
	ip, ok := netip.AddrFromSlice(ipNet.IP.To4())
	if !ok {
		return netip.Prefix{}, false
	}
	ones, bits := ipNet.Mask.Size()
	if bits != 32 {
		return netip.Prefix{}, false
	}
	return netip.PrefixFrom(ip, ones), true
}
