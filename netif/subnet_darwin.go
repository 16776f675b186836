//go:build darwin

package netif

import (
	"fmt"
	"net/netip"
	"os/exec"
	"strconv"
	"strings"
)

// loopbackIface is the interface carrying subnet anchor aliases on macOS,
// which has no dummy link type.
const loopbackIface = "lo0"

func (a *darwinAdapter) CreateSubnetIface(network netip.Prefix) (string, error) {
	addr := firstUsable(network)
	mask := netmaskString(maskAddr(network.Bits()))
	if err := runIfconfig(loopbackIface, "alias", addr.String(), "netmask", mask); err != nil {
		return "", fmt.Errorf("failed to configure subnet alias on %s: %w", loopbackIface, err)
	}
	return loopbackIface, nil
}

func (a *darwinAdapter) DestroySubnetIface(name string, network netip.Prefix) error {
	addr := firstUsable(network)
	if err := runIfconfig(name, "-alias", addr.String()); err != nil {
		return fmt.Errorf("failed to remove subnet alias from %s: %w", name, err)
	}
	return nil
}

// ExistingSubnets parses the lo0 alias list for addresses inside the parent
// range. ifconfig prints netmasks in hex, e.g. "netmask 0xffffff00".
func (a *darwinAdapter) ExistingSubnets(parent netip.Prefix) ([]ExistingSubnet, error) {
	out, err := exec.Command("ifconfig", loopbackIface).CombinedOutput()
	if err != nil {
		return nil, classify(fmt.Errorf("failed to inspect %s: %w", loopbackIface, err))
	}
	var subnets []ExistingSubnet
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(strings.TrimSpace(line))
		if len(fields) < 4 || fields[0] != "inet" || fields[2] != "netmask" {
			continue
		}
		addr, err := netip.ParseAddr(fields[1])
		if err != nil || !parent.Contains(addr) {
			continue
		}
		bits, ok := prefixLenFromHexMask(fields[3])
		if !ok {
			continue
		}
		prefix := netip.PrefixFrom(addr, bits).Masked()
		subnets = append(subnets, ExistingSubnet{Interface: loopbackIface, Network: prefix})
	}
	return subnets, nil
}

func prefixLenFromHexMask(mask string) (int, bool) {
	raw, err := strconv.ParseUint(strings.TrimPrefix(mask, "0x"), 16, 32)
	if err != nil {
		return 0, false
	}
	// Valid netmasks are a run of ones followed by zeros.
	m := uint32(raw)
	ones := 32
	for m != 0 && m&1 == 0 {
		m >>= 1
		ones--
	}
	for i := 0; i < ones; i++ {
		if m&1 == 0 {
			return 0, false
		}
		m >>= 1
	}
	return ones, true
}

func maskAddr(bits int) netip.Addr {
	var mask [4]byte
	for i := 0; i < bits; i++ {
		mask[i/8] |= 1 << (7 - i%8)
	}
	return netip.AddrFrom4(mask)
}
