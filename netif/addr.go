package netif

import "net/netip"

// firstUsable returns the first host address of the prefix, or the network
// address itself for /31 and /32 where no distinct host address exists.
func firstUsable(p netip.Prefix) netip.Addr {
	if p.Bits() >= 31 {
		return p.Masked().Addr()
	}
	return p.Masked().Addr().Next()
}
