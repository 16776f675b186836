//go:build !linux && !darwin

package netif

import (
	"net/netip"
	"runtime"

	"github.com/vnetd/vnetd/neterr"
)

type unsupportedAdapter struct{}

func newAdapter() Adapter {
	return unsupportedAdapter{}
}

func errUnsupported() error {
	return neterr.New(neterr.PlatformFailure, "virtual interface management is not supported on %s", runtime.GOOS)
}

func (unsupportedAdapter) CreateTun(string) (TunHandle, error) { return nil, errUnsupported() }
func (unsupportedAdapter) DestroyTun(TunHandle) error          { return errUnsupported() }
func (unsupportedAdapter) ConfigureTun(TunHandle, netip.Addr, netip.Addr, netip.Addr) error {
	return errUnsupported()
}
func (unsupportedAdapter) CreateSubnetIface(netip.Prefix) (string, error) {
	return "", errUnsupported()
}
func (unsupportedAdapter) DestroySubnetIface(string, netip.Prefix) error { return errUnsupported() }
func (unsupportedAdapter) ExistingSubnets(netip.Prefix) ([]ExistingSubnet, error) {
	return nil, errUnsupported()
}
