// Package netif wraps the OS-specific mechanisms for attaching TUN
// pseudo-devices and for creating the alias/dummy interfaces that anchor
// allocated subnets. Exactly one concrete implementation is compiled per
// target platform; the registry and allocator are written against the
// Adapter contract only.
package netif

import (
	"io"
	"net/netip"
)

// TunHandle is an attached TUN device. The handle exclusively owns the
// underlying file descriptor; closing it detaches the device.
type TunHandle interface {
	io.ReadWriteCloser

	// Name returns the interface name the kernel assigned to the device.
	Name() string
}

// ExistingSubnet is a subnet anchor discovered on the host at startup.
type ExistingSubnet struct {
	Interface string
	Network   netip.Prefix
}

// Adapter is the platform capability set used by the device registry and the
// subnet allocator. Implementations translate OS error codes into the neterr
// taxonomy and never panic on expected failures.
type Adapter interface {
	// CreateTun attaches a new TUN device. If nameHint is non-empty the
	// exact-name attach path is used and a NameConflict error is returned
	// when that name is unavailable; otherwise the kernel assigns the next
	// free slot in the platform's own numbering.
	CreateTun(nameHint string) (TunHandle, error)

	// DestroyTun releases the device. Callers must call at most once per
	// handle.
	DestroyTun(h TunHandle) error

	// ConfigureTun applies addressing to the device and brings it
	// administratively up.
	ConfigureTun(h TunHandle, ip, netmask, broadcast netip.Addr) error

	// CreateSubnetIface creates an alias or dummy interface carrying the
	// subnet's first usable address, used purely as a routing anchor.
	CreateSubnetIface(network netip.Prefix) (string, error)

	// DestroySubnetIface removes the anchor created for network.
	DestroySubnetIface(name string, network netip.Prefix) error

	// ExistingSubnets lists subnet anchors already present on the host,
	// so a restarted daemon can re-register them.
	ExistingSubnets(parent netip.Prefix) ([]ExistingSubnet, error)
}

// New returns the adapter for the current platform.
func New() Adapter {
	return newAdapter()
}
