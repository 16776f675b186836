// Package netiftest provides an in-memory Adapter for tests. It emulates
// the platform naming schemes and records every create/destroy call so tests
// can verify rollback behavior.
package netiftest

import (
	"bytes"
	"fmt"
	"net/netip"
	"sync"

	"github.com/vnetd/vnetd/neterr"
	"github.com/vnetd/vnetd/netif"
)

// Call records one adapter invocation.
type Call struct {
	Op   string // "create_tun", "destroy_tun", "configure", "create_subnet", "destroy_subnet"
	Name string
}

// Adapter is a fake netif.Adapter. Error fields, when set, are returned by
// the corresponding operation. The zero value is ready to use.
type Adapter struct {
	CreateTunErr     error
	ConfigureErr     error
	DestroyTunErr    error
	CreateSubnetErr  error
	DestroySubnetErr error

	// Existing is returned by ExistingSubnets.
	Existing []netif.ExistingSubnet

	mu    sync.Mutex
	calls []Call
	tuns  map[string]bool
	ifcs  map[string]bool
}

type handle struct {
	bytes.Buffer
	name string
}

func (h *handle) Name() string { return h.name }
func (h *handle) Close() error { return nil }

func (f *Adapter) CreateTun(nameHint string) (netif.TunHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create_tun", nameHint)
	if f.CreateTunErr != nil {
		return nil, f.CreateTunErr
	}
	if f.tuns == nil {
		f.tuns = make(map[string]bool)
	}
	name := nameHint
	if name == "" {
		// the kernel assigns the lowest free slot
		for i := 0; ; i++ {
			name = fmt.Sprintf("tun%d", i)
			if !f.tuns[name] {
				break
			}
		}
	} else if f.tuns[name] {
		return nil, neterr.New(neterr.NameConflict, "device %s is busy", name)
	}
	f.tuns[name] = true
	return &handle{name: name}, nil
}

func (f *Adapter) DestroyTun(h netif.TunHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("destroy_tun", h.Name())
	if f.DestroyTunErr != nil {
		return f.DestroyTunErr
	}
	delete(f.tuns, h.Name())
	return nil
}

func (f *Adapter) ConfigureTun(h netif.TunHandle, ip, netmask, broadcast netip.Addr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("configure", h.Name())
	return f.ConfigureErr
}

func (f *Adapter) CreateSubnetIface(network netip.Prefix) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateSubnetErr != nil {
		f.record("create_subnet", "")
		return "", f.CreateSubnetErr
	}
	if f.ifcs == nil {
		f.ifcs = make(map[string]bool)
	}
	var name string
	for i := 0; ; i++ {
		name = fmt.Sprintf("dummy%d", i)
		if !f.ifcs[name] {
			break
		}
	}
	f.ifcs[name] = true
	f.record("create_subnet", name)
	return name, nil
}

func (f *Adapter) DestroySubnetIface(name string, network netip.Prefix) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("destroy_subnet", name)
	if f.DestroySubnetErr != nil {
		return f.DestroySubnetErr
	}
	delete(f.ifcs, name)
	return nil
}

func (f *Adapter) ExistingSubnets(parent netip.Prefix) ([]netif.ExistingSubnet, error) {
	return f.Existing, nil
}

// Calls returns every recorded invocation in order.
func (f *Adapter) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// LiveTuns reports how many fake TUN devices are currently attached.
func (f *Adapter) LiveTuns() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tuns)
}

// LiveIfaces reports how many fake subnet anchors currently exist.
func (f *Adapter) LiveIfaces() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ifcs)
}

func (f *Adapter) record(op, name string) {
	f.calls = append(f.calls, Call{Op: op, Name: name})
}
