// Package device holds the authoritative in-memory table of live TUN
// devices. Every entry owns exactly one adapter handle, released exactly
// once: either by an explicit Remove or by Shutdown.
package device

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sort"
	"sync"

	"github.com/vnetd/vnetd/neterr"
	"github.com/vnetd/vnetd/netif"
)

// Device is the API representation of a live TUN device.
type Device struct {
	Name      string `json:"name"`
	IPAddr    string `json:"ip_addr"`
	Netmask   string `json:"netmask"`
	Broadcast string `json:"broadcast"`
}

type entry struct {
	Device
	handle netif.TunHandle
	block  int
}

// Registry serializes all device mutations behind a single gate, held across
// the nested adapter calls. Invariant checks (name uniqueness, block reuse)
// need a consistent view of the whole table.
type Registry struct {
	mu      sync.Mutex
	adapter netif.Adapter
	devices map[string]*entry
}

func NewRegistry(adapter netif.Adapter) *Registry {
	return &Registry{
		adapter: adapter,
		devices: make(map[string]*entry),
	}
}

// Allocate creates a TUN device, assigns it addressing from the default
// per-device /24 scheme, and commits it to the registry. With an empty
// requestedName the kernel assigns the next free slot in the platform's own
// numbering. On configuration failure the just-created handle is destroyed
// so no partially configured device is ever exposed.
func (r *Registry) Allocate(requestedName string) (Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if requestedName != "" {
		if _, ok := r.devices[requestedName]; ok {
			return Device{}, neterr.New(neterr.NameConflict, "device %s already exists", requestedName)
		}
	}
	block, err := r.freeBlock()
	if err != nil {
		return Device{}, err
	}
	ip, netmask, broadcast := blockAddrs(block)

	handle, err := r.adapter.CreateTun(requestedName)
	if err != nil {
		return Device{}, err
	}
	name := handle.Name()
	if err := r.adapter.ConfigureTun(handle, ip, netmask, broadcast); err != nil {
		// Compensating action: the handle must not outlive a failed
		// configure. If the destroy fails too, the OS resource may be
		// orphaned and the error is surfaced as such.
		if derr := r.adapter.DestroyTun(handle); derr != nil {
			slog.Error("failed to roll back TUN device, resource may be orphaned",
				"device", name, "configure_error", err, "destroy_error", derr)
			return Device{}, &neterr.Error{Kind: neterr.InconsistentState, Err: errors.Join(err, derr)}
		}
		return Device{}, err
	}

	ent := &entry{
		Device: Device{
			Name:      name,
			IPAddr:    ip.String(),
			Netmask:   netmask.String(),
			Broadcast: broadcast.String(),
		},
		handle: handle,
		block:  block,
	}
	r.devices[name] = ent
	slog.Info("created TUN device", "name", name, "ip", ent.IPAddr)
	return ent.Device, nil
}

// Remove destroys the named device. On destruction failure the entry is
// retained so a retry or manual intervention is possible.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ent, ok := r.devices[name]
	if !ok {
		return neterr.New(neterr.NotFound, "device %s not found", name)
	}
	if err := r.adapter.DestroyTun(ent.handle); err != nil {
		return err
	}
	delete(r.devices, name)
	slog.Info("removed TUN device", "name", name)
	return nil
}

// List returns a snapshot of live devices, ordered by name.
func (r *Registry) List() []Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	devices := make([]Device, 0, len(r.devices))
	for _, ent := range r.devices {
		devices = append(devices, ent.Device)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	return devices
}

// Len reports the number of live devices.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.devices)
}

// Shutdown destroys every live device, collecting per-entry errors without
// aborting early. Entries whose destruction failed stay in the registry.
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, ent := range r.devices {
		if err := r.adapter.DestroyTun(ent.handle); err != nil {
			errs = append(errs, fmt.Errorf("device %s: %w", name, err))
			continue
		}
		delete(r.devices, name)
	}
	return errors.Join(errs...)
}

// freeBlock returns the lowest 10.0.<n>.0/24 block index not assigned to a
// live device. Freed blocks are reused.
func (r *Registry) freeBlock() (int, error) {
	used := make(map[int]bool, len(r.devices))
	for _, ent := range r.devices {
		used[ent.block] = true
	}
	for n := 0; n < 256; n++ {
		if !used[n] {
			return n, nil
		}
	}
	return 0, neterr.New(neterr.ResourceExhausted, "no free /24 blocks in the default allocation range")
}

func blockAddrs(n int) (ip, netmask, broadcast netip.Addr) {
	ip = netip.AddrFrom4([4]byte{10, 0, byte(n), 1})
	netmask = netip.AddrFrom4([4]byte{255, 255, 255, 0})
	broadcast = netip.AddrFrom4([4]byte{10, 0, byte(n), 255})
	return ip, netmask, broadcast
}
