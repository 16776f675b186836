// Package subnet owns IPv4 subnet allocation within a bounded parent range.
// Allocated CIDRs never overlap; each one is anchored by an alias or dummy
// interface created through the platform adapter.
package subnet

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

// DefaultParent is the parent range subnets are allocated from.
var DefaultParent = netip.MustParsePrefix("10.0.0.0/8")

// protected ranges are never allocatable, whatever the configured parent.
var protected = []netip.Prefix{
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
}

// Subnet is the API representation of an allocated subnet.
type Subnet struct {
	Network   string `json:"network"`
	Interface string `json:"interface"`
}

type entry struct {
	Subnet
	prefix netip.Prefix
}

// Allocator serializes all subnet mutations behind a single gate, held
// across the nested adapter calls. The overlap check needs a consistent view
// of the whole table.
type Allocator struct {
	mu      sync.Mutex
	adapter netif.Adapter
	parent  netip.Prefix
	subnets map[netip.Prefix]*entry
}

func NewAllocator(adapter netif.Adapter, parent netip.Prefix) *Allocator {
	if !parent.IsValid() {
		parent = DefaultParent
	}
	return &Allocator{
		adapter: adapter,
		parent:  parent.Masked(),
		subnets: make(map[netip.Prefix]*entry),
	}
}

// Parse validates a CIDR string into a canonical IPv4 prefix. Unparseable
// input, host bits, and non-IPv4 prefixes are all OutOfRange.
func Parse(cidr string) (netip.Prefix, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return netip.Prefix{}, neterr.New(neterr.OutOfRange, "invalid CIDR %q: %v", cidr, err)
	}
	if !prefix.Addr().Is4() {
		return netip.Prefix{}, neterr.New(neterr.OutOfRange, "CIDR %s is not IPv4", cidr)
	}
	if prefix != prefix.Masked() {
		return netip.Prefix{}, neterr.New(neterr.OutOfRange, "CIDR %s has host bits set", cidr)
	}
	return prefix, nil
}

// Allocate validates the CIDR against the parent range and every live
// allocation, then creates the anchor interface and records the mapping.
// Adapter failure surfaces without registry mutation.
func (a *Allocator) Allocate(cidr string) (Subnet, error) {
	prefix, err := Parse(cidr)
	if err != nil {
		return Subnet{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.validate(prefix); err != nil {
		return Subnet{}, err
	}
	for _, ent := range a.subnets {
		if ent.prefix.Overlaps(prefix) {
			return Subnet{}, neterr.New(neterr.Overlap, "subnet %s overlaps allocated subnet %s", prefix, ent.prefix)
		}
	}

	iface, err := a.adapter.CreateSubnetIface(prefix)
	if err != nil {
		return Subnet{}, err
	}
	ent := &entry{
		Subnet: Subnet{Network: prefix.String(), Interface: iface},
		prefix: prefix,
	}
	a.subnets[prefix] = ent
	slog.Info("allocated subnet", "network", ent.Network, "interface", iface)
	return ent.Subnet, nil
}

// Delete tears down the anchor interface, then removes the entry. On
// teardown failure the entry is left intact and the error surfaced, so the
// delete is atomic from the caller's perspective.
func (a *Allocator) Delete(cidr string) error {
	prefix, err := Parse(cidr)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	ent, ok := a.subnets[prefix]
	if !ok {
		return neterr.New(neterr.NotFound, "subnet %s not found", prefix)
	}
	if err := a.adapter.DestroySubnetIface(ent.Interface, ent.prefix); err != nil {
		return err
	}
	delete(a.subnets, prefix)
	slog.Info("deleted subnet", "network", ent.Network)
	return nil
}

// List returns a snapshot of allocated subnets, ordered by network.
func (a *Allocator) List() []Subnet {
	a.mu.Lock()
	defer a.mu.Unlock()

	subnets := make([]Subnet, 0, len(a.subnets))
	for _, ent := range a.subnets {
		subnets = append(subnets, ent.Subnet)
	}
	sort.Slice(subnets, func(i, j int) bool { return subnets[i].Network < subnets[j].Network })
	return subnets
}

// Len reports the number of allocated subnets.
func (a *Allocator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.subnets)
}

// Seed registers subnet anchors already present on the host, typically
// leftovers from a previous daemon run. Anchors that fail validation or
// overlap an already seeded entry are skipped with a warning.
func (a *Allocator) Seed() error {
	existing, err := a.adapter.ExistingSubnets(a.parent)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, sub := range existing {
		prefix := sub.Network.Masked()
		if err := a.validate(prefix); err != nil {
			slog.Warn("skipping existing subnet", "network", prefix, "error", err)
			continue
		}
		conflict := false
		for _, ent := range a.subnets {
			if ent.prefix.Overlaps(prefix) {
				slog.Warn("skipping existing subnet overlapping seeded entry",
					"network", prefix, "conflict", ent.prefix)
				conflict = true
				break
			}
		}
		if conflict {
			continue
		}
		a.subnets[prefix] = &entry{
			Subnet: Subnet{Network: prefix.String(), Interface: sub.Interface},
			prefix: prefix,
		}
		slog.Info("registered existing subnet", "network", prefix, "interface", sub.Interface)
	}
	return nil
}

// Shutdown tears down every allocated subnet, collecting per-entry errors
// without aborting early. Entries whose teardown failed stay registered.
func (a *Allocator) Shutdown() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	for prefix, ent := range a.subnets {
		if err := a.adapter.DestroySubnetIface(ent.Interface, ent.prefix); err != nil {
			errs = append(errs, fmt.Errorf("subnet %s: %w", prefix, err))
			continue
		}
		delete(a.subnets, prefix)
	}
	return errors.Join(errs...)
}

// validate checks the prefix against the parent range bound and the
// protected ranges. The comparison is exact: prefixes are integer intervals,
// never approximations.
func (a *Allocator) validate(prefix netip.Prefix) error {
	if prefix.Bits() < a.parent.Bits() || !a.parent.Contains(prefix.Addr()) {
		return neterr.New(neterr.OutOfRange, "subnet %s is not within allowed range %s", prefix, a.parent)
	}
	for _, p := range protected {
		if p.Overlaps(prefix) {
			return neterr.New(neterr.OutOfRange, "subnet %s overlaps protected range %s", prefix, p)
		}
	}
	return nil
}
