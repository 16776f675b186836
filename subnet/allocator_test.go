package subnet

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vnetd/vnetd/neterr"
	"github.com/vnetd/vnetd/netif"
	"github.com/vnetd/vnetd/netif/netiftest"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		cidr    string
		wantErr bool
	}{
		{name: "valid", cidr: "10.1.0.0/24"},
		{name: "garbage", cidr: "not-a-cidr", wantErr: true},
		{name: "host bits set", cidr: "10.1.0.5/24", wantErr: true},
		{name: "ipv6", cidr: "fd00::/64", wantErr: true},
		{name: "missing prefix length", cidr: "10.1.0.0", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.cidr)
			if tc.wantErr {
				require.Error(t, err)
				assert.Equal(t, neterr.OutOfRange, neterr.KindOf(err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func newTestAllocator(fake *netiftest.Adapter) *Allocator {
	return NewAllocator(fake, DefaultParent)
}

func TestAllocateAndList(t *testing.T) {
	a := newTestAllocator(&netiftest.Adapter{})

	sub, err := a.Allocate("10.1.0.0/24")
	require.NoError(t, err)
	assert.Equal(t, "10.1.0.0/24", sub.Network)
	assert.Equal(t, "dummy0", sub.Interface)

	subs := a.List()
	require.Len(t, subs, 1)
	assert.Equal(t, sub, subs[0])
}

func TestAllocateOutOfParentRange(t *testing.T) {
	a := newTestAllocator(&netiftest.Adapter{})

	for _, cidr := range []string{"192.168.0.0/24", "0.0.0.0/0", "11.0.0.0/8"} {
		_, err := a.Allocate(cidr)
		require.Error(t, err, cidr)
		assert.Equal(t, neterr.OutOfRange, neterr.KindOf(err), cidr)
	}
	assert.Empty(t, a.List())
}

func TestAllocateProtectedRange(t *testing.T) {
	// A permissive parent does not make the protected ranges allocatable.
	a := NewAllocator(&netiftest.Adapter{}, netip.MustParsePrefix("0.0.0.0/0"))

	for _, cidr := range []string{"127.0.0.0/8", "127.1.0.0/16", "169.254.0.0/24"} {
		_, err := a.Allocate(cidr)
		require.Error(t, err, cidr)
		assert.Equal(t, neterr.OutOfRange, neterr.KindOf(err), cidr)
	}
}

func TestAllocateOverlap(t *testing.T) {
	fake := &netiftest.Adapter{}
	a := newTestAllocator(fake)

	_, err := a.Allocate("10.1.0.0/24")
	require.NoError(t, err)

	tests := []string{
		"10.1.0.0/25", // contained
		"10.1.0.0/24", // identical
		"10.1.0.0/16", // containing
	}
	for _, cidr := range tests {
		_, err := a.Allocate(cidr)
		require.Error(t, err, cidr)
		assert.Equal(t, neterr.Overlap, neterr.KindOf(err), cidr)
	}
	assert.Len(t, a.List(), 1)
	assert.Equal(t, 1, fake.LiveIfaces())

	// adjacent block is fine
	_, err = a.Allocate("10.1.1.0/24")
	require.NoError(t, err)
}

func TestAllocateAdapterFailureLeavesRegistryUnchanged(t *testing.T) {
	fake := &netiftest.Adapter{CreateSubnetErr: errors.New("link add failed")}
	a := newTestAllocator(fake)

	_, err := a.Allocate("10.1.0.0/24")
	require.Error(t, err)
	assert.Empty(t, a.List())
}

func TestDelete(t *testing.T) {
	fake := &netiftest.Adapter{}
	a := newTestAllocator(fake)

	_, err := a.Allocate("10.1.0.0/24")
	require.NoError(t, err)

	require.NoError(t, a.Delete("10.1.0.0/24"))
	assert.Empty(t, a.List())
	assert.Zero(t, fake.LiveIfaces())

	err = a.Delete("10.1.0.0/24")
	assert.Equal(t, neterr.NotFound, neterr.KindOf(err))
}

func TestDeleteRetainsEntryOnTeardownFailure(t *testing.T) {
	fake := &netiftest.Adapter{}
	a := newTestAllocator(fake)

	_, err := a.Allocate("10.1.0.0/24")
	require.NoError(t, err)

	fake.DestroySubnetErr = errors.New("device busy")
	require.Error(t, a.Delete("10.1.0.0/24"))
	assert.Len(t, a.List(), 1, "entry must not be silently dropped")

	fake.DestroySubnetErr = nil
	require.NoError(t, a.Delete("10.1.0.0/24"))
	assert.Empty(t, a.List())
}

func TestSeed(t *testing.T) {
	fake := &netiftest.Adapter{
		Existing: []netif.ExistingSubnet{
			{Interface: "dummy0", Network: netip.MustParsePrefix("10.2.0.0/24")},
			{Interface: "dummy1", Network: netip.MustParsePrefix("10.2.0.0/25")},    // overlaps the first
			{Interface: "dummy2", Network: netip.MustParsePrefix("192.168.0.0/24")}, // outside parent
		},
	}
	a := newTestAllocator(fake)

	require.NoError(t, a.Seed())
	subs := a.List()
	require.Len(t, subs, 1)
	assert.Equal(t, "10.2.0.0/24", subs[0].Network)
	assert.Equal(t, "dummy0", subs[0].Interface)

	// seeded entries participate in overlap checks
	_, err := a.Allocate("10.2.0.0/16")
	assert.Equal(t, neterr.Overlap, neterr.KindOf(err))
}

func TestShutdown(t *testing.T) {
	fake := &netiftest.Adapter{}
	a := newTestAllocator(fake)

	for _, cidr := range []string{"10.1.0.0/24", "10.2.0.0/24", "10.3.0.0/24"} {
		_, err := a.Allocate(cidr)
		require.NoError(t, err)
	}

	require.NoError(t, a.Shutdown())
	assert.Empty(t, a.List())
	assert.Zero(t, fake.LiveIfaces())
}
