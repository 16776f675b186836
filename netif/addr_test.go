package netif

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstUsable(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{prefix: "10.1.0.0/24", want: "10.1.0.1"},
		{prefix: "10.0.0.0/8", want: "10.0.0.1"},
		{prefix: "10.1.2.0/31", want: "10.1.2.0"},
		{prefix: "10.1.2.3/32", want: "10.1.2.3"},
	}
	for _, tc := range tests {
		got := firstUsable(netip.MustParsePrefix(tc.prefix))
		assert.Equal(t, tc.want, got.String(), tc.prefix)
	}
}
