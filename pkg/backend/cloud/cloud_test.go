package cloud

import (
	"testing"

	"github.com/vnetlab/compute/pkg/nio"
)

func TestBridgeNameForIsPerPort(t *testing.T) {
	if got, want := bridgeNameFor(0), "cloud0"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got, want := bridgeNameFor(3), "cloud3"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestHostNIOForDispatchesByKind(t *testing.T) {
	cases := []struct {
		kind PortKind
		want nio.Kind
	}{
		{PortEthernet, nio.KindEthernet},
		{PortTAP, nio.KindTAP},
		{PortVMnet, nio.KindVMnet},
	}
	for _, c := range cases {
		got := hostNIOFor(Port{Kind: c.kind, Interface: "ifc0"})
		if got == nil || got.Kind() != c.want {
			t.Fatalf("hostNIOFor(%v) = %v, want kind %v", c.kind, got, c.want)
		}
	}
}

func TestHostNIOForReturnsNilForUDP(t *testing.T) {
	if got := hostNIOFor(Port{Kind: PortUDP}); got != nil {
		t.Fatalf("expected nil for udp_remote port kind, got %v", got)
	}
}
