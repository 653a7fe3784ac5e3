package registry

import (
	"context"
	"testing"

	"github.com/vnetlab/compute/pkg/nio"
)

func TestAdapterKeyFormat(t *testing.T) {
	if got := adapterKey(1, 2); got != "1/2" {
		t.Fatalf("adapterKey = %q, want %q", got, "1/2")
	}
}

func TestLinkSpecToNIO(t *testing.T) {
	cases := []struct {
		spec LinkSpec
		kind nio.Kind
	}{
		{LinkSpec{NIOKind: "nio_udp", LPort: 1, RHost: "127.0.0.1", RPort: 2}, nio.KindUDP},
		{LinkSpec{NIOKind: "nio_ethernet", Iface: "eth0"}, nio.KindEthernet},
		{LinkSpec{NIOKind: "nio_tap", Iface: "tap0"}, nio.KindTAP},
		{LinkSpec{NIOKind: "nio_vmnet", Iface: "vmnet0"}, nio.KindVMnet},
	}
	for _, tc := range cases {
		got, err := tc.spec.toNIO()
		if err != nil {
			t.Fatalf("toNIO(%q): %v", tc.spec.NIOKind, err)
		}
		if got.Kind() != tc.kind {
			t.Fatalf("toNIO(%q).Kind() = %v, want %v", tc.spec.NIOKind, got.Kind(), tc.kind)
		}
	}
}

func TestLinkSpecToNIOUnknownKindErrors(t *testing.T) {
	_, err := LinkSpec{NIOKind: "nio_bogus"}.toNIO()
	if err == nil {
		t.Fatalf("expected error for unknown nio kind")
	}
}

func TestLinkSpecToAdapterRecordRoundTrip(t *testing.T) {
	spec := LinkSpec{
		Adapter: 0, Port: 1,
		NIOKind: "nio_udp", LPort: 10000, RHost: "10.0.0.1", RPort: 10001,
		PortType: "dot1q", VLAN: 42,
	}
	rec := spec.toAdapterRecord()
	if rec.NIOKind != spec.NIOKind || rec.LPort != spec.LPort || rec.RHost != spec.RHost ||
		rec.RPort != spec.RPort || rec.PortType != spec.PortType || rec.VLAN != spec.VLAN {
		t.Fatalf("toAdapterRecord mismatch: %+v vs spec %+v", rec, spec)
	}
}

func TestAddLinkUnknownNodeErrors(t *testing.T) {
	cfg := testConfig(t)
	s := freshState("p1")
	err := AddLink(cfg, s, "ghost", LinkSpec{NIOKind: "nio_udp"})
	if err == nil {
		t.Fatalf("expected error wiring a link on an unregistered node")
	}
}

func TestRemoveLinkUnknownNodeErrors(t *testing.T) {
	cfg := testConfig(t)
	s := freshState("p1")
	if err := RemoveLink(cfg, s, "ghost", 0, 0); err == nil {
		t.Fatalf("expected error removing a link from an unregistered node")
	}
}

func TestStartCaptureUnknownNodeErrors(t *testing.T) {
	cfg := testConfig(t)
	s := freshState("p1")
	if err := StartCapture(cfg, s, "ghost", 0, 0, "/tmp/x.pcap", "DLT_EN10MB"); err == nil {
		t.Fatalf("expected error starting a capture on an unregistered node")
	}
}

func TestStartCaptureOnL2SwitchErrorsNotSupported(t *testing.T) {
	cfg := testConfig(t)
	s := freshState("p1")
	if _, err := CreateNode(context.Background(), cfg, s, "sw1", KindL2Switch, nil); err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	if err := StartCapture(cfg, s, "sw1", 0, 0, "/tmp/x.pcap", "DLT_EN10MB"); err == nil {
		t.Fatalf("expected error: l2switch does not implement Capture")
	}
}
