package corenode

import (
	"strings"
	"testing"

	"github.com/vnetlab/compute/pkg/nio"
)

func TestAttachCommandUDP(t *testing.T) {
	n := nio.NewUDP(10010, "127.0.0.1", 10011)
	cmd, err := attachCommand("bridge0", n)
	if err != nil {
		t.Fatalf("attachCommand: %v", err)
	}
	want := "bridge add_nio_udp bridge0 10010 127.0.0.1 10011"
	if cmd != want {
		t.Fatalf("got %q, want %q", cmd, want)
	}
}

func TestAttachCommandEthernet(t *testing.T) {
	n := nio.NewEthernet("eth0")
	cmd, err := attachCommand("bridge0", n)
	if err != nil {
		t.Fatalf("attachCommand: %v", err)
	}
	if !strings.HasPrefix(cmd, "bridge add_nio_ethernet bridge0 ") {
		t.Fatalf("got %q", cmd)
	}
	if !strings.Contains(cmd, `"eth0"`) {
		t.Fatalf("expected interface name quoted, got %q", cmd)
	}
}

func TestFilterCommandOrderingAndArgs(t *testing.T) {
	f := nio.FilterEntry{Kind: nio.FilterLatency, Params: []string{"100"}}
	cmd := filterCommand("bridge0", 0, f)
	want := "bridge add_packet_filter bridge0 filter0 latency 100"
	if cmd != want {
		t.Fatalf("got %q, want %q", cmd, want)
	}

	f2 := nio.FilterEntry{Kind: nio.FilterBPF, Params: []string{"icmp"}}
	cmd2 := filterCommand("bridge0", 1, f2)
	want2 := `bridge add_packet_filter bridge0 filter1 bpf icmp`
	if cmd2 != want2 {
		t.Fatalf("got %q, want %q", cmd2, want2)
	}
}

func TestCaptureStartCommand(t *testing.T) {
	cmd := captureStartCommand("bridge0", "/tmp/out.pcap", "DLT_EN10MB")
	want := `bridge start_capture bridge0 "/tmp/out.pcap" DLT_EN10MB`
	if cmd != want {
		t.Fatalf("got %q, want %q", cmd, want)
	}

	cmd2 := captureStartCommand("bridge0", "/tmp/out.pcap", "")
	want2 := `bridge start_capture bridge0 "/tmp/out.pcap"`
	if cmd2 != want2 {
		t.Fatalf("got %q, want %q", cmd2, want2)
	}
}
