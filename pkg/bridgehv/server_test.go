package bridgehv

import (
	"context"
	"fmt"
	"net"
	"os"
	"testing"
	"time"

	"github.com/vnetlab/compute/pkg/bridgeclient"
)

// startServer picks a free loopback port, starts a Server on it in the
// background, and returns a bridgeclient already connected to it.
// bridgeclient.Connect retries until the accept loop is ready, so the
// port-probe/reuse below races nothing the client can't ride out.
func startServer(t *testing.T) (*Server, *bridgeclient.Client, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	s := NewServer()
	addr := net.JoinHostPort("127.0.0.1", fmt.Sprintf("%d", port))
	go s.ListenAndServe(addr)

	c := bridgeclient.New("127.0.0.1", port)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return s, c, func() {
		c.Close()
		s.Shutdown()
	}
}

func send(t *testing.T, c *bridgeclient.Client, cmd string) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	lines, err := c.Send(ctx, cmd)
	if err != nil {
		t.Fatalf("send %q: %v", cmd, err)
	}
	return lines
}

func sendExpectError(t *testing.T, c *bridgeclient.Client, cmd string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := c.Send(ctx, cmd); err == nil {
		t.Fatalf("send %q: expected error", cmd)
	}
}

func TestHypervisorVersion(t *testing.T) {
	_, c, stop := startServer(t)
	defer stop()

	lines := send(t, c, "hypervisor version")
	if len(lines) != 1 || lines[0] != "ubridge version "+hvVersion {
		t.Fatalf("version reply = %v", lines)
	}
}

func TestBridgeCreateStartDeleteLifecycle(t *testing.T) {
	_, c, stop := startServer(t)
	defer stop()

	send(t, c, "bridge create b1")
	send(t, c, "bridge add_nio_udp b1 0 127.0.0.1 0")
	send(t, c, `bridge add_nio_ethernet b1 "eth0"`)
	send(t, c, "bridge start b1")
	send(t, c, "bridge stop b1")
	send(t, c, "bridge delete b1")
}

func TestBridgeUnknownNameErrors(t *testing.T) {
	_, c, stop := startServer(t)
	defer stop()

	sendExpectError(t, c, "bridge start ghost")
	sendExpectError(t, c, "bridge add_nio_udp ghost 1 127.0.0.1 2")
}

func TestEthswAddNioAndSetPort(t *testing.T) {
	_, c, stop := startServer(t)
	defer stop()

	send(t, c, "bridge create sw")
	send(t, c, "bridge add_nio_udp sw 0 127.0.0.1 0")
	send(t, c, "ethsw add_nio sw nio0")
	send(t, c, "ethsw set_access_port sw nio0 5")
	send(t, c, "ethsw set_qinq_port sw nio0 6 0x88a8")
	send(t, c, "ethsw rename sw sw2")
}

func TestCaptureStartStop(t *testing.T) {
	_, c, stop := startServer(t)
	defer stop()

	dir := t.TempDir()
	path := dir + "/cap.pcap"

	send(t, c, "bridge create b1")
	send(t, c, `bridge start_capture b1 "`+path+`"`)
	send(t, c, "bridge stop_capture b1")

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("capture file not created: %v", err)
	}
}

func TestPacketFilterCommands(t *testing.T) {
	_, c, stop := startServer(t)
	defer stop()

	send(t, c, "bridge create b1")
	send(t, c, "bridge reset_packet_filters b1")
	send(t, c, "bridge add_packet_filter b1 filter0 frequency_drop 3")
	send(t, c, `bridge set_pcap_filter b1 "udp"`)
}

// TestUDPRelayForwardsDatagrams builds a two-NIO bridge where nio0 listens
// on l0 and nio1's declared remote is actorB's address: a datagram sent
// into l0 should come out the other side at actorB, matching real traffic
// from one VM's UDP backend crossing the bridge to reach its peer.
func TestUDPRelayForwardsDatagrams(t *testing.T) {
	actorB, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("listen actorB: %v", err)
	}
	defer actorB.Close()
	actorBPort := actorB.LocalAddr().(*net.UDPAddr).Port

	l0 := freePort(t)
	l1 := freePort(t)

	_, c, stop := startServer(t)
	defer stop()

	send(t, c, "bridge create link")
	send(t, c, fmt.Sprintf("bridge add_nio_udp link %d 127.0.0.1 %d", l0, actorBPort))
	send(t, c, fmt.Sprintf("bridge add_nio_udp link %d 127.0.0.1 %d", l1, actorBPort))
	send(t, c, "bridge start link")

	sender, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: l0})
	if err != nil {
		t.Fatalf("dial l0: %v", err)
	}
	defer sender.Close()

	if _, err := sender.Write([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	actorB.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	n, _, err := actorB.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("relay did not forward datagram: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("got %q, want %q", buf[:n], "hello")
	}
}

// freePort probes an OS-assigned loopback UDP port and releases it
// immediately for the caller to reuse as a configured NIO lport.
func freePort(t *testing.T) int {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("probe free port: %v", err)
	}
	port := conn.LocalAddr().(*net.UDPAddr).Port
	conn.Close()
	return port
}
