package bridgehv

import (
	"fmt"
	"net"
	"sync"
)

// nioKind mirrors pkg/nio.Kind's wire vocabulary without importing the
// core module: this package is the other end of the wire, not a client
// of it.
type nioKind string

const (
	nioUDP      nioKind = "udp"
	nioEthernet nioKind = "ethernet"
	nioTAP      nioKind = "tap"
	nioVMnet    nioKind = "vmnet"
)

// attachedNIO is one endpoint attached to a bridge.
type attachedNIO struct {
	kind nioKind

	// udp fields
	lport int
	rhost string
	rport int

	// ethernet/tap/vmnet fields
	iface string
}

// bridge is one named entity accumulating NIOs in attachment order (spec
// §6 "bridge create/delete/start/stop", "bridge add_nio_*"). A plain
// point-to-point bridge carries exactly two NIOs and, if both are UDP,
// gets a real relay; an ethsw bridge (flagged by ethswitchAttached once
// the server sees an `ethsw add_nio` referencing this name) can carry
// many NIOs as switch ports instead, and never gets the two-party relay.
// Filters and pcap-style BPF strings are recorded for diagnostics but not
// compiled or enforced; see the package doc comment.
type bridge struct {
	mu               sync.Mutex
	name             string
	nios             []*attachedNIO
	ethswitchAttached bool
	started          bool
	filters          []string // in add order; reset clears this slice
	pcapExpr         string

	relay       *udpRelay
	capture     *pcapWriter
	capturePath string
}

func newBridge(name string) *bridge {
	return &bridge{name: name}
}

// addNIO appends n and returns its bridge-local name ("nio0", "nio1", ...)
// in attachment order, the name ethsw commands reference it by.
func (b *bridge) addNIO(n *attachedNIO) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	name := fmt.Sprintf("nio%d", len(b.nios))
	b.nios = append(b.nios, n)
	return name
}

func (b *bridge) markEthswitch() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ethswitchAttached = true
}

// start launches the UDP↔UDP relay for a plain two-party bridge whose
// NIOs are both UDP; an ethsw bridge or any other NIO combination is
// accepted (tracked as "started") but carries no data plane in this
// stand-in.
func (b *bridge) start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}
	if !b.ethswitchAttached && len(b.nios) == 2 && b.nios[0].kind == nioUDP && b.nios[1].kind == nioUDP {
		relay, err := newUDPRelay(b.nios[0], b.nios[1], b)
		if err != nil {
			return err
		}
		b.relay = relay
	}
	b.started = true
	return nil
}

func (b *bridge) stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.relay != nil {
		b.relay.close()
		b.relay = nil
	}
	b.started = false
	return nil
}

func (b *bridge) delete() {
	b.stop()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.capture != nil {
		b.capture.Close()
		b.capture = nil
	}
}

func (b *bridge) setPacketFilter(expr string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pcapExpr = expr
}

func (b *bridge) resetPacketFilters() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filters = nil
}

func (b *bridge) addPacketFilter(spec string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filters = append(b.filters, spec)
}

func (b *bridge) startCapture(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, err := newPcapWriter(path)
	if err != nil {
		return err
	}
	if b.capture != nil {
		b.capture.Close()
	}
	b.capture = w
	b.capturePath = path
	return nil
}

func (b *bridge) stopCapture() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.capture != nil {
		b.capture.Close()
		b.capture = nil
	}
	b.capturePath = ""
}

// onPacket is invoked by the relay for every datagram it forwards, so an
// in-progress capture observes both directions of traffic.
func (b *bridge) onPacket(data []byte) {
	b.mu.Lock()
	w := b.capture
	b.mu.Unlock()
	if w != nil {
		w.writePacket(data)
	}
}

// udpRelay forwards datagrams bidirectionally between two UDP NIO
// endpoints: it listens on each side's lport and forwards whatever it
// receives to the other side's rhost:rport, the same shape as the
// teacher's BridgeWorker TCP relay (pkg/newtlab/link.go), adapted from a
// pair of TCP listeners to a pair of UDP sockets driven by line-protocol
// commands instead of a static config file.
type udpRelay struct {
	aConn *net.UDPConn
	bConn *net.UDPConn
	// aForwardTo/bForwardTo are the remote addresses traffic received on
	// aConn/bConn is forwarded to: traffic arriving on one NIO's listen
	// socket is destined for the OTHER NIO's declared remote, since each
	// NIO's <rhost> <rport> names where that NIO's own peer expects to
	// receive data, not the peer sending into that NIO's listen port.
	aForwardTo *net.UDPAddr
	bForwardTo *net.UDPAddr
	owner      *bridge

	stop chan struct{}
}

func newUDPRelay(a, b *attachedNIO, owner *bridge) (*udpRelay, error) {
	aAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("0.0.0.0:%d", a.lport))
	if err != nil {
		return nil, fmt.Errorf("bridgehv: resolve %d: %w", a.lport, err)
	}
	aConn, err := net.ListenUDP("udp", aAddr)
	if err != nil {
		return nil, fmt.Errorf("bridgehv: listen udp %d: %w", a.lport, err)
	}
	bAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("0.0.0.0:%d", b.lport))
	if err != nil {
		aConn.Close()
		return nil, fmt.Errorf("bridgehv: resolve %d: %w", b.lport, err)
	}
	bConn, err := net.ListenUDP("udp", bAddr)
	if err != nil {
		aConn.Close()
		return nil, fmt.Errorf("bridgehv: listen udp %d: %w", b.lport, err)
	}

	aDst, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", a.rhost, a.rport))
	if err != nil {
		aConn.Close()
		bConn.Close()
		return nil, fmt.Errorf("bridgehv: resolve remote %s:%d: %w", a.rhost, a.rport, err)
	}
	bDst, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", b.rhost, b.rport))
	if err != nil {
		aConn.Close()
		bConn.Close()
		return nil, fmt.Errorf("bridgehv: resolve remote %s:%d: %w", b.rhost, b.rport, err)
	}

	r := &udpRelay{aConn: aConn, bConn: bConn, aForwardTo: bDst, bForwardTo: aDst, owner: owner, stop: make(chan struct{})}
	go r.pump(r.aConn, r.aForwardTo)
	go r.pump(r.bConn, r.bForwardTo)
	return r, nil
}

// pump reads datagrams from src and forwards each to dst, until the
// relay is closed.
func (r *udpRelay) pump(src *net.UDPConn, dst *net.UDPAddr) {
	buf := make([]byte, 65536)
	for {
		n, _, err := src.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-r.stop:
				return
			default:
			}
			return
		}
		r.owner.onPacket(buf[:n])
		src.WriteToUDP(buf[:n], dst)
	}
}

func (r *udpRelay) close() {
	close(r.stop)
	r.aConn.Close()
	r.bConn.Close()
}
