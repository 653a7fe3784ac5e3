package bridgehv

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
)

// hvVersion is the banner this stand-in reports, chosen to satisfy
// pkg/bridgesup's minVersion() check on every platform (spec §4.D).
const hvVersion = "0.9.18"

// Server is one bridge hypervisor instance: a set of named bridges and
// ethsw switches, reachable over the line protocol (spec §4.C/§6).
type Server struct {
	mu        sync.Mutex
	bridges   map[string]*bridge
	switches  map[string]*ethswitch
	listener  net.Listener
	stopped   chan struct{}
}

// NewServer returns an empty Server, ready for ListenAndServe.
func NewServer() *Server {
	return &Server{
		bridges:  make(map[string]*bridge),
		switches: make(map[string]*ethswitch),
		stopped:  make(chan struct{}),
	}
}

// ListenAndServe binds addr (host:port, "0.0.0.0" allowed) and accepts
// connections until a "hypervisor stop" command is processed or the
// listener is closed.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bridgehv: listen %s: %w", addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		<-s.stopped
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.stopped:
				return nil
			default:
				return err
			}
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		if s.dispatch(w, line) {
			return
		}
	}
}

// dispatch executes one command line and writes its response. It returns
// true if the connection (and, for "hypervisor stop", the whole server)
// should now close.
func (s *Server) dispatch(w *bufio.Writer, line string) bool {
	args := splitArgs(line)
	if len(args) == 0 {
		writeError(w, "empty command")
		return false
	}

	verb, rest := args[0], args[1:]
	switch verb {
	case "hypervisor":
		return s.dispatchHypervisor(w, rest)
	case "bridge":
		s.dispatchBridge(w, rest)
	case "ethsw":
		s.dispatchEthsw(w, rest)
	case "docker":
		// set_mac_addr/move_to_ns require real namespace/interface access
		// this stand-in doesn't have; acknowledge so callers relying only
		// on the reply, not the side effect, keep working in tests.
		writeSuccess(w, "")
	default:
		writeError(w, fmt.Sprintf("unknown command %q", verb))
	}
	return false
}

func (s *Server) dispatchHypervisor(w *bufio.Writer, args []string) bool {
	if len(args) == 0 {
		writeError(w, "hypervisor: missing subcommand")
		return false
	}
	switch args[0] {
	case "version":
		writeSuccess(w, fmt.Sprintf("ubridge version %s", hvVersion))
	case "close":
		writeSuccess(w, "")
		return true
	case "stop":
		writeSuccess(w, "")
		s.Shutdown()
		return true
	default:
		writeError(w, fmt.Sprintf("hypervisor: unknown subcommand %q", args[0]))
	}
	return false
}

func (s *Server) getBridge(name string) (*bridge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bridges[name]
	return b, ok
}

func (s *Server) dispatchBridge(w *bufio.Writer, args []string) {
	if len(args) < 2 {
		writeError(w, "bridge: missing subcommand/name")
		return
	}
	sub, name := args[0], args[1]
	rest := args[2:]

	switch sub {
	case "create":
		s.mu.Lock()
		s.bridges[name] = newBridge(name)
		s.mu.Unlock()
		writeSuccess(w, "")

	case "delete":
		s.mu.Lock()
		if b, ok := s.bridges[name]; ok {
			b.delete()
			delete(s.bridges, name)
		}
		s.mu.Unlock()
		writeSuccess(w, "")

	case "start":
		b, ok := s.getBridge(name)
		if !ok {
			writeError(w, fmt.Sprintf("bridge %q not found", name))
			return
		}
		if err := b.start(); err != nil {
			writeError(w, err.Error())
			return
		}
		writeSuccess(w, "")

	case "stop":
		b, ok := s.getBridge(name)
		if !ok {
			writeError(w, fmt.Sprintf("bridge %q not found", name))
			return
		}
		b.stop()
		writeSuccess(w, "")

	case "add_nio_udp":
		b, ok := s.getBridge(name)
		if !ok {
			writeError(w, fmt.Sprintf("bridge %q not found", name))
			return
		}
		if len(rest) != 3 {
			writeError(w, "add_nio_udp: expected <lport> <rhost> <rport>")
			return
		}
		lport, err1 := strconv.Atoi(rest[0])
		rport, err2 := strconv.Atoi(rest[2])
		if err1 != nil || err2 != nil {
			writeError(w, "add_nio_udp: invalid port")
			return
		}
		b.addNIO(&attachedNIO{kind: nioUDP, lport: lport, rhost: rest[1], rport: rport})
		writeSuccess(w, "")

	case "add_nio_linux_raw", "add_nio_ethernet":
		b, ok := s.getBridge(name)
		if !ok {
			writeError(w, fmt.Sprintf("bridge %q not found", name))
			return
		}
		if len(rest) != 1 {
			writeError(w, sub+": expected <ifc>")
			return
		}
		b.addNIO(&attachedNIO{kind: nioEthernet, iface: rest[0]})
		writeSuccess(w, "")

	case "add_nio_tap":
		b, ok := s.getBridge(name)
		if !ok {
			writeError(w, fmt.Sprintf("bridge %q not found", name))
			return
		}
		if len(rest) != 1 {
			writeError(w, "add_nio_tap: expected <ifc>")
			return
		}
		b.addNIO(&attachedNIO{kind: nioTAP, iface: rest[0]})
		writeSuccess(w, "")

	case "add_nio_fusion_vmnet":
		b, ok := s.getBridge(name)
		if !ok {
			writeError(w, fmt.Sprintf("bridge %q not found", name))
			return
		}
		if len(rest) != 1 {
			writeError(w, "add_nio_fusion_vmnet: expected <ifc>")
			return
		}
		b.addNIO(&attachedNIO{kind: nioVMnet, iface: rest[0]})
		writeSuccess(w, "")

	case "set_pcap_filter":
		b, ok := s.getBridge(name)
		if !ok {
			writeError(w, fmt.Sprintf("bridge %q not found", name))
			return
		}
		if len(rest) != 1 {
			writeError(w, "set_pcap_filter: expected <bpf>")
			return
		}
		b.setPacketFilter(rest[0])
		writeSuccess(w, "")

	case "start_capture":
		b, ok := s.getBridge(name)
		if !ok {
			writeError(w, fmt.Sprintf("bridge %q not found", name))
			return
		}
		if len(rest) < 1 {
			writeError(w, "start_capture: expected <file> [<dlt>]")
			return
		}
		if err := b.startCapture(rest[0]); err != nil {
			writeError(w, err.Error())
			return
		}
		writeSuccess(w, "")

	case "stop_capture":
		b, ok := s.getBridge(name)
		if !ok {
			writeError(w, fmt.Sprintf("bridge %q not found", name))
			return
		}
		b.stopCapture()
		writeSuccess(w, "")

	case "reset_packet_filters":
		b, ok := s.getBridge(name)
		if !ok {
			writeError(w, fmt.Sprintf("bridge %q not found", name))
			return
		}
		b.resetPacketFilters()
		writeSuccess(w, "")

	case "add_packet_filter":
		b, ok := s.getBridge(name)
		if !ok {
			writeError(w, fmt.Sprintf("bridge %q not found", name))
			return
		}
		if len(rest) < 2 {
			writeError(w, "add_packet_filter: expected <filter_name> <filter_type> <args...>")
			return
		}
		b.addPacketFilter(strings.Join(rest, " "))
		writeSuccess(w, "")

	default:
		writeError(w, fmt.Sprintf("bridge: unknown subcommand %q", sub))
	}
}

func (s *Server) dispatchEthsw(w *bufio.Writer, args []string) {
	if len(args) < 2 {
		writeError(w, "ethsw: missing subcommand/name")
		return
	}
	sub, name := args[0], args[1]
	rest := args[2:]

	s.mu.Lock()
	sw, ok := s.switches[name]
	if !ok && sub != "rename" {
		sw = newEthswitch(name)
		s.switches[name] = sw
	}
	s.mu.Unlock()

	switch sub {
	case "add_nio":
		if len(rest) != 1 {
			writeError(w, "ethsw add_nio: expected <nio>")
			return
		}
		if b, ok := s.getBridge(name); ok {
			b.markEthswitch()
		}
		sw.addNIO(rest[0])
		writeSuccess(w, "")

	case "set_access_port", "set_dot1q_port", "set_qinq_port":
		if len(rest) < 2 {
			writeError(w, sub+": expected <nio> <vlan> [<ethertype>]")
			return
		}
		vlan, err := strconv.Atoi(rest[1])
		if err != nil {
			writeError(w, sub+": invalid vlan")
			return
		}
		etherType := 0
		if len(rest) >= 3 {
			et, err := strconv.ParseInt(strings.TrimPrefix(rest[2], "0x"), 16, 32)
			if err == nil {
				etherType = int(et)
			}
		}
		typ := portAccess
		switch sub {
		case "set_dot1q_port":
			typ = portDot1Q
		case "set_qinq_port":
			typ = portQinQ
		}
		sw.setPort(rest[0], typ, vlan, etherType)
		writeSuccess(w, "")

	case "rename":
		if len(rest) != 1 {
			writeError(w, "ethsw rename: expected <new-name>")
			return
		}
		s.mu.Lock()
		if sw, ok := s.switches[name]; ok {
			delete(s.switches, name)
			sw.rename(rest[0])
			s.switches[rest[0]] = sw
		}
		s.mu.Unlock()
		writeSuccess(w, "")

	default:
		writeError(w, fmt.Sprintf("ethsw: unknown subcommand %q", sub))
	}
}

// Shutdown stops every bridge's relay and closes the listener; in-flight
// connections finish their current response before their next read fails.
func (s *Server) Shutdown() {
	s.mu.Lock()
	for _, b := range s.bridges {
		b.delete()
	}
	s.bridges = make(map[string]*bridge)
	s.mu.Unlock()

	select {
	case <-s.stopped:
	default:
		close(s.stopped)
	}
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		ln.Close()
	}
}
