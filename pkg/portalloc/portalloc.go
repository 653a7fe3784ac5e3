// Package portalloc implements the process-wide TCP/UDP port allocator
// (spec §4.A). A single Allocator instance is keyed by project id and
// guards its reservation sets with a mutex so reserve/release races
// between concurrent callers cannot happen (spec §5, "shared resources").
package portalloc

import (
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/vnetlab/compute/pkg/corelog"
)

// Range is a half-open port range [Start, End).
type Range struct {
	Start int
	End   int
}

func (r Range) contains(port int) bool {
	return port >= r.Start && port < r.End
}

// Defaults from spec §3 "Port allocator state".
var (
	DefaultTCPRange  = Range{Start: 5000, End: 10000}
	DefaultVNCRange  = Range{Start: 5900, End: 10000}
	DefaultUDPRange  = Range{Start: 10000, End: 20000}
	MinVNCConsole    = 5900
)

// reservation tracks which project owns a port, for double-release and
// cross-project theft detection.
type reservation struct {
	project string
}

// Allocator reserves/releases TCP and UDP ports per project. The zero value
// is not usable; use New. Allocator is safe for concurrent use.
type Allocator struct {
	mu           sync.Mutex
	consoleHost  string
	tcpReserved  map[int]reservation
	udpReserved  map[int]reservation
}

// New returns an Allocator that binds probe sockets on consoleHost (the
// address reported to clients via ConsoleHost).
func New(consoleHost string) *Allocator {
	if consoleHost == "" {
		consoleHost = "0.0.0.0"
	}
	return &Allocator{
		consoleHost: consoleHost,
		tcpReserved: make(map[int]reservation),
		udpReserved: make(map[int]reservation),
	}
}

// ConsoleHost returns the address on which reservations are probed, so
// consumers can report it to clients (spec §4.A).
func (a *Allocator) ConsoleHost() string {
	return a.consoleHost
}

// Reset clears all reservations. Intended for test-time reuse of a single
// process-wide allocator instance (spec §9, "global mutable allocator").
func (a *Allocator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tcpReserved = make(map[int]reservation)
	a.udpReserved = make(map[int]reservation)
}

// ReserveTCP reserves a specific TCP port for project. If desired is inside
// rng and already reserved, returns PortInUseError. If desired is outside
// rng, it is still reserved (an explicit user choice) unless already taken.
// A bind() probe is performed to avoid racing other host processes; the
// probe socket is closed immediately but the reservation is kept.
func (a *Allocator) ReserveTCP(desired int, project string, rng Range) (int, error) {
	return a.reserveSpecific(a.tcpReserved, desired, project, rng, "tcp")
}

// ReserveUDP is the UDP analogue of ReserveTCP.
func (a *Allocator) ReserveUDP(desired int, project string, rng Range) (int, error) {
	return a.reserveSpecific(a.udpReserved, desired, project, rng, "udp")
}

func (a *Allocator) reserveSpecific(table map[int]reservation, desired int, project string, rng Range, network string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, taken := table[desired]; taken {
		return 0, &corelog.PortInUseError{Port: desired, Project: project}
	}

	if err := probe(network, a.consoleHost, desired); err != nil {
		return 0, &corelog.PortInUseError{Port: desired, Project: project}
	}

	table[desired] = reservation{project: project}
	corelog.WithProject(project).Debugf("portalloc: reserved %s port %d (range [%d,%d))", network, desired, rng.Start, rng.End)
	return desired, nil
}

// GetFreeTCP scans rng in ascending order and reserves the first port for
// which a bind probe succeeds.
func (a *Allocator) GetFreeTCP(project string, rng Range) (int, error) {
	return a.getFree(a.tcpReserved, project, rng, "tcp")
}

// GetFreeUDP is the UDP analogue of GetFreeTCP.
func (a *Allocator) GetFreeUDP(project string, rng Range) (int, error) {
	return a.getFree(a.udpReserved, project, rng, "udp")
}

func (a *Allocator) getFree(table map[int]reservation, project string, rng Range, network string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for port := rng.Start; port < rng.End; port++ {
		if _, taken := table[port]; taken {
			continue
		}
		if err := probe(network, a.consoleHost, port); err != nil {
			continue
		}
		table[port] = reservation{project: project}
		corelog.WithProject(project).Debugf("portalloc: allocated free %s port %d", network, port)
		return port, nil
	}
	return 0, &corelog.NoFreePortError{RangeStart: rng.Start, RangeEnd: rng.End, Project: project}
}

// ReleaseTCP releases a previously reserved TCP port. Releasing a port owned
// by a different project, or not reserved at all (including a second release
// by the owner), is a programming error and fails loudly.
func (a *Allocator) ReleaseTCP(port int, project string) error {
	return a.release(a.tcpReserved, port, project)
}

// ReleaseUDP is the UDP analogue of ReleaseTCP.
func (a *Allocator) ReleaseUDP(port int, project string) error {
	return a.release(a.udpReserved, port, project)
}

func (a *Allocator) release(table map[int]reservation, port int, project string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, ok := table[port]
	if !ok {
		return fmt.Errorf("portalloc: release port %d: not reserved", port)
	}
	if res.project != project {
		return fmt.Errorf("portalloc: release port %d: owned by project %s, not %s", port, res.project, project)
	}
	delete(table, port)
	return nil
}

// ReleaseAllForProject releases every TCP/UDP port owned by project. Used by
// project teardown to satisfy invariant 1 in spec §8: after close(P) the set
// of reserved ports for P is empty.
func (a *Allocator) ReleaseAllForProject(project string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for port, res := range a.tcpReserved {
		if res.project == project {
			delete(a.tcpReserved, port)
		}
	}
	for port, res := range a.udpReserved {
		if res.project == project {
			delete(a.udpReserved, port)
		}
	}
}

// ReservedForProject returns the sorted TCP and UDP ports currently held by
// project. Exposed for tests asserting invariant 1 and invariant 7.
func (a *Allocator) ReservedForProject(project string) (tcp []int, udp []int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for port, res := range a.tcpReserved {
		if res.project == project {
			tcp = append(tcp, port)
		}
	}
	for port, res := range a.udpReserved {
		if res.project == project {
			udp = append(udp, port)
		}
	}
	sort.Ints(tcp)
	sort.Ints(udp)
	return tcp, udp
}

// probe performs the actual bind() check described in spec §4.A / §9
// ("port probe race"): the socket is closed immediately after a successful
// bind, accepting the narrow race window against external processes.
func probe(network, host string, port int) error {
	switch network {
	case "tcp":
		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
		if err != nil {
			return err
		}
		return ln.Close()
	case "udp":
		addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, port))
		if err != nil {
			return err
		}
		conn, err := net.ListenUDP("udp", addr)
		if err != nil {
			return err
		}
		return conn.Close()
	default:
		return fmt.Errorf("portalloc: unknown network %q", network)
	}
}

// EnforceVNCConsole validates that a console port designated as VNC is 0
// or at least MinVNCConsole per spec §4.A/§8 invariant 8; no upper bound
// is checked.
func EnforceVNCConsole(port int) error {
	if port != 0 && port < MinVNCConsole {
		return fmt.Errorf("portalloc: VNC console port %d must be >= %d", port, MinVNCConsole)
	}
	return nil
}
