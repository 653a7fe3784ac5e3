// Package corenode implements the abstract node lifecycle shared by every
// backend adapter (spec §4.G): the status state machine, console/aux port
// ownership, the wrap-console telnet proxy, and the per-node bridge
// command helpers used to wire links.
package corenode

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vnetlab/compute/pkg/bridgeclient"
	"github.com/vnetlab/compute/pkg/bridgesup"
	"github.com/vnetlab/compute/pkg/corelog"
	"github.com/vnetlab/compute/pkg/nio"
	"github.com/vnetlab/compute/pkg/portalloc"
	"github.com/vnetlab/compute/pkg/telnetproxy"
)

// Status is the node's lifecycle state (spec §4.G).
type Status string

const (
	StatusStopped   Status = "stopped"
	StatusStarted   Status = "started"
	StatusSuspended Status = "suspended"
)

// ConsoleType selects which port range a node's console is drawn from and
// which proxy (if any) fronts it.
type ConsoleType string

const (
	ConsoleNone   ConsoleType = "none"
	ConsoleTelnet ConsoleType = "telnet"
	ConsoleVNC    ConsoleType = "vnc"
	ConsoleHTTP   ConsoleType = "http"
	ConsoleHTTPS  ConsoleType = "https"
	ConsoleSpice  ConsoleType = "spice"
)

const (
	wrapConsoleRetries  = 60
	wrapConsoleInterval = 100 * time.Millisecond
)

// EventSink receives node-scoped events a controller would otherwise
// consume directly (spec §4.I publishes these on the project's event bus).
type EventSink interface {
	Warning(nodeID, message string)
	Error(nodeID, message string)
}

// Config describes the parameters needed to construct a Node.
type Config struct {
	ID          uuid.UUID
	ProjectID   uuid.UUID
	Name        string
	Usage       string
	ConsoleType ConsoleType
	// WrapConsole requests a second, internal-only console port fronted by
	// a telnet proxy on the public console port (spec §4.G).
	WrapConsole bool
	// AllocateAux requests an auxiliary console port reservation; default
	// off, overridden on by backends such as the container adapter.
	AllocateAux bool
	// Console, if non-zero, pins a specific desired console port instead
	// of drawing the next free one.
	Console int

	Allocator  *portalloc.Allocator
	Events     EventSink
	WorkingDir string
	BridgeBin  string
	BridgeLog  string
}

// Node is the shared lifecycle + resource owner backend adapters embed or
// wrap (spec §4.G). Exported fields are read-only snapshots; mutation goes
// through the methods below so port and status invariants hold.
type Node struct {
	ID          uuid.UUID
	ProjectID   uuid.UUID
	Name        string
	Usage       string
	CommandLine string

	allocator *portalloc.Allocator
	events    EventSink

	mu              sync.Mutex
	status          Status
	consoleType     ConsoleType
	console         int
	aux             int
	internalConsole int
	allocateAux     bool
	wrapConsole     bool
	closed          bool

	workingDir string
	tempDir    string

	bridgeMu sync.Mutex // total order over bridge commands for this node
	bridgeSup *bridgesup.Supervisor
	bridges   map[string]struct{}

	consoleMu       sync.Mutex
	telnetProxy     *telnetproxy.Proxy
	wrapConn        net.Conn
	consoleListener net.Listener
}

// New constructs a Node, reserving console/aux/internal ports per cfg
// (spec §4.G "Construction").
func New(cfg Config) (*Node, error) {
	if cfg.Allocator == nil {
		return nil, fmt.Errorf("corenode: Config.Allocator is required")
	}

	n := &Node{
		ID:          cfg.ID,
		ProjectID:   cfg.ProjectID,
		Name:        cfg.Name,
		Usage:       cfg.Usage,
		allocator:   cfg.Allocator,
		events:      cfg.Events,
		status:      StatusStopped,
		consoleType: cfg.ConsoleType,
		allocateAux: cfg.AllocateAux,
		wrapConsole: cfg.WrapConsole,
		workingDir:  cfg.WorkingDir,
		tempDir:     filepath.Join(cfg.WorkingDir, "tmp"),
		bridges:     make(map[string]struct{}),
		bridgeSup:   bridgesup.New(cfg.BridgeBin, cfg.BridgeLog),
	}

	if err := os.MkdirAll(n.tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("corenode: create temp dir: %w", err)
	}

	project := cfg.ProjectID.String()

	switch cfg.ConsoleType {
	case ConsoleNone:
		// No console port.
	case ConsoleVNC:
		port, err := n.reserveConsolePort(cfg.Console, project, portalloc.DefaultVNCRange)
		if err != nil {
			return nil, err
		}
		n.console = port
	default:
		port, err := n.reserveConsolePort(cfg.Console, project, portalloc.DefaultTCPRange)
		if err != nil {
			return nil, err
		}
		n.console = port
	}

	if cfg.WrapConsole {
		port, err := n.allocator.GetFreeTCP(project, portalloc.DefaultTCPRange)
		if err != nil {
			n.releaseReservedSoFar()
			return nil, err
		}
		n.internalConsole = port
	}

	if cfg.AllocateAux {
		port, err := n.allocator.GetFreeTCP(project, portalloc.DefaultTCPRange)
		if err != nil {
			n.releaseReservedSoFar()
			return nil, err
		}
		n.aux = port
	}

	return n, nil
}

func (n *Node) reserveConsolePort(desired int, project string, rng portalloc.Range) (int, error) {
	if rng.Start == portalloc.DefaultVNCRange.Start {
		if err := portalloc.EnforceVNCConsole(desired); err != nil {
			return 0, &corelog.NodeError{Node: n.ID.String(), Operation: "construct", Reason: err.Error()}
		}
	}
	if desired != 0 {
		return n.allocator.ReserveTCP(desired, project, rng)
	}
	return n.allocator.GetFreeTCP(project, rng)
}

func (n *Node) releaseReservedSoFar() {
	project := n.ProjectID.String()
	if n.console != 0 {
		n.allocator.ReleaseTCP(n.console, project)
	}
	if n.internalConsole != 0 {
		n.allocator.ReleaseTCP(n.internalConsole, project)
	}
}

// Status returns the node's current lifecycle state.
func (n *Node) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

// SetStatus is called by backend adapters after a successful transition.
func (n *Node) SetStatus(s Status) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.status = s
}

// Console returns the node's public console port (0 if ConsoleNone).
func (n *Node) Console() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.console
}

// Aux returns the node's auxiliary console port (0 if not allocated).
func (n *Node) Aux() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.aux
}

// InternalConsole returns the node's internal-only console port backends
// must bind their own console server to when WrapConsole is enabled (0 if
// not reserved).
func (n *Node) InternalConsole() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.internalConsole
}

// WorkingDir returns the node's working directory.
func (n *Node) WorkingDir() string { return n.workingDir }

// TempDir returns the node's private scratch directory, a subdirectory of
// WorkingDir used by backends for interim files (spec SUPPLEMENTED
// FEATURES: working-directory-aware temp directories).
func (n *Node) TempDir() string { return n.tempDir }

// SetConsole atomically releases the old console port and reserves port
// (spec §4.G "Property setters"). Setting to the current value is a no-op.
func (n *Node) SetConsole(port int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if port == n.console {
		return nil
	}
	rng := portalloc.DefaultTCPRange
	if n.consoleType == ConsoleVNC {
		rng = portalloc.DefaultVNCRange
		if err := portalloc.EnforceVNCConsole(port); err != nil {
			return &corelog.NodeError{Node: n.ID.String(), Operation: "set_console", Reason: err.Error()}
		}
	}
	project := n.ProjectID.String()
	if n.console != 0 {
		if err := n.allocator.ReleaseTCP(n.console, project); err != nil {
			return err
		}
	}
	got, err := n.allocator.ReserveTCP(port, project, rng)
	if err != nil {
		return err
	}
	n.console = got
	return nil
}

// SetConsoleType changes the console type at runtime, releasing the old
// port and allocating one from the appropriate range (spec §4.G).
func (n *Node) SetConsoleType(ct ConsoleType) error {
	n.mu.Lock()
	project := n.ProjectID.String()
	oldPort := n.console
	n.mu.Unlock()

	if oldPort != 0 {
		if err := n.allocator.ReleaseTCP(oldPort, project); err != nil {
			return err
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.console = 0
	n.consoleType = ct
	if ct == ConsoleNone {
		return nil
	}
	rng := portalloc.DefaultTCPRange
	if ct == ConsoleVNC {
		rng = portalloc.DefaultVNCRange
	}
	port, err := n.allocator.GetFreeTCP(project, rng)
	if err != nil {
		return err
	}
	n.console = port
	return nil
}

// SetAux atomically releases the old aux port and reserves port.
func (n *Node) SetAux(port int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if port == n.aux {
		return nil
	}
	project := n.ProjectID.String()
	if n.aux != 0 {
		if err := n.allocator.ReleaseTCP(n.aux, project); err != nil {
			return err
		}
	}
	got, err := n.allocator.ReserveTCP(port, project, portalloc.DefaultTCPRange)
	if err != nil {
		return err
	}
	n.aux = got
	return nil
}

// dialWithRetry dials addr, retrying at interval until attempts is reached
// or ctx is done, matching the wrap-console connect retry loop (spec
// §4.G/§5: 60 attempts at 100ms, 6s budget).
func dialWithRetry(ctx context.Context, addr string, attempts int, interval time.Duration) (net.Conn, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		select {
		case <-ctx.Done():
			return nil, &corelog.TimeoutError{Operation: "wrap console connect " + addr, Elapsed: ctx.Err().Error()}
		default:
		}
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, &corelog.TimeoutError{Operation: "wrap console connect " + addr, Elapsed: ctx.Err().Error()}
		case <-timer.C:
		}
	}
	return nil, &corelog.TimeoutError{Operation: fmt.Sprintf("wrap console connect %s (last error: %v)", addr, lastErr), Elapsed: (time.Duration(attempts) * interval).String()}
}

// StartWrapConsole opens a TCP connection to the internal console port and
// starts a Telnet Proxy on the public console port with that connection as
// the backend (spec §4.G).
func (n *Node) StartWrapConsole(ctx context.Context) error {
	n.mu.Lock()
	internalPort := n.internalConsole
	publicPort := n.console
	host := n.allocator.ConsoleHost()
	n.mu.Unlock()

	if internalPort == 0 {
		return &corelog.NodeError{Node: n.ID.String(), Operation: "start_wrap_console", Reason: "no internal console port reserved"}
	}

	conn, err := dialWithRetry(ctx, fmt.Sprintf("127.0.0.1:%d", internalPort), wrapConsoleRetries, wrapConsoleInterval)
	if err != nil {
		return err
	}

	proxy := telnetproxy.New(conn, nil)
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, publicPort))
	if err != nil {
		conn.Close()
		return fmt.Errorf("corenode: listen console port %d: %w", publicPort, err)
	}

	n.consoleMu.Lock()
	n.telnetProxy = proxy
	n.wrapConn = conn
	n.consoleListener = ln
	n.consoleMu.Unlock()

	go pumpBackendToProxy(conn, proxy)
	go acceptConsoleClients(ln, proxy)
	return nil
}

func pumpBackendToProxy(conn net.Conn, proxy *telnetproxy.Proxy) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			proxy.Broadcast(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func acceptConsoleClients(ln net.Listener, proxy *telnetproxy.Proxy) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go proxy.Attach(conn)
	}
}

// StopWrapConsole closes both the backend connection and the public
// console listener.
func (n *Node) StopWrapConsole() error {
	n.consoleMu.Lock()
	defer n.consoleMu.Unlock()
	if n.consoleListener != nil {
		n.consoleListener.Close()
		n.consoleListener = nil
	}
	if n.wrapConn != nil {
		n.wrapConn.Close()
		n.wrapConn = nil
	}
	n.telnetProxy = nil
	return nil
}

// ResetWrapConsole stops then starts the wrap console.
func (n *Node) ResetWrapConsole(ctx context.Context) error {
	if err := n.StopWrapConsole(); err != nil {
		return err
	}
	return n.StartWrapConsole(ctx)
}

// DialConsole opens a plain TCP connection to the node's public console
// port, for use by a WebSocket bridge (spec §4.F, §4.G
// start_websocket_console).
func (n *Node) DialConsole(ctx context.Context) (net.Conn, error) {
	n.mu.Lock()
	status, ct, port, host := n.status, n.consoleType, n.console, n.allocator.ConsoleHost()
	n.mu.Unlock()

	if status != StatusStarted {
		return nil, &corelog.NodeError{Node: n.ID.String(), Operation: "start_websocket_console", Reason: "node is not started"}
	}
	if ct != ConsoleTelnet {
		return nil, &corelog.NodeError{Node: n.ID.String(), Operation: "start_websocket_console", Reason: "console type is not telnet"}
	}

	var d net.Dialer
	return d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", host, port))
}

// ensureBridgeRunning lazily starts the bridge supervisor if its process
// is not alive. Callers must hold bridgeMu.
func (n *Node) ensureBridgeRunning(ctx context.Context) error {
	if n.bridgeSup.Alive() {
		return nil
	}
	return n.bridgeSup.Start(ctx, n.allocator.ConsoleHost())
}

// BridgeStart idempotently ensures the bridge hypervisor subprocess is
// running. If requirePrivileged is set, the platform capability to open
// raw sockets/TAP devices is checked first (spec §4.G).
func (n *Node) BridgeStart(ctx context.Context, requirePrivileged bool) error {
	n.bridgeMu.Lock()
	defer n.bridgeMu.Unlock()

	if n.bridgeSup.Alive() {
		return nil
	}
	if requirePrivileged && !hasRawSocketCapability() {
		return &corelog.NodeError{Node: n.ID.String(), Operation: "bridge_start", Reason: "bridge executable lacks capability for raw sockets/TAP"}
	}
	return n.bridgeSup.Start(ctx, n.allocator.ConsoleHost())
}

// BridgeStop idempotently tears down the bridge hypervisor subprocess.
func (n *Node) BridgeStop(ctx context.Context) error {
	n.bridgeMu.Lock()
	defer n.bridgeMu.Unlock()
	return n.bridgeSup.Stop(ctx)
}

// BridgeSend ensures the supervisor is up (lazy start), then forwards cmd,
// serialized per-node (spec §4.G bridge_send) and retried once after a
// lazy restart if the client reports the hypervisor is not running (spec
// §7 recovery policy).
func (n *Node) BridgeSend(ctx context.Context, cmd string) ([]string, error) {
	n.bridgeMu.Lock()
	defer n.bridgeMu.Unlock()

	if err := n.ensureBridgeRunning(ctx); err != nil {
		return nil, err
	}

	lines, err := n.bridgeSup.Client().Send(ctx, cmd)
	if err == nil {
		return lines, nil
	}

	var be *corelog.BridgeError
	if errors.As(err, &be) && !be.ProcessLive {
		if restartErr := n.bridgeSup.Start(ctx, n.allocator.ConsoleHost()); restartErr == nil {
			return n.bridgeSup.Client().Send(ctx, cmd)
		}
	}
	return nil, err
}

func (n *Node) trackBridge(name string) {
	n.bridgeMu.Lock()
	defer n.bridgeMu.Unlock()
	n.bridges[name] = struct{}{}
}

func (n *Node) untrackBridge(name string) {
	n.bridgeMu.Lock()
	defer n.bridgeMu.Unlock()
	delete(n.bridges, name)
}

// bridgeAttachNIO issues the add_nio_* command matching target's kind.
func (n *Node) bridgeAttachNIO(ctx context.Context, name string, target *nio.NIO) error {
	cmd, err := attachCommand(name, target)
	if err != nil {
		return err
	}
	_, err = n.BridgeSend(ctx, cmd)
	return err
}

// BridgeCreate issues `bridge create <name>` and tracks the bridge so
// Close's fallback teardown will delete it even if the adapter's own
// Stop is never called.
func (n *Node) BridgeCreate(ctx context.Context, name string) error {
	if _, err := n.BridgeSend(ctx, fmt.Sprintf("bridge create %s", name)); err != nil {
		return err
	}
	n.trackBridge(name)
	return nil
}

// AddBridgeUDPConnection creates a bridge, attaches both NIOs (dst must be
// UDP), starts capture on dst if requested, starts the bridge, then
// applies dst's filters (spec §4.G).
func (n *Node) AddBridgeUDPConnection(ctx context.Context, name string, src, dst *nio.NIO) error {
	if dst.Kind() != nio.KindUDP {
		return &corelog.NodeError{Node: n.ID.String(), Operation: "add_bridge_udp_connection", Reason: "destination NIO must be UDP"}
	}

	if err := n.BridgeCreate(ctx, name); err != nil {
		return err
	}

	if err := n.bridgeAttachNIO(ctx, name, src); err != nil {
		return err
	}
	if err := n.bridgeAttachNIO(ctx, name, dst); err != nil {
		return err
	}

	if capturing, path, dlt := dst.Capturing(); capturing {
		if _, err := n.BridgeSend(ctx, captureStartCommand(name, path, dlt)); err != nil {
			return err
		}
	}

	if _, err := n.BridgeSend(ctx, fmt.Sprintf("bridge start %s", name)); err != nil {
		return err
	}

	return n.BridgeApplyFilters(ctx, name, dst.Filters())
}

// UpdateBridgeUDPConnection reapplies dst's filters (spec §4.G).
func (n *Node) UpdateBridgeUDPConnection(ctx context.Context, name string, dst *nio.NIO) error {
	return n.BridgeApplyFilters(ctx, name, dst.Filters())
}

// BridgeStartCapture starts a packet capture on a bridge that already
// exists (spec §4.H Capture capability), independent of the
// at-creation capture start AddBridgeUDPConnection performs when the NIO
// is already flagged as capturing.
func (n *Node) BridgeStartCapture(ctx context.Context, name, path, dlt string) error {
	_, err := n.BridgeSend(ctx, captureStartCommand(name, path, dlt))
	return err
}

// BridgeStopCapture stops a capture started with BridgeStartCapture.
func (n *Node) BridgeStopCapture(ctx context.Context, name string) error {
	_, err := n.BridgeSend(ctx, fmt.Sprintf("bridge stop_capture %s", name))
	return err
}

// BridgeDelete idempotently deletes a bridge: an error reported by the
// hypervisor itself (e.g. "bridge not found") is swallowed, but a
// connection-level failure (process not alive) still propagates.
func (n *Node) BridgeDelete(ctx context.Context, name string) error {
	_, err := n.BridgeSend(ctx, fmt.Sprintf("bridge delete %s", name))
	n.untrackBridge(name)
	if err == nil {
		return nil
	}
	var be *corelog.BridgeError
	if errors.As(err, &be) && be.ProcessLive {
		return nil
	}
	return err
}

// BridgeApplyFilters resets then re-adds filters in deterministic
// iteration order. A BPF compile error is non-fatal: it is reported via
// EventSink.Warning and the remaining filters still apply (spec §4.G,
// §7's taxonomy row for BPF compile errors).
func (n *Node) BridgeApplyFilters(ctx context.Context, name string, filters []nio.FilterEntry) error {
	if _, err := n.BridgeSend(ctx, fmt.Sprintf("bridge reset_packet_filters %s", name)); err != nil {
		return err
	}

	for i, f := range filters {
		if _, err := n.BridgeSend(ctx, filterCommand(name, i, f)); err != nil {
			if f.Kind == nio.FilterBPF {
				if n.events != nil {
					n.events.Warning(n.ID.String(), fmt.Sprintf("BPF filter compile error on bridge %s filter%d: %v", name, i, err))
				}
				continue
			}
			return err
		}
	}
	return nil
}

// AddBridgeEthernetConnection attaches a host Ethernet interface to a
// bridge. The actual attachment method is platform-dependent (spec
// §4.G): see ethernet_linux.go / ethernet_windows.go / ethernet_other.go.
func (n *Node) AddBridgeEthernetConnection(ctx context.Context, name, ifc string, blockHostTraffic bool) error {
	if err := n.BridgeCreate(ctx, name); err != nil {
		return err
	}
	return attachEthernet(ctx, n, name, ifc, blockHostTraffic)
}

// Close releases the console, internal-console, and aux port
// reservations, deletes any bridges this node owns, and tears down the
// wrap proxy. Returns true on the first call, false on every call after
// (spec §4.G, §8 invariant 2).
func (n *Node) Close() bool {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return false
	}
	n.closed = true
	project := n.ProjectID.String()
	console, aux, internal := n.console, n.aux, n.internalConsole
	n.mu.Unlock()

	n.StopWrapConsole()

	n.bridgeMu.Lock()
	names := make([]string, 0, len(n.bridges))
	for name := range n.bridges {
		names = append(names, name)
	}
	n.bridgeMu.Unlock()
	for _, name := range names {
		n.BridgeDelete(context.Background(), name)
	}
	n.BridgeStop(context.Background())

	if console != 0 {
		n.allocator.ReleaseTCP(console, project)
	}
	if aux != 0 {
		n.allocator.ReleaseTCP(aux, project)
	}
	if internal != 0 {
		n.allocator.ReleaseTCP(internal, project)
	}
	return true
}

// bridgeClient returns the underlying client of this node's bridge
// supervisor, for code in this package that needs to issue raw commands
// outside the helper methods above.
func (n *Node) bridgeClient() *bridgeclient.Client {
	return n.bridgeSup.Client()
}
