// Package cloud implements the Cloud backend adapter (spec §4.H): a
// node with no process of its own that connects virtual ports to host
// interfaces (Ethernet/TAP/VMnet) or remote UDP endpoints.
package cloud

import (
	"context"
	"fmt"
	"net"

	"github.com/vnetlab/compute/pkg/corelog"
	"github.com/vnetlab/compute/pkg/corenode"
	"github.com/vnetlab/compute/pkg/nio"
)

// PortKind discriminates how a cloud port reaches the host.
type PortKind string

const (
	PortEthernet PortKind = "ethernet"
	PortTAP      PortKind = "tap"
	PortVMnet    PortKind = "vmnet"
	PortUDP      PortKind = "udp_remote"
)

// Port describes one cloud port's target.
type Port struct {
	Kind      PortKind
	Interface string // host interface, TAP device, or vmnet name
	NIO       *nio.NIO
}

// Node is a Cloud node: per-port bridges to host interfaces, TAP
// devices, VMnet, or remote UDP endpoints. No subprocess of its own.
type Node struct {
	*corenode.Node

	ports map[int]Port
}

// New wraps base as a Cloud node.
func New(base *corenode.Node) *Node {
	return &Node{Node: base, ports: make(map[int]Port)}
}

// nonSpecialInterfaceNames reports host interfaces suitable as prefilled
// cloud ports when the caller supplies no explicit mapping: anything that
// is up, not loopback, and not reported as Wi-Fi by isWifiInterface (spec
// §4.H "pre-fills non-special host interfaces").
func nonSpecialInterfaceNames() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("cloud: list host interfaces: %w", err)
	}
	var names []string
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagLoopback != 0 {
			continue
		}
		if ifc.Flags&net.FlagUp == 0 {
			continue
		}
		if isWifiInterface(ifc.Name) {
			continue
		}
		names = append(names, ifc.Name)
	}
	return names, nil
}

// PrefillPorts assigns sequential ports to every non-special host
// interface, for callers that created the cloud with no port mapping.
func (n *Node) PrefillPorts() error {
	names, err := nonSpecialInterfaceNames()
	if err != nil {
		return err
	}
	for i, name := range names {
		n.ports[i] = Port{Kind: PortEthernet, Interface: name}
	}
	return nil
}

// bridgeNameFor deterministically names the per-port bridge.
func bridgeNameFor(port int) string {
	return fmt.Sprintf("cloud%d", port)
}

// AddPort wires port to target (spec §4.H). For an Ethernet target that
// resolves to a Linux host bridge, a TAP named by allocateBridgeTAP is
// attached to that bridge via brctl, and the NIO is wired to the TAP instead
// (Linux-specific passthrough). macOS refuses Wi-Fi adapters outright.
func (n *Node) AddPort(ctx context.Context, port int, p Port) error {
	if p.Kind == PortEthernet {
		if isWifiInterface(p.Interface) {
			return &corelog.NodeError{Node: n.ID.String(), Operation: "add_port", Reason: "cannot connect to a Wi-Fi adapter"}
		}
		if isHostBridge(p.Interface) {
			tap, err := allocateBridgeTAP(p.Interface, port)
			if err != nil {
				return err
			}
			p.Kind = PortTAP
			p.Interface = tap
		}
	}

	name := bridgeNameFor(port)
	if err := n.BridgeCreate(ctx, name); err != nil {
		return err
	}

	target := hostNIOFor(p)
	if target == nil {
		return &corelog.NodeError{Node: n.ID.String(), Operation: "add_port", Reason: "unresolvable port target"}
	}

	if err := n.AddBridgeUDPConnection(ctx, name, target, p.NIO); err != nil {
		return err
	}

	n.ports[port] = p
	return nil
}

// hostNIOFor builds the host-facing NIO endpoint for p's kind.
func hostNIOFor(p Port) *nio.NIO {
	switch p.Kind {
	case PortEthernet:
		return nio.NewEthernet(p.Interface)
	case PortTAP:
		return nio.NewTAP(p.Interface)
	case PortVMnet:
		return nio.NewVMnet(p.Interface)
	default:
		return nil
	}
}

// RemovePort tears down the bridge for port.
func (n *Node) RemovePort(ctx context.Context, port int) error {
	delete(n.ports, port)
	return n.BridgeDelete(ctx, bridgeNameFor(port))
}

// StartCapture starts a packet capture on one port's bridge (adapter is
// ignored: Cloud ports are not grouped into adapters).
func (n *Node) StartCapture(ctx context.Context, adapter, port int, path, dlt string) error {
	return n.BridgeStartCapture(ctx, bridgeNameFor(port), path, dlt)
}

// StopCapture stops a capture started with StartCapture.
func (n *Node) StopCapture(ctx context.Context, adapter, port int) error {
	return n.BridgeStopCapture(ctx, bridgeNameFor(port))
}

// Ports returns a snapshot of the current port mapping.
func (n *Node) Ports() map[int]Port {
	out := make(map[int]Port, len(n.ports))
	for k, v := range n.ports {
		out[k] = v
	}
	return out
}

// Start ensures the bridge supervisor is running; Cloud has no
// subprocess of its own.
func (n *Node) Start(ctx context.Context) error {
	if err := n.BridgeStart(ctx, true); err != nil {
		return err
	}
	n.SetStatus(corenode.StatusStarted)
	return nil
}

// Stop tears down every port's bridge and stops the supervisor.
func (n *Node) Stop(ctx context.Context) error {
	for port := range n.ports {
		if err := n.BridgeDelete(ctx, bridgeNameFor(port)); err != nil {
			corelog.Logger.Warnf("cloud: delete bridge for port %d: %v", port, err)
		}
	}
	if err := n.BridgeStop(ctx); err != nil {
		corelog.Logger.Warnf("cloud: bridge stop: %v", err)
	}
	n.SetStatus(corenode.StatusStopped)
	return nil
}

// Suspend is not supported; a Cloud node has no runtime state to pause.
func (n *Node) Suspend(ctx context.Context) error {
	return &corelog.NotSupportedError{Backend: "cloud", Operation: "suspend"}
}

// Delete stops (if running) and releases base resources.
func (n *Node) Delete(ctx context.Context) error {
	if n.Status() == corenode.StatusStarted {
		if err := n.Stop(ctx); err != nil {
			return err
		}
	}
	n.Close()
	return nil
}
