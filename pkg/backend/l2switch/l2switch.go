// Package l2switch implements the L2 switch backend adapter (spec §4.H):
// a pure bridge-hypervisor construct with no subprocess of its own, where
// each port carries a VLAN tagging mode the bridge's ethsw engine enforces.
package l2switch

import (
	"context"
	"fmt"

	"github.com/vnetlab/compute/pkg/corelog"
	"github.com/vnetlab/compute/pkg/corenode"
	"github.com/vnetlab/compute/pkg/nio"
)

// PortType is the VLAN tagging mode a switch port enforces.
type PortType string

const (
	PortAccess PortType = "access"
	PortDot1Q  PortType = "dot1q"
	PortQinQ   PortType = "qinq"
)

// Allowed qinq EtherTypes (spec §4.H).
const (
	EtherType8100 = 0x8100
	EtherType88A8 = 0x88A8
	EtherType9100 = 0x9100
	EtherType9200 = 0x9200
)

// bridgeName is the single ethsw bridge this adapter creates; a switch
// has many ports but is itself one bridge entity.
const bridgeName = "sw"

// PortConfig describes one switch port's VLAN configuration.
type PortConfig struct {
	Type      PortType
	VLAN      int
	EtherType int // only meaningful, and optional, for PortQinQ
}

// Node is an L2 switch node: no subprocess, just bridge/ethsw wiring.
type Node struct {
	*corenode.Node

	ports map[int]PortConfig
	nios  map[int]string // port -> assigned nio name (nio0, nio1, ...)
	next  int
}

// New wraps base as an L2 switch node.
func New(base *corenode.Node) *Node {
	return &Node{Node: base, ports: make(map[int]PortConfig), nios: make(map[int]string)}
}

func validatePort(cfg PortConfig) error {
	switch cfg.Type {
	case PortAccess, PortDot1Q, PortQinQ:
	default:
		return fmt.Errorf("l2switch: unknown port type %q", cfg.Type)
	}
	if cfg.VLAN < 1 || cfg.VLAN > 4094 {
		return fmt.Errorf("l2switch: vlan %d out of range [1,4094]", cfg.VLAN)
	}
	if cfg.EtherType != 0 {
		if cfg.Type != PortQinQ {
			return fmt.Errorf("l2switch: ethertype is only valid for qinq ports")
		}
		switch cfg.EtherType {
		case EtherType8100, EtherType88A8, EtherType9100, EtherType9200:
		default:
			return fmt.Errorf("l2switch: unsupported qinq ethertype 0x%x", cfg.EtherType)
		}
	}
	return nil
}

// setPortCommand builds the ethsw set_<type>_port command line (spec §4.H,
// §6 wire protocol), omitting the ethertype argument unless the port is
// qinq and an ethertype was given.
func setPortCommand(name string, port int, nioName string, cfg PortConfig) string {
	cmd := fmt.Sprintf("ethsw set_%s_port %s %s %d", cfg.Type, name, nioName, cfg.VLAN)
	if cfg.Type == PortQinQ && cfg.EtherType != 0 {
		cmd += fmt.Sprintf(" 0x%04x", cfg.EtherType)
	}
	return cmd
}

// Start creates the ethsw bridge; it carries no subprocess of its own.
func (n *Node) Start(ctx context.Context) error {
	if err := n.BridgeStart(ctx, false); err != nil {
		return err
	}
	if err := n.BridgeCreate(ctx, bridgeName); err != nil {
		return err
	}
	n.SetStatus(corenode.StatusStarted)
	return nil
}

// Stop deletes the bridge and stops the supervisor.
func (n *Node) Stop(ctx context.Context) error {
	if err := n.BridgeDelete(ctx, bridgeName); err != nil {
		return err
	}
	if err := n.BridgeStop(ctx); err != nil {
		corelog.Logger.Warnf("l2switch: bridge stop: %v", err)
	}
	n.SetStatus(corenode.StatusStopped)
	return nil
}

// Suspend is not supported; a switch has no paused state.
func (n *Node) Suspend(ctx context.Context) error {
	return &corelog.NotSupportedError{Backend: "l2switch", Operation: "suspend"}
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

// SetPort configures port's VLAN behavior and wires target onto the
// switch bridge: `bridge add_nio_udp`, `ethsw add_nio`, then
// `ethsw set_<type>_port` (spec §4.H).
func (n *Node) SetPort(ctx context.Context, port int, cfg PortConfig, target *nio.NIO) error {
	if err := validatePort(cfg); err != nil {
		return &corelog.NodeError{Node: n.ID.String(), Operation: "set_port", Reason: err.Error()}
	}
	if target.Kind() != nio.KindUDP {
		return &corelog.NodeError{Node: n.ID.String(), Operation: "set_port", Reason: "switch ports require a UDP NIO"}
	}

	lport, rhost, rport, _ := target.UDPParams()
	if _, err := n.BridgeSend(ctx, fmt.Sprintf("bridge add_nio_udp %s %d %s %d", bridgeName, lport, rhost, rport)); err != nil {
		return err
	}

	nioName := fmt.Sprintf("nio%d", n.next)
	n.next++
	if _, err := n.BridgeSend(ctx, fmt.Sprintf("ethsw add_nio %s %s", bridgeName, nioName)); err != nil {
		return err
	}
	if _, err := n.BridgeSend(ctx, setPortCommand(bridgeName, port, nioName, cfg)); err != nil {
		return err
	}

	n.ports[port] = cfg
	n.nios[port] = nioName
	return nil
}

// UpdatePort reconfigures an already-wired port's VLAN behavior without
// re-attaching its NIO.
func (n *Node) UpdatePort(ctx context.Context, port int, cfg PortConfig) error {
	if err := validatePort(cfg); err != nil {
		return &corelog.NodeError{Node: n.ID.String(), Operation: "update_port", Reason: err.Error()}
	}
	nioName, ok := n.nios[port]
	if !ok {
		return &corelog.NodeError{Node: n.ID.String(), Operation: "update_port", Reason: "port not wired"}
	}
	if _, err := n.BridgeSend(ctx, setPortCommand(bridgeName, port, nioName, cfg)); err != nil {
		return err
	}
	n.ports[port] = cfg
	return nil
}

// Ports returns a snapshot of the current port configuration.
func (n *Node) Ports() map[int]PortConfig {
	out := make(map[int]PortConfig, len(n.ports))
	for k, v := range n.ports {
		out[k] = v
	}
	return out
}
