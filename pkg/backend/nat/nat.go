// Package nat implements the NAT backend adapter (spec §4.H): a Cloud
// node constrained to a single well-known host interface provided by a
// host-side VM (the "GNS3 VM"), verified present at start.
package nat

import (
	"context"
	"fmt"
	"net"

	"github.com/vnetlab/compute/pkg/backend/cloud"
	"github.com/vnetlab/compute/pkg/corelog"
	"github.com/vnetlab/compute/pkg/corenode"
)

// Node is a NAT node: a cloud.Node bound to a fixed host interface. Its
// ports are wired through the embedded cloud.Node's AddPort like any cloud
// port; the host interface is not wired to a port automatically.
type Node struct {
	*cloud.Node

	HostInterface string
}

// New wraps base as a NAT node bound to hostInterface.
func New(base *corenode.Node, hostInterface string) *Node {
	return &Node{Node: cloud.New(base), HostInterface: hostInterface}
}

// interfaceExists reports whether name is a known host interface,
// factored out so it's testable without real network state.
func interfaceExists(lookup func() ([]net.Interface, error), name string) (bool, error) {
	ifaces, err := lookup()
	if err != nil {
		return false, err
	}
	for _, ifc := range ifaces {
		if ifc.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// Start verifies the bound host interface is present and ensures
// masquerading on it, then runs the embedded cloud.Node's Start, which
// starts the bridge supervisor. It wires no port.
func (n *Node) Start(ctx context.Context) error {
	ok, err := interfaceExists(net.Interfaces, n.HostInterface)
	if err != nil {
		return fmt.Errorf("nat: list host interfaces: %w", err)
	}
	if !ok {
		return &corelog.NodeError{Node: n.ID.String(), Operation: "start", Reason: fmt.Sprintf("host interface %q not present", n.HostInterface)}
	}
	if err := ensureMasquerade(n.HostInterface); err != nil {
		return err
	}
	return n.Node.Start(ctx)
}
