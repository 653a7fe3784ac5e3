//go:build linux

package corenode

import (
	"context"
	"fmt"
)

// attachEthernet on Linux defaults to a raw-socket attachment (spec
// §4.G), optionally filtering out traffic the host itself generated.
func attachEthernet(ctx context.Context, n *Node, name, ifc string, blockHostTraffic bool) error {
	if _, err := n.BridgeSend(ctx, fmt.Sprintf("bridge add_nio_linux_raw %s %q", name, ifc)); err != nil {
		return err
	}
	if !blockHostTraffic {
		return nil
	}
	mac, err := hostInterfaceMAC(ifc)
	if err != nil {
		return nil // best-effort: filtering is an optimization, not a hard requirement
	}
	_, err = n.BridgeSend(ctx, fmt.Sprintf("bridge set_pcap_filter %s %q", name, "not ether src "+mac))
	return err
}
