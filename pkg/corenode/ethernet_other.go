//go:build !linux && !windows

package corenode

import (
	"context"
	"fmt"
)

// attachEthernet on other platforms (notably macOS) uses libpcap
// attachment and applies the MAC-source filter opportunistically (spec
// §4.G).
func attachEthernet(ctx context.Context, n *Node, name, ifc string, blockHostTraffic bool) error {
	if _, err := n.BridgeSend(ctx, fmt.Sprintf("bridge add_nio_ethernet %s %q", name, ifc)); err != nil {
		return err
	}
	if !blockHostTraffic {
		return nil
	}
	mac, err := hostInterfaceMAC(ifc)
	if err != nil {
		return nil
	}
	_, err = n.BridgeSend(ctx, fmt.Sprintf("bridge set_pcap_filter %s %q", name, "not ether src "+mac))
	return err
}
