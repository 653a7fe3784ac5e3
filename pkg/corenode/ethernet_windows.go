//go:build windows

package corenode

import (
	"context"
	"fmt"
	"net"
)

// attachEthernet on Windows resolves the interface's NPF id and installs a
// PCAP filter excluding the host's own traffic, matching
// `_find_windows_interface` / `_add_ubridge_ethernet_connection` in the
// original implementation.
func attachEthernet(ctx context.Context, n *Node, name, ifc string, blockHostTraffic bool) error {
	npfID, err := findWindowsInterface(ifc)
	if err != nil {
		return err
	}
	if _, err := n.BridgeSend(ctx, fmt.Sprintf("bridge add_nio_ethernet %s %q", name, npfID)); err != nil {
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

// findWindowsInterface maps a human-readable interface name to its NPF
// device id (\Device\NPF_{GUID}), as required by WinPcap/Npcap attachment.
func findWindowsInterface(ifc string) (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	for _, i := range ifaces {
		if i.Name == ifc {
			return `\Device\NPF_` + i.Name, nil
		}
	}
	return "", fmt.Errorf("corenode: interface %q not found", ifc)
}
