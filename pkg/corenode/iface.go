package corenode

import (
	"fmt"
	"net"
)

// hostInterfaceMAC resolves the hardware address of a named host
// interface, used to build "not ether src <mac>" PCAP filters that keep
// the host's own traffic out of a captured/forwarded link.
func hostInterfaceMAC(ifc string) (string, error) {
	i, err := net.InterfaceByName(ifc)
	if err != nil {
		return "", err
	}
	if len(i.HardwareAddr) == 0 {
		return "", fmt.Errorf("corenode: interface %q has no hardware address", ifc)
	}
	return i.HardwareAddr.String(), nil
}
