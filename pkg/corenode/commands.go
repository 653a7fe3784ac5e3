package corenode

import (
	"fmt"
	"strings"

	"github.com/vnetlab/compute/pkg/nio"
)

// attachCommand builds the bridge add_nio_* command line for target,
// dispatching on its kind (spec §6 "Bridge hypervisor wire protocol").
func attachCommand(bridgeName string, target *nio.NIO) (string, error) {
	switch target.Kind() {
	case nio.KindUDP:
		lport, rhost, rport, _ := target.UDPParams()
		return fmt.Sprintf("bridge add_nio_udp %s %d %s %d", bridgeName, lport, rhost, rport), nil
	case nio.KindEthernet:
		ifc, _ := target.InterfaceName()
		return fmt.Sprintf("bridge add_nio_ethernet %s %q", bridgeName, ifc), nil
	case nio.KindTAP:
		ifc, _ := target.InterfaceName()
		return fmt.Sprintf("bridge add_nio_tap %s %q", bridgeName, ifc), nil
	case nio.KindVMnet:
		ifc, _ := target.InterfaceName()
		return fmt.Sprintf("bridge add_nio_fusion_vmnet %s %q", bridgeName, ifc), nil
	default:
		return "", fmt.Errorf("corenode: unknown NIO kind %q", target.Kind())
	}
}

// filterCommand builds one bridge add_packet_filter command line, in the
// numbered filterN form required by spec §8 invariant 4 (order-preserving
// application).
func filterCommand(bridgeName string, index int, f nio.FilterEntry) string {
	cmd := fmt.Sprintf("bridge add_packet_filter %s filter%d %s", bridgeName, index, string(f.Kind))
	if args := strings.Join(f.Params, " "); args != "" {
		cmd += " " + args
	}
	return cmd
}

// captureStartCommand builds the bridge start_capture command line.
func captureStartCommand(bridgeName, path, dlt string) string {
	cmd := fmt.Sprintf("bridge start_capture %s %q", bridgeName, path)
	if dlt != "" {
		cmd += " " + dlt
	}
	return cmd
}
