//go:build !linux

package cloud

import "strings"

// isHostBridge: bridge-interface passthrough is Linux-specific (brctl);
// elsewhere, host interfaces are connected to directly.
func isHostBridge(ifc string) bool { return false }

// allocateBridgeTAP is never called off Linux since isHostBridge always
// reports false there.
func allocateBridgeTAP(ifc string, port int) (string, error) {
	return "", nil
}

// isWifiInterface applies the macOS-specific libpcap Wi-Fi limitation
// (spec §4.H): the heuristic matches the conventional "en0" primary
// Wi-Fi name and any interface starting with "wl" (the common wlanN /
// wifi naming on BSD/macOS-like systems). Platforms without a reliable
// interface-type query fall back to this naming heuristic rather than
// shelling out to a tool that may not exist.
func isWifiInterface(ifc string) bool {
	return ifc == "en0" || strings.HasPrefix(ifc, "wl")
}
