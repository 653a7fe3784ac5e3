//go:build windows

package corenode

// hasRawSocketCapability assumes Npcap/WinPcap is installed with its
// driver granting raw access; Windows has no equivalent of POSIX
// CAP_NET_RAW to probe cheaply from Go without cgo.
func hasRawSocketCapability() bool {
	return true
}
