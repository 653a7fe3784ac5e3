//go:build linux

package cloud

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/coreos/go-iptables/iptables"

	"github.com/vnetlab/compute/pkg/corelog"
)

const filterTable = "filter"
const forwardChain = "FORWARD"

// isHostBridge reports whether ifc is a Linux bridge (has a
// /sys/class/net/<ifc>/bridge directory), per spec §4.H's Linux-specific
// passthrough.
func isHostBridge(ifc string) bool {
	info, err := os.Stat(fmt.Sprintf("/sys/class/net/%s/bridge", ifc))
	return err == nil && info.IsDir()
}

// allocateBridgeTAP creates a TAP device named gns3tap<port>-<ifc>,
// truncated to 15 characters, and attaches it to ifc via brctl addif
// (spec §4.H). The name depends only on port and ifc, so a second cloud
// node that attaches the same port number to the same bridge fails to
// create its TAP.
func allocateBridgeTAP(ifc string, port int) (string, error) {
	tap := fmt.Sprintf("gns3tap%d-%s", port, ifc)
	if len(tap) > 15 { // Linux IFNAMSIZ
		tap = tap[:15]
	}

	if out, err := exec.Command("ip", "tuntap", "add", tap, "mode", "tap").CombinedOutput(); err != nil {
		return "", &corelog.BackendError{Backend: "cloud", Message: fmt.Sprintf("create TAP %s: %v: %s", tap, err, out), IsUserError: false}
	}
	if out, err := exec.Command("ip", "link", "set", tap, "up").CombinedOutput(); err != nil {
		return "", &corelog.BackendError{Backend: "cloud", Message: fmt.Sprintf("bring up TAP %s: %v: %s", tap, err, out), IsUserError: false}
	}
	if out, err := exec.Command("brctl", "addif", ifc, tap).CombinedOutput(); err != nil {
		return "", &corelog.BackendError{Backend: "cloud", Message: fmt.Sprintf("attach TAP %s to bridge %s: %v: %s", tap, ifc, err, out), IsUserError: false}
	}
	if err := ensureForwardAllowed(tap, ifc); err != nil {
		corelog.Logger.Warnf("cloud: forward rule bookkeeping for %s<->%s: %v", tap, ifc, err)
	}
	return tap, nil
}

// ensureForwardAllowed appends FORWARD-chain ACCEPT rules between tap and
// the host bridge ifc it was just attached to, so traffic isn't silently
// dropped by a restrictive default FORWARD policy (spec's domain-stack
// wiring note on iptables port-forward bookkeeping for the Linux
// bridge-attach path).
func ensureForwardAllowed(tap, ifc string) error {
	ipt, err := iptables.New()
	if err != nil {
		return fmt.Errorf("iptables unavailable: %w", err)
	}
	for _, rule := range [][]string{
		{"-i", tap, "-o", ifc, "-j", "ACCEPT"},
		{"-i", ifc, "-o", tap, "-j", "ACCEPT"},
	} {
		exists, err := ipt.Exists(filterTable, forwardChain, rule...)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := ipt.Append(filterTable, forwardChain, rule...); err != nil {
			return err
		}
	}
	return nil
}

// isWifiInterface always reports false on Linux; libpcap has no Wi-Fi
// limitation there, so no interface is excluded or refused as Wi-Fi
// (spec §4.H's refusal is macOS-specific).
func isWifiInterface(ifc string) bool { return false }
