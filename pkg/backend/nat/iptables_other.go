//go:build !linux

package nat

import "github.com/vnetlab/compute/pkg/corelog"

// ensureMasquerade is a no-op off Linux: iptables is Linux-specific, and
// the host-side VM providing the NAT interface handles forwarding on
// other platforms.
func ensureMasquerade(ifc string) error {
	corelog.Logger.Debugf("nat: masquerade setup skipped on this platform for %s", ifc)
	return nil
}
