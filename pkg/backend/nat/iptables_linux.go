//go:build linux

package nat

import (
	"fmt"

	"github.com/coreos/go-iptables/iptables"

	"github.com/vnetlab/compute/pkg/corelog"
)

const (
	natTable       = "nat"
	postroutingKey = "POSTROUTING"
)

// ensureMasquerade appends a MASQUERADE rule for traffic egressing ifc,
// if one isn't already present, so NAT-adapter traffic reaches the host
// network the bound interface belongs to (spec §4.H's "constrained
// Cloud" NAT semantics).
func ensureMasquerade(ifc string) error {
	ipt, err := iptables.New()
	if err != nil {
		corelog.Logger.Warnf("nat: iptables not available, skipping masquerade setup: %v", err)
		return nil
	}

	rule := []string{"-o", ifc, "-j", "MASQUERADE"}
	exists, err := ipt.Exists(natTable, postroutingKey, rule...)
	if err != nil {
		return fmt.Errorf("nat: check masquerade rule: %w", err)
	}
	if exists {
		return nil
	}
	if err := ipt.Append(natTable, postroutingKey, rule...); err != nil {
		return fmt.Errorf("nat: append masquerade rule: %w", err)
	}
	return nil
}
