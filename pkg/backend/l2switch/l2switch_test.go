package l2switch

import "testing"

func TestValidatePortRejectsBadVLAN(t *testing.T) {
	if err := validatePort(PortConfig{Type: PortAccess, VLAN: 0}); err == nil {
		t.Fatalf("expected error for vlan 0")
	}
	if err := validatePort(PortConfig{Type: PortAccess, VLAN: 4095}); err == nil {
		t.Fatalf("expected error for vlan 4095")
	}
	if err := validatePort(PortConfig{Type: PortAccess, VLAN: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidatePortRejectsEtherTypeOnNonQinQ(t *testing.T) {
	if err := validatePort(PortConfig{Type: PortDot1Q, VLAN: 3, EtherType: EtherType88A8}); err == nil {
		t.Fatalf("expected error: ethertype only valid for qinq")
	}
}

func TestValidatePortRejectsUnknownEtherType(t *testing.T) {
	if err := validatePort(PortConfig{Type: PortQinQ, VLAN: 2, EtherType: 0x1234}); err == nil {
		t.Fatalf("expected error for unsupported ethertype")
	}
}

func TestValidatePortAllowsQinQWithoutEtherType(t *testing.T) {
	if err := validatePort(PortConfig{Type: PortQinQ, VLAN: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSetPortCommandOmitsEtherTypeExceptQinQ(t *testing.T) {
	got := setPortCommand("sw", 1, "nio0", PortConfig{Type: PortAccess, VLAN: 1})
	want := "ethsw set_access_port sw nio0 1"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSetPortCommandIncludesEtherTypeForQinQ(t *testing.T) {
	got := setPortCommand("sw", 2, "nio1", PortConfig{Type: PortQinQ, VLAN: 2, EtherType: EtherType88A8})
	want := "ethsw set_qinq_port sw nio1 2 0x88a8"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSetPortCommandDot1Q(t *testing.T) {
	got := setPortCommand("sw", 3, "nio2", PortConfig{Type: PortDot1Q, VLAN: 3})
	want := "ethsw set_dot1q_port sw nio2 3"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
