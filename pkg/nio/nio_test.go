package nio

import "testing"

func TestNewUDPParams(t *testing.T) {
	n := NewUDP(10010, "127.0.0.1", 10011)
	if n.Kind() != KindUDP {
		t.Fatalf("Kind() = %v, want %v", n.Kind(), KindUDP)
	}
	lport, rhost, rport, ok := n.UDPParams()
	if !ok || lport != 10010 || rhost != "127.0.0.1" || rport != 10011 {
		t.Fatalf("UDPParams() = (%d, %q, %d, %v), want (10010, 127.0.0.1, 10011, true)", lport, rhost, rport, ok)
	}
	if _, ok := n.InterfaceName(); ok {
		t.Fatalf("InterfaceName() ok = true for UDP NIO, want false")
	}
}

func TestNewEthernetInterface(t *testing.T) {
	n := NewEthernet("eth0")
	if n.Kind() != KindEthernet {
		t.Fatalf("Kind() = %v, want %v", n.Kind(), KindEthernet)
	}
	ifc, ok := n.InterfaceName()
	if !ok || ifc != "eth0" {
		t.Fatalf("InterfaceName() = (%q, %v), want (eth0, true)", ifc, ok)
	}
	if _, _, _, ok := n.UDPParams(); ok {
		t.Fatalf("UDPParams() ok = true for Ethernet NIO, want false")
	}
}

func TestStartStopCapture(t *testing.T) {
	n := NewTAP("tap0")
	capturing, path, dlt := n.Capturing()
	if capturing || path != "" || dlt != "" {
		t.Fatalf("fresh NIO should not be capturing, got (%v, %q, %q)", capturing, path, dlt)
	}

	n.StartCapture("/tmp/capture.pcap", "DLT_EN10MB")
	capturing, path, dlt = n.Capturing()
	if !capturing || path != "/tmp/capture.pcap" || dlt != "DLT_EN10MB" {
		t.Fatalf("after StartCapture got (%v, %q, %q)", capturing, path, dlt)
	}

	n.StopCapture()
	capturing, path, dlt = n.Capturing()
	if capturing {
		t.Fatalf("after StopCapture, capturing = true, want false")
	}
	if path != "/tmp/capture.pcap" {
		t.Fatalf("StopCapture must retain last capture path for diagnostics, got %q", path)
	}
}

func TestFiltersPreserveOrderAndAreSnapshots(t *testing.T) {
	n := NewUDP(1, "h", 2)
	entries := []FilterEntry{
		{Kind: FilterLatency, Params: []string{"100"}},
		{Kind: FilterPacketLoss, Params: []string{"10"}},
		{Kind: FilterBPF, Params: []string{"udp"}},
	}
	n.SetFilters(entries)

	got := n.Filters()
	if len(got) != 3 {
		t.Fatalf("Filters() returned %d entries, want 3", len(got))
	}
	for i, want := range entries {
		if got[i].Kind != want.Kind {
			t.Fatalf("Filters()[%d].Kind = %v, want %v (order must be preserved)", i, got[i].Kind, want.Kind)
		}
	}

	// Mutating the slice passed to SetFilters, or the slice returned by
	// Filters, must not affect the NIO's internal state.
	entries[0].Params[0] = "mutated"
	got[1].Params[0] = "mutated"
	fresh := n.Filters()
	if fresh[0].Params[0] != "100" {
		t.Fatalf("SetFilters did not take a defensive copy of its input")
	}
	if fresh[1].Params[0] != "10" {
		t.Fatalf("Filters() did not return a defensive copy")
	}
}

func TestToRecordUDP(t *testing.T) {
	n := NewUDP(10010, "127.0.0.1", 10011)
	n.SetFilters([]FilterEntry{{Kind: FilterFreqDrop, Params: []string{"5"}}})
	r := n.ToRecord()

	if r.Type != string(KindUDP) {
		t.Fatalf("Type = %q, want %q", r.Type, KindUDP)
	}
	if r.LPort != 10010 || r.RHost != "127.0.0.1" || r.RPort != 10011 {
		t.Fatalf("UDP fields not serialized correctly: %+v", r)
	}
	if r.Interface != "" {
		t.Fatalf("Interface should be empty for UDP record, got %q", r.Interface)
	}
	if len(r.Filters) != 1 || r.Filters[0].Kind != string(FilterFreqDrop) {
		t.Fatalf("Filters not serialized correctly: %+v", r.Filters)
	}
}

func TestToRecordEthernet(t *testing.T) {
	n := NewEthernet("eth0")
	r := n.ToRecord()
	if r.Type != string(KindEthernet) {
		t.Fatalf("Type = %q, want %q", r.Type, KindEthernet)
	}
	if r.Interface != "eth0" {
		t.Fatalf("Interface = %q, want eth0", r.Interface)
	}
	if r.LPort != 0 || r.RHost != "" || r.RPort != 0 {
		t.Fatalf("UDP fields should be zero for Ethernet record: %+v", r)
	}
}

func TestSortedFilterKinds(t *testing.T) {
	m := map[FilterKind][]string{
		FilterPacketLoss: {"10"},
		FilterBPF:        {"udp"},
		FilterLatency:    {"100"},
	}
	entries := SortedFilterKinds(m)
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Kind >= entries[i].Kind {
			t.Fatalf("SortedFilterKinds did not return lexical order: %+v", entries)
		}
	}
}
