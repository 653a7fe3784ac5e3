// Package nio implements the Network I/O descriptor (spec §4.B): an
// immutable value describing one endpoint of a point-to-point virtual link,
// plus the mutable capture/filter state an owning node may update.
package nio

import "sort"

// Kind discriminates the NIO variant for wire interchange with the
// controller (spec §4.B "Serialization").
type Kind string

const (
	KindUDP      Kind = "nio_udp"
	KindEthernet Kind = "nio_ethernet"
	KindTAP      Kind = "nio_tap"
	KindVMnet    Kind = "nio_vmnet"
)

// FilterKind enumerates the packet filter kinds the bridge hypervisor
// understands (spec §3 "NIO").
type FilterKind string

const (
	FilterFreqDrop   FilterKind = "freq_drop"
	FilterLatency    FilterKind = "latency"
	FilterPacketLoss FilterKind = "packet_loss"
	FilterBPF        FilterKind = "bpf"
	FilterCorrupt    FilterKind = "corrupt"
)

// FilterEntry is one (kind, params) pair. Filters are stored as an ordered
// slice, not a map, because invariant 4 (spec §8) requires that
// application preserves the caller's insertion order deterministically —
// a Go map would not.
type FilterEntry struct {
	Kind   FilterKind
	Params []string
}

// NIO is the immutable core plus the mutable capture/filter overlay.
// Construction is total: no I/O happens in New* constructors (spec §4.B).
type NIO struct {
	kind Kind

	// UDP fields
	lport int
	rhost string
	rport int

	// Ethernet/TAP/VMnet fields
	ifaceName string // host_ifc, TAP device, or vmnet name depending on kind

	// mutable overlay
	capturing    bool
	capturePath  string
	captureDLT   string
	filters      []FilterEntry
}

// NewUDP constructs a UDP NIO: a local port bound by the bridge and a
// remote host:port the bridge forwards to.
func NewUDP(lport int, rhost string, rport int) *NIO {
	return &NIO{kind: KindUDP, lport: lport, rhost: rhost, rport: rport}
}

// NewEthernet constructs a host-Ethernet NIO attached to a physical/virtual
// host interface.
func NewEthernet(hostIfc string) *NIO {
	return &NIO{kind: KindEthernet, ifaceName: hostIfc}
}

// NewTAP constructs a TAP-device NIO.
func NewTAP(device string) *NIO {
	return &NIO{kind: KindTAP, ifaceName: device}
}

// NewVMnet constructs a macOS VMnet NIO.
func NewVMnet(name string) *NIO {
	return &NIO{kind: KindVMnet, ifaceName: name}
}

// Kind returns the NIO's discriminant tag.
func (n *NIO) Kind() Kind { return n.kind }

// UDPParams returns the UDP-specific fields; ok is false for non-UDP NIOs.
func (n *NIO) UDPParams() (lport int, rhost string, rport int, ok bool) {
	if n.kind != KindUDP {
		return 0, "", 0, false
	}
	return n.lport, n.rhost, n.rport, true
}

// InterfaceName returns the host interface / TAP device / vmnet name for
// Ethernet, TAP and VMnet NIOs; ok is false for UDP NIOs.
func (n *NIO) InterfaceName() (string, bool) {
	if n.kind == KindUDP {
		return "", false
	}
	return n.ifaceName, true
}

// StartCapture toggles the capture flag and remembers the sink path and
// data-link type. This is side-effect free: the actual capture is started
// on the bridge by the owning node (spec §4.B).
func (n *NIO) StartCapture(path, dlt string) {
	n.capturing = true
	n.capturePath = path
	n.captureDLT = dlt
}

// StopCapture clears the capture flag. The path/DLT are retained for
// diagnostics until the next StartCapture call.
func (n *NIO) StopCapture() {
	n.capturing = false
}

// Capturing reports whether capture is currently flagged, plus the sink
// path and data-link type last set.
func (n *NIO) Capturing() (capturing bool, path string, dlt string) {
	return n.capturing, n.capturePath, n.captureDLT
}

// SetFilters replaces the filter list atomically. Observers must treat the
// returned slice from Filters() as a snapshot (spec §4.B).
func (n *NIO) SetFilters(filters []FilterEntry) {
	snapshot := make([]FilterEntry, len(filters))
	for i, f := range filters {
		snapshot[i] = FilterEntry{Kind: f.Kind, Params: append([]string(nil), f.Params...)}
	}
	n.filters = snapshot
}

// Filters returns a snapshot of the current filter list, in the exact
// iteration order set by SetFilters (spec §3 invariant: filter ordering on
// the bridge matches iteration order of this mapping).
func (n *NIO) Filters() []FilterEntry {
	out := make([]FilterEntry, len(n.filters))
	for i, f := range n.filters {
		out[i] = FilterEntry{Kind: f.Kind, Params: append([]string(nil), f.Params...)}
	}
	return out
}

// Record is the stable wire-interchange form described in spec §4.B.
type Record struct {
	Type string `json:"type"`

	LPort int    `json:"lport,omitempty"`
	RHost string `json:"rhost,omitempty"`
	RPort int    `json:"rport,omitempty"`

	Interface string `json:"interface,omitempty"`

	Capturing     bool     `json:"capturing"`
	CaptureFile   string   `json:"capture_file_path,omitempty"`
	CaptureDLT    string   `json:"capture_data_link_type,omitempty"`
	Filters       []FilterRecord `json:"filters,omitempty"`
}

// FilterRecord is the wire form of a FilterEntry, preserving order via its
// position in the Record.Filters slice (never a map, for the same reason
// FilterEntry isn't one).
type FilterRecord struct {
	Kind   string   `json:"kind"`
	Params []string `json:"params"`
}

// ToRecord serializes the NIO into its stable wire form.
func (n *NIO) ToRecord() Record {
	r := Record{Type: string(n.kind)}
	switch n.kind {
	case KindUDP:
		r.LPort, r.RHost, r.RPort = n.lport, n.rhost, n.rport
	default:
		r.Interface = n.ifaceName
	}
	r.Capturing, r.CaptureFile, r.CaptureDLT = n.Capturing()
	for _, f := range n.filters {
		r.Filters = append(r.Filters, FilterRecord{Kind: string(f.Kind), Params: append([]string(nil), f.Params...)})
	}
	return r
}

// SortedFilterKinds is a small helper for callers that received filters as
// an unordered map (e.g. a JSON object from the controller) and must pick a
// deterministic order; the order picked here is simple lexical order on the
// kind name, used only when the caller has no preserved order of its own.
func SortedFilterKinds(m map[FilterKind][]string) []FilterEntry {
	kinds := make([]string, 0, len(m))
	for k := range m {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	out := make([]FilterEntry, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, FilterEntry{Kind: FilterKind(k), Params: m[FilterKind(k)]})
	}
	return out
}
