package registry

import (
	"context"
	"fmt"

	"github.com/vnetlab/compute/pkg/backend/cloud"
	"github.com/vnetlab/compute/pkg/backend/l2switch"
	"github.com/vnetlab/compute/pkg/backend/nat"
	"github.com/vnetlab/compute/pkg/config"
	"github.com/vnetlab/compute/pkg/nio"
	"github.com/vnetlab/compute/pkg/portalloc"
	"github.com/vnetlab/compute/pkg/project"
)

// LinkSpec is the CLI-facing description of one NIO endpoint to wire
// (spec §4.B "Serialization" vocabulary: nio_udp/nio_ethernet/nio_tap/
// nio_vmnet), plus the l2switch-only VLAN fields.
type LinkSpec struct {
	Adapter int
	Port    int

	NIOKind string // "nio_udp", "nio_ethernet", "nio_tap", "nio_vmnet"
	LPort   int
	RHost   string
	RPort   int
	Iface   string

	PortType string // l2switch only: "access", "dot1q", "qinq"
	VLAN     int
}

func adapterKey(adapter, port int) string { return fmt.Sprintf("%d/%d", adapter, port) }

func (spec LinkSpec) toAdapterRecord() AdapterRecord {
	return AdapterRecord{
		NIOKind:  spec.NIOKind,
		LPort:    spec.LPort,
		RHost:    spec.RHost,
		RPort:    spec.RPort,
		Iface:    spec.Iface,
		VLAN:     spec.VLAN,
		PortType: spec.PortType,
	}
}

func (spec LinkSpec) toNIO() (*nio.NIO, error) {
	switch nio.Kind(spec.NIOKind) {
	case nio.KindUDP:
		return nio.NewUDP(spec.LPort, spec.RHost, spec.RPort), nil
	case nio.KindEthernet:
		return nio.NewEthernet(spec.Iface), nil
	case nio.KindTAP:
		return nio.NewTAP(spec.Iface), nil
	case nio.KindVMnet:
		return nio.NewVMnet(spec.Iface), nil
	default:
		return nil, fmt.Errorf("registry: unknown nio kind %q", spec.NIOKind)
	}
}

// AddLink wires a new link endpoint on name's adapter/port and persists
// it so later invocations (including a later Start) reconstruct the same
// wiring (spec §4.H Linking capability).
func AddLink(cfg config.Config, s *State, name string, spec LinkSpec) error {
	rec, err := s.Find(name)
	if err != nil {
		return err
	}

	target, err := spec.toNIO()
	if err != nil {
		return err
	}

	alloc := portalloc.New(cfg.ConsoleHost)
	proj := project.New(s.ProjectID, s.ProjectName, cfg.ProjectsRoot)
	n, err := buildNode(cfg, alloc, proj, rec)
	if err != nil {
		return err
	}

	ctx := context.Background()
	switch typed := n.(type) {
	case adapterLinker:
		if err := typed.AddNIO(ctx, spec.Adapter, spec.Port, target); err != nil {
			return err
		}
	case *l2switch.Node:
		portCfg := l2switch.PortConfig{Type: l2switch.PortType(spec.PortType), VLAN: spec.VLAN}
		if l2switch.PortType(spec.PortType) == l2switch.PortQinQ {
			portCfg.EtherType = l2switch.EtherType8100
		}
		if err := typed.SetPort(ctx, spec.Port, portCfg, target); err != nil {
			return err
		}
	case *cloud.Node:
		if err := typed.AddPort(ctx, spec.Port, cloud.Port{Kind: cloud.PortKind(spec.NIOKind), Interface: spec.Iface, NIO: target}); err != nil {
			return err
		}
	case *nat.Node:
		if err := typed.AddPort(ctx, spec.Port, cloud.Port{Kind: cloud.PortKind(spec.NIOKind), Interface: spec.Iface, NIO: target}); err != nil {
			return err
		}
	default:
		return fmt.Errorf("registry: node %q's backend does not support links", name)
	}

	if rec.Adapters == nil {
		rec.Adapters = make(map[string]AdapterRecord)
	}
	rec.Adapters[adapterKey(spec.Adapter, spec.Port)] = spec.toAdapterRecord()
	return nil
}

// RemoveLink tears down a previously wired link endpoint.
func RemoveLink(cfg config.Config, s *State, name string, adapter, port int) error {
	rec, err := s.Find(name)
	if err != nil {
		return err
	}

	alloc := portalloc.New(cfg.ConsoleHost)
	proj := project.New(s.ProjectID, s.ProjectName, cfg.ProjectsRoot)
	n, err := buildNode(cfg, alloc, proj, rec)
	if err != nil {
		return err
	}

	ctx := context.Background()
	switch typed := n.(type) {
	case interface {
		RemoveNIO(ctx context.Context, adapter, port int) error
	}:
		if err := typed.RemoveNIO(ctx, adapter, port); err != nil {
			return err
		}
	case *cloud.Node:
		if err := typed.RemovePort(ctx, port); err != nil {
			return err
		}
	case *nat.Node:
		if err := typed.RemovePort(ctx, port); err != nil {
			return err
		}
	default:
		return fmt.Errorf("registry: node %q's backend does not support links", name)
	}

	delete(rec.Adapters, adapterKey(adapter, port))
	return nil
}

// capturer is satisfied by userpc, cloud/nat, and container nodes.
// l2switch does not implement it: its ports are ethsw switch ports, not
// point-to-point bridges, so a single-endpoint capture command has no
// natural target there.
type capturer interface {
	StartCapture(ctx context.Context, adapter, port int, path, dlt string) error
	StopCapture(ctx context.Context, adapter, port int) error
}

func buildCapturer(cfg config.Config, s *State, name string) (capturer, error) {
	rec, err := s.Find(name)
	if err != nil {
		return nil, err
	}
	alloc := portalloc.New(cfg.ConsoleHost)
	proj := project.New(s.ProjectID, s.ProjectName, cfg.ProjectsRoot)
	n, err := buildNode(cfg, alloc, proj, rec)
	if err != nil {
		return nil, err
	}
	c, ok := n.(capturer)
	if !ok {
		return nil, fmt.Errorf("registry: node %q's backend does not support capture", name)
	}
	return c, nil
}

// StartCapture starts a packet capture on a node's link endpoint.
func StartCapture(cfg config.Config, s *State, name string, adapter, port int, path, dlt string) error {
	c, err := buildCapturer(cfg, s, name)
	if err != nil {
		return err
	}
	return c.StartCapture(context.Background(), adapter, port, path, dlt)
}

// StopCapture stops a capture previously started with StartCapture.
func StopCapture(cfg config.Config, s *State, name string, adapter, port int) error {
	c, err := buildCapturer(cfg, s, name)
	if err != nil {
		return err
	}
	return c.StopCapture(context.Background(), adapter, port)
}
