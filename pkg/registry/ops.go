package registry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/vnetlab/compute/internal/dockerapi"
	"github.com/vnetlab/compute/pkg/backend/cloud"
	"github.com/vnetlab/compute/pkg/backend/container"
	"github.com/vnetlab/compute/pkg/backend/l2switch"
	"github.com/vnetlab/compute/pkg/backend/nat"
	"github.com/vnetlab/compute/pkg/backend/userpc"
	"github.com/vnetlab/compute/pkg/config"
	"github.com/vnetlab/compute/pkg/corenode"
	"github.com/vnetlab/compute/pkg/nio"
	"github.com/vnetlab/compute/pkg/portalloc"
	"github.com/vnetlab/compute/pkg/project"
)

// Known node kinds (spec §4.H "Backend adapters").
const (
	KindUserPC    = "userpc"
	KindL2Switch  = "l2switch"
	KindCloud     = "cloud"
	KindNAT       = "nat"
	KindContainer = "container"
)

// lifecycle is the subset of corenode.Lifecycle every factory-built node
// satisfies; kept local so ops.go doesn't need a type switch to call the
// four methods common to all five adapters.
type lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Suspend(ctx context.Context) error
	Delete(ctx context.Context) error
}

// buildNode reconstructs a *corenode.Node plus its backend wrapper from a
// Record. Passing rec.Console back into corenode.Config.Console makes
// this idempotent across process invocations: the port is re-reserved at
// the same value (the bind probe succeeds because nothing is bound while
// the node is stopped), so the node's public console address never
// drifts across `computectl` invocations the way it would if a fresh
// port were drawn every time.
func buildNode(cfg config.Config, alloc *portalloc.Allocator, proj *project.Project, rec *Record) (lifecycle, error) {
	consoleType := corenode.ConsoleTelnet
	wrapConsole := true
	if rec.Kind == KindL2Switch || rec.Kind == KindCloud || rec.Kind == KindNAT {
		consoleType = corenode.ConsoleNone
		wrapConsole = false
	}
	if rec.Kind == KindContainer && rec.Params["vnc"] == "true" {
		consoleType = corenode.ConsoleVNC
	}

	workingDir := proj.NodeWorkingDirectory(rec.Kind, rec.ID)

	base, err := corenode.New(corenode.Config{
		ID:          rec.ID,
		ProjectID:   proj.ID,
		Name:        rec.Name,
		Usage:       rec.Kind,
		ConsoleType: consoleType,
		WrapConsole: wrapConsole,
		Console:     rec.Console,
		Allocator:   alloc,
		WorkingDir:  workingDir,
		BridgeBin:   cfg.Bridge.Executable,
		BridgeLog:   cfg.Bridge.LogDir,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: construct node %q: %w", rec.Name, err)
	}

	switch rec.Kind {
	case KindUserPC:
		macID, _ := strconv.Atoi(rec.Params["mac_id"])
		n := userpc.New(base, rec.Params["executable"], macID)
		if err := applyAdapters(n, rec); err != nil {
			return nil, err
		}
		return n, nil

	case KindL2Switch:
		n := l2switch.New(base)
		for key, a := range rec.Adapters {
			port, perr := portFromKey(key)
			if perr != nil {
				continue
			}
			portCfg := l2switch.PortConfig{Type: l2switch.PortType(a.PortType), VLAN: a.VLAN}
			if a.PortType == string(l2switch.PortQinQ) {
				portCfg.EtherType = l2switch.EtherType8100
			}
			if err := n.SetPort(context.Background(), port, portCfg, nioFromAdapter(a)); err != nil {
				return nil, fmt.Errorf("registry: restore port %d on %q: %w", port, rec.Name, err)
			}
		}
		return n, nil

	case KindCloud:
		n := cloud.New(base)
		if err := applyCloudPorts(n, rec); err != nil {
			return nil, err
		}
		return n, nil

	case KindNAT:
		n := nat.New(base, rec.Params["host_interface"])
		if err := applyCloudPorts(n.Node, rec); err != nil {
			return nil, err
		}
		return n, nil

	case KindContainer:
		adapters, _ := strconv.Atoi(rec.Params["adapters"])
		docker := dockerapi.New(rec.Params["docker_socket"])
		n := container.New(base, docker, container.Config{
			Image:        rec.Params["image"],
			Hostname:     rec.Name,
			StartCommand: rec.Params["start_command"],
			VNC:          rec.Params["vnc"] == "true",
			Adapters:     adapters,
		})
		if id := rec.Params["container_id"]; id != "" {
			n.SetContainerID(id)
		}
		if err := applyAdapters(n, rec); err != nil {
			return nil, err
		}
		return n, nil

	default:
		return nil, fmt.Errorf("registry: unknown node kind %q", rec.Kind)
	}
}

func portFromKey(key string) (int, error) {
	var adapter, port int
	if _, err := fmt.Sscanf(key, "%d/%d", &adapter, &port); err != nil {
		return 0, err
	}
	return port, nil
}

func nioFromAdapter(a AdapterRecord) *nio.NIO {
	switch nio.Kind(a.NIOKind) {
	case nio.KindUDP:
		return nio.NewUDP(a.LPort, a.RHost, a.RPort)
	case nio.KindEthernet:
		return nio.NewEthernet(a.Iface)
	case nio.KindTAP:
		return nio.NewTAP(a.Iface)
	case nio.KindVMnet:
		return nio.NewVMnet(a.Iface)
	default:
		return nil
	}
}

type adapterLinker interface {
	AddNIO(ctx context.Context, adapter, port int, n *nio.NIO) error
}

func applyAdapters(n adapterLinker, rec *Record) error {
	for key, a := range rec.Adapters {
		adapter, _, err := adapterPort(key)
		if err != nil {
			continue
		}
		if nioVal := nioFromAdapter(a); nioVal != nil {
			if err := n.AddNIO(context.Background(), adapter, 0, nioVal); err != nil {
				return err
			}
		}
	}
	return nil
}

func adapterPort(key string) (adapter, port int, err error) {
	_, err = fmt.Sscanf(key, "%d/%d", &adapter, &port)
	return adapter, port, err
}

func applyCloudPorts(n *cloud.Node, rec *Record) error {
	for key, a := range rec.Adapters {
		_, port, err := adapterPort(key)
		if err != nil {
			continue
		}
		p := cloud.Port{Kind: cloud.PortKind(a.PortType), Interface: a.Iface, NIO: nioFromAdapter(a)}
		if err := n.AddPort(context.Background(), port, p); err != nil {
			return err
		}
	}
	return nil
}

// CreateNode registers a new node record and materializes it long enough
// to reserve its console port, then persists the state (spec §4.H
// "Create"). params carries kind-specific backend parameters (see
// buildNode for the keys each kind reads).
func CreateNode(ctx context.Context, cfg config.Config, s *State, name, kind string, params map[string]string) (*Record, error) {
	if _, exists := s.Nodes[name]; exists {
		return nil, fmt.Errorf("registry: node %q already exists", name)
	}

	alloc := portalloc.New(cfg.ConsoleHost)
	proj := project.New(s.ProjectID, s.ProjectName, cfg.ProjectsRoot)
	if err := proj.EnsureRootDir(); err != nil {
		return nil, err
	}

	rec := &Record{
		ID:       uuid.New(),
		Name:     name,
		Kind:     kind,
		Status:   string(corenode.StatusStopped),
		Created:  time.Now(),
		Params:   params,
		Adapters: make(map[string]AdapterRecord),
	}

	n, err := buildNode(cfg, alloc, proj, rec)
	if err != nil {
		return nil, err
	}
	if base, ok := n.(interface{ Console() int }); ok {
		rec.Console = base.Console()
	}

	if cn, ok := n.(*container.Node); ok {
		if err := cn.Create(ctx); err != nil {
			return nil, err
		}
		rec.Params["container_id"] = cn.ContainerID()
	}

	s.Nodes[name] = rec
	return rec, nil
}

// withNode reconstructs name's node and runs fn against it, persisting
// rec.Status from the node's final Status() if the wrapper exposes one.
func withNode(cfg config.Config, s *State, name string, fn func(context.Context, lifecycle) error) error {
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
	return fn(context.Background(), n)
}

// StartNode starts a previously created node and records its new status.
func StartNode(cfg config.Config, s *State, name string) error {
	if err := withNode(cfg, s, name, func(ctx context.Context, n lifecycle) error {
		return n.Start(ctx)
	}); err != nil {
		return err
	}
	s.Nodes[name].Status = string(corenode.StatusStarted)
	return nil
}

// StopNode stops a node and records its new status.
func StopNode(cfg config.Config, s *State, name string) error {
	if err := withNode(cfg, s, name, func(ctx context.Context, n lifecycle) error {
		return n.Stop(ctx)
	}); err != nil {
		return err
	}
	s.Nodes[name].Status = string(corenode.StatusStopped)
	return nil
}

// SuspendNode suspends a node and records its new status.
func SuspendNode(cfg config.Config, s *State, name string) error {
	if err := withNode(cfg, s, name, func(ctx context.Context, n lifecycle) error {
		return n.Suspend(ctx)
	}); err != nil {
		return err
	}
	s.Nodes[name].Status = string(corenode.StatusSuspended)
	return nil
}

// DeleteNode stops (best-effort), deletes, and unregisters a node.
func DeleteNode(cfg config.Config, s *State, name string) error {
	if err := withNode(cfg, s, name, func(ctx context.Context, n lifecycle) error {
		return n.Delete(ctx)
	}); err != nil {
		return err
	}
	delete(s.Nodes, name)
	return nil
}
