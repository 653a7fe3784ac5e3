package registry

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/vnetlab/compute/pkg/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.ProjectsRoot = t.TempDir()
	cfg.ConsoleHost = "127.0.0.1"
	cfg.Bridge.Executable = "/bin/true"
	cfg.Bridge.LogDir = t.TempDir()
	return cfg
}

func freshState(name string) *State {
	return &State{
		ProjectID:   uuid.New(),
		ProjectName: name,
		Nodes:       make(map[string]*Record),
	}
}

// l2switch and cloud nodes never spawn the bridge subprocess during
// construction (only Start does), so CreateNode exercises real port
// reservation without needing a live ubridge binary.

func TestCreateNodeL2Switch(t *testing.T) {
	cfg := testConfig(t)
	s := freshState("p1")

	rec, err := CreateNode(context.Background(), cfg, s, "sw1", KindL2Switch, nil)
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	if rec.Console != 0 {
		t.Fatalf("l2switch should have no console, got %d", rec.Console)
	}
	if rec.Status != "stopped" {
		t.Fatalf("new node status = %q, want stopped", rec.Status)
	}
	if _, ok := s.Nodes["sw1"]; !ok {
		t.Fatalf("CreateNode did not register the node in state")
	}
}

func TestCreateNodeCloudHasNoConsole(t *testing.T) {
	cfg := testConfig(t)
	s := freshState("p1")

	rec, err := CreateNode(context.Background(), cfg, s, "cloud1", KindCloud, nil)
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	// Cloud nodes carry ConsoleNone too (see buildNode), so no console port
	// is expected either.
	if rec.Console != 0 {
		t.Fatalf("cloud node should have no console, got %d", rec.Console)
	}
}

func TestCreateNodeDuplicateNameErrors(t *testing.T) {
	cfg := testConfig(t)
	s := freshState("p1")

	if _, err := CreateNode(context.Background(), cfg, s, "sw1", KindL2Switch, nil); err != nil {
		t.Fatalf("first CreateNode: %v", err)
	}
	if _, err := CreateNode(context.Background(), cfg, s, "sw1", KindL2Switch, nil); err == nil {
		t.Fatalf("expected error creating a duplicate node name")
	}
}

func TestCreateNodeUnknownKindErrors(t *testing.T) {
	cfg := testConfig(t)
	s := freshState("p1")

	if _, err := CreateNode(context.Background(), cfg, s, "x", "not-a-kind", nil); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	if _, ok := s.Nodes["x"]; ok {
		t.Fatalf("a failed CreateNode must not register a record")
	}
}

func TestStartNodeUnknownNameErrors(t *testing.T) {
	cfg := testConfig(t)
	s := freshState("p1")
	if err := StartNode(cfg, s, "ghost"); err == nil {
		t.Fatalf("expected error starting an unregistered node")
	}
}

func TestDeleteNodeUnregistersRecord(t *testing.T) {
	cfg := testConfig(t)
	s := freshState("p1")

	if _, err := CreateNode(context.Background(), cfg, s, "sw1", KindL2Switch, nil); err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	if err := DeleteNode(cfg, s, "sw1"); err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}
	if _, ok := s.Nodes["sw1"]; ok {
		t.Fatalf("DeleteNode should remove the record from state")
	}
}

func TestNioFromAdapterUnknownKindReturnsNil(t *testing.T) {
	if got := nioFromAdapter(AdapterRecord{NIOKind: "nio_bogus"}); got != nil {
		t.Fatalf("expected nil for unknown nio kind, got %v", got)
	}
}

func TestPortFromKey(t *testing.T) {
	port, err := portFromKey("2/5")
	if err != nil {
		t.Fatalf("portFromKey: %v", err)
	}
	if port != 5 {
		t.Fatalf("port = %d, want 5", port)
	}
}

func TestAdapterPort(t *testing.T) {
	adapter, port, err := adapterPort("2/5")
	if err != nil {
		t.Fatalf("adapterPort: %v", err)
	}
	if adapter != 2 || port != 5 {
		t.Fatalf("adapterPort = (%d, %d), want (2, 5)", adapter, port)
	}
}
