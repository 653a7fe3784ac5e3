package registry

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	root := t.TempDir()
	projectID := uuid.New()

	s, err := Load(root, projectID, "lab1")
	if err != nil {
		t.Fatalf("Load (fresh): %v", err)
	}
	if s.ProjectName != "lab1" {
		t.Fatalf("fresh state name = %q, want %q", s.ProjectName, "lab1")
	}
	if len(s.Nodes) != 0 {
		t.Fatalf("fresh state should have no nodes, got %d", len(s.Nodes))
	}

	s.Nodes["r1"] = &Record{
		ID:      uuid.New(),
		Name:    "r1",
		Kind:    KindL2Switch,
		Status:  "stopped",
		Console: 0,
		Created: time.Now(),
		Params:  map[string]string{"foo": "bar"},
		Adapters: map[string]AdapterRecord{
			"0/0": {NIOKind: "nio_udp", LPort: 20000, RHost: "127.0.0.1", RPort: 20001},
		},
	}
	if err := Save(root, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := Load(root, projectID, "")
	if err != nil {
		t.Fatalf("Load (reloaded): %v", err)
	}
	if reloaded.ProjectName != "lab1" {
		t.Fatalf("reloaded name = %q, want %q", reloaded.ProjectName, "lab1")
	}
	rec, ok := reloaded.Nodes["r1"]
	if !ok {
		t.Fatalf("reloaded state missing node r1")
	}
	if rec.Kind != KindL2Switch || rec.Params["foo"] != "bar" {
		t.Fatalf("reloaded record mismatch: %+v", rec)
	}
	if a, ok := rec.Adapters["0/0"]; !ok || a.LPort != 20000 {
		t.Fatalf("reloaded adapter mismatch: %+v", rec.Adapters)
	}
}

func TestLoadMissingFileReturnsFreshState(t *testing.T) {
	root := t.TempDir()
	projectID := uuid.New()
	s, err := Load(root, projectID, "empty-project")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.ProjectID != projectID {
		t.Fatalf("ProjectID = %v, want %v", s.ProjectID, projectID)
	}
	if s.Nodes == nil {
		t.Fatalf("Nodes map should be initialized, got nil")
	}
}

func TestFindUnknownNode(t *testing.T) {
	s := &State{ProjectName: "p", Nodes: map[string]*Record{}}
	if _, err := s.Find("ghost"); err == nil {
		t.Fatalf("expected error for unknown node")
	}
}

func TestFindKnownNode(t *testing.T) {
	rec := &Record{Name: "r1", Kind: KindCloud}
	s := &State{ProjectName: "p", Nodes: map[string]*Record{"r1": rec}}
	got, err := s.Find("r1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if got != rec {
		t.Fatalf("Find returned a different record")
	}
}
