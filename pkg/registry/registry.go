// Package registry persists the compute node inventory a long-running
// controller would otherwise keep in memory, so the computectl CLI can
// create a node in one process invocation and start/stop/delete it from
// the next. This mirrors aldrin-isaac-newtron's pkg/newtlab state.json
// convention (LabState/SaveState/LoadState), adapted from one lab's VMs
// to one project's emulated nodes.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Record tracks one node's persisted identity and backend parameters.
// Params carries kind-specific fields (executable path, image name, host
// interface, ...) as strings; numeric/bool values are encoded as they'd
// appear on a command line, since the registry's job is to let a later
// invocation reconstruct the same backend.New(...) call, not to be a
// general key-value store.
type Record struct {
	ID      uuid.UUID         `json:"id"`
	Name    string            `json:"name"`
	Kind    string            `json:"kind"`
	Status  string            `json:"status"`
	Console int               `json:"console"`
	Created time.Time         `json:"created"`
	Params  map[string]string `json:"params,omitempty"`

	// Adapters records the NIO endpoints wired to this node, keyed by
	// "<adapter>/<port>" so AddLink/RemoveLink round-trip deterministically.
	Adapters map[string]AdapterRecord `json:"adapters,omitempty"`
}

// AdapterRecord is one wired link endpoint.
type AdapterRecord struct {
	NIOKind  string `json:"nio_kind"`
	LPort    int    `json:"lport,omitempty"`
	RHost    string `json:"rhost,omitempty"`
	RPort    int    `json:"rport,omitempty"`
	Iface    string `json:"iface,omitempty"`
	VLAN     int    `json:"vlan,omitempty"`
	PortType string `json:"port_type,omitempty"`
}

// State is one project's full node inventory.
type State struct {
	ProjectID   uuid.UUID          `json:"project_id"`
	ProjectName string             `json:"project_name"`
	Created     time.Time          `json:"created"`
	Nodes       map[string]*Record `json:"nodes"` // name -> record
}

// Dir returns the registry directory for a project under projectsRoot.
func Dir(projectsRoot string, projectID uuid.UUID) string {
	return filepath.Join(projectsRoot, projectID.String())
}

func statePath(projectsRoot string, projectID uuid.UUID) string {
	return filepath.Join(Dir(projectsRoot, projectID), "registry.json")
}

// Load reads a project's registry, or returns a fresh empty State if the
// file does not exist yet (a brand-new project).
func Load(projectsRoot string, projectID uuid.UUID, projectName string) (*State, error) {
	path := statePath(projectsRoot, projectID)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &State{
			ProjectID:   projectID,
			ProjectName: projectName,
			Created:     time.Now(),
			Nodes:       make(map[string]*Record),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registry: read %s: %w", path, err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("registry: parse %s: %w", path, err)
	}
	if s.Nodes == nil {
		s.Nodes = make(map[string]*Record)
	}
	return &s, nil
}

// Save writes the registry back to disk, creating the project directory
// if needed.
func Save(projectsRoot string, s *State) error {
	dir := Dir(projectsRoot, s.ProjectID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("registry: create project dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: marshal state: %w", err)
	}
	path := statePath(projectsRoot, s.ProjectID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("registry: write %s: %w", path, err)
	}
	return nil
}

// Find looks up a node by name, case-sensitively. CreateNode rejects only
// an exact duplicate name; it does not go through pkg/project.AddNode's
// case-insensitive check.
func (s *State) Find(name string) (*Record, error) {
	rec, ok := s.Nodes[name]
	if !ok {
		return nil, fmt.Errorf("registry: node %q not found in project %s", name, s.ProjectName)
	}
	return rec, nil
}
