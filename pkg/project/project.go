// Package project implements the Project Context (spec §4.I): the
// aggregate that owns a project's working directory and its nodes, and
// forwards node/log events to the event bus.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Closer is satisfied by corenode.Node; kept as a narrow interface so this
// package does not need to know about backend-specific node types beyond
// the lifecycle it must tear down.
type Closer interface {
	Close() bool
}

// Project owns a working directory rooted at <projectsRoot>/<id> and the
// set of nodes created within it (spec §3 "Project").
type Project struct {
	ID   uuid.UUID
	Name string

	rootDir string

	mu    sync.Mutex
	nodes map[uuid.UUID]Closer
	names map[string]uuid.UUID // lower-cased name -> id, for uniqueness
}

// New creates (but does not yet materialize on disk) a Project rooted at
// <projectsRoot>/<id>.
func New(id uuid.UUID, name, projectsRoot string) *Project {
	return &Project{
		ID:      id,
		Name:    name,
		rootDir: filepath.Join(projectsRoot, id.String()),
		nodes:   make(map[uuid.UUID]Closer),
		names:   make(map[string]uuid.UUID),
	}
}

// RootDir returns the project's working directory.
func (p *Project) RootDir() string { return p.rootDir }

// EnsureRootDir creates the project's working directory if it does not
// already exist.
func (p *Project) EnsureRootDir() error {
	return os.MkdirAll(p.rootDir, 0o755)
}

// NodeWorkingDirectory computes <root>/project-files/<module>/<node_id>,
// the per-node working directory helper backends use to lay out their
// files (spec §4.I, §6 "Working directory layout").
func (p *Project) NodeWorkingDirectory(module string, nodeID uuid.UUID) string {
	return filepath.Join(p.rootDir, "project-files", module, nodeID.String())
}

// AddNode registers a node under this project, enforcing unique (UUID,
// case-insensitive name) pairs (spec §3 "Project").
func (p *Project) AddNode(id uuid.UUID, name string, n Closer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	lower := lowerASCII(name)
	if existing, ok := p.names[lower]; ok && existing != id {
		return fmt.Errorf("project: node name %q already in use", name)
	}
	if _, ok := p.nodes[id]; ok {
		return fmt.Errorf("project: node %s already registered", id)
	}

	p.nodes[id] = n
	p.names[lower] = id
	return nil
}

// RemoveNode closes and unregisters a node, returning whether this call
// actually closed it (spec §4.G/§8 invariant 2: idempotent close).
func (p *Project) RemoveNode(id uuid.UUID) bool {
	p.mu.Lock()
	n, ok := p.nodes[id]
	if ok {
		delete(p.nodes, id)
		for name, nid := range p.names {
			if nid == id {
				delete(p.names, name)
				break
			}
		}
	}
	p.mu.Unlock()

	if !ok {
		return false
	}
	return n.Close()
}

// Nodes returns the set of currently registered node ids.
func (p *Project) Nodes() []uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(p.nodes))
	for id := range p.nodes {
		ids = append(ids, id)
	}
	return ids
}

// Close closes every node, then recursively removes the project's working
// directory using a write-permission-healing walk (spec §4.I: chmod u+w
// before unlink, to cope with read-only files left behind by emulators).
func (p *Project) Close() error {
	p.mu.Lock()
	ids := make([]uuid.UUID, 0, len(p.nodes))
	for id := range p.nodes {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	for _, id := range ids {
		p.RemoveNode(id)
	}

	return removeAllWritable(p.rootDir)
}

// removeAllWritable walks root bottom-up, ensuring every file and
// directory is writable before removal so read-only artifacts (common
// with some emulator disk images) don't abort the teardown.
func removeAllWritable(root string) error {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}

	var dirs []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			dirs = append(dirs, path)
			return os.Chmod(path, info.Mode()|0o200)
		}
		if info.Mode()&0o200 == 0 {
			if chmodErr := os.Chmod(path, info.Mode()|0o200); chmodErr != nil {
				return chmodErr
			}
		}
		return os.Remove(path)
	})
	if err != nil {
		return fmt.Errorf("project: remove working directory: %w", err)
	}

	// Remove directories deepest-first so children are already gone.
	for i := len(dirs) - 1; i >= 0; i-- {
		if err := os.Remove(dirs[i]); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("project: remove directory %s: %w", dirs[i], err)
		}
	}
	return nil
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
