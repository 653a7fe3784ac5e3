package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

type fakeNode struct {
	closed bool
}

func (f *fakeNode) Close() bool {
	if f.closed {
		return false
	}
	f.closed = true
	return true
}

func TestNodeWorkingDirectoryLayout(t *testing.T) {
	root := t.TempDir()
	pid := uuid.New()
	p := New(pid, "proj1", root)

	nid := uuid.New()
	got := p.NodeWorkingDirectory("userpc", nid)
	want := filepath.Join(root, pid.String(), "project-files", "userpc", nid.String())
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestAddNodeRejectsDuplicateName(t *testing.T) {
	p := New(uuid.New(), "proj1", t.TempDir())

	id1 := uuid.New()
	if err := p.AddNode(id1, "PC1", &fakeNode{}); err != nil {
		t.Fatalf("AddNode: %v", err)
	}

	id2 := uuid.New()
	if err := p.AddNode(id2, "pc1", &fakeNode{}); err == nil {
		t.Fatalf("expected error adding a case-insensitive duplicate name")
	}
}

func TestRemoveNodeClosesAndIsIdempotent(t *testing.T) {
	p := New(uuid.New(), "proj1", t.TempDir())
	id := uuid.New()
	node := &fakeNode{}
	if err := p.AddNode(id, "PC1", node); err != nil {
		t.Fatalf("AddNode: %v", err)
	}

	if !p.RemoveNode(id) {
		t.Fatalf("RemoveNode first call = false, want true")
	}
	if !node.closed {
		t.Fatalf("node was not closed")
	}
	if p.RemoveNode(id) {
		t.Fatalf("RemoveNode second call = true, want false (already removed)")
	}
}

func TestCloseRemovesWorkingDirectoryIncludingReadOnlyFiles(t *testing.T) {
	root := t.TempDir()
	p := New(uuid.New(), "proj1", root)
	if err := p.EnsureRootDir(); err != nil {
		t.Fatalf("EnsureRootDir: %v", err)
	}

	sub := filepath.Join(p.RootDir(), "project-files", "userpc", "node1")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	roFile := filepath.Join(sub, "readonly.img")
	if err := os.WriteFile(roFile, []byte("data"), 0o444); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := os.Stat(p.RootDir()); !os.IsNotExist(err) {
		t.Fatalf("project root directory still exists after Close: err=%v", err)
	}
}
