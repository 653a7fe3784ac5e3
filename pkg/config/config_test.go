package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vnetlab/compute/pkg/portalloc"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "compute.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsForUnsetFields(t *testing.T) {
	path := writeConfig(t, "projects_root: /srv/projects\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ProjectsRoot != "/srv/projects" {
		t.Fatalf("got %q", cfg.ProjectsRoot)
	}
	if cfg.TCPPortRange() != portalloc.DefaultTCPRange {
		t.Fatalf("got %v, want default TCP range", cfg.TCPPortRange())
	}
	if cfg.Bridge.Executable != "ubridge" {
		t.Fatalf("got bridge executable %q, want default", cfg.Bridge.Executable)
	}
}

func TestLoadOverridesPortRanges(t *testing.T) {
	path := writeConfig(t, "tcp_range:\n  start: 6000\n  end: 7000\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := portalloc.Range{Start: 6000, End: 7000}
	if cfg.TCPPortRange() != want {
		t.Fatalf("got %v, want %v", cfg.TCPPortRange(), want)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
