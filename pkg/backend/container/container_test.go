package container

import (
	"reflect"
	"sort"
	"testing"
)

func TestSubstituteEnvResolvesReferences(t *testing.T) {
	got := substituteEnv(map[string]string{
		"BASE": "/opt/app",
		"PATH": "${BASE}/bin",
	})
	want := []string{"BASE=/opt/app", "PATH=/opt/app/bin"}
	sort.Strings(got)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSubstituteEnvLeavesUnresolvedReferenceAlone(t *testing.T) {
	got := substituteEnv(map[string]string{"PATH": "${MISSING}/bin"})
	want := []string{"PATH=${MISSING}/bin"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestCanonicalizeVolumesDropsPrefixes(t *testing.T) {
	got := canonicalizeVolumes([]string{"/data", "/data/sub", "/etc/app"})
	want := []string{"/data", "/etc/app"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestCanonicalizeVolumesDedupes(t *testing.T) {
	got := canonicalizeVolumes([]string{"/data", "/data", "/data/"})
	want := []string{"/data"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestBuildArgvShellSplitsStartCommand(t *testing.T) {
	got := buildArgv(`/bin/sh -c "echo hello"`)
	want := []string{"/bin/sh", "-c", "echo hello"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestBuildArgvEmptyReturnsNil(t *testing.T) {
	if got := buildArgv("   "); got != nil {
		t.Fatalf("got %v, want nil", got)
	}
}

func TestAdapterTAPAndBridgeNaming(t *testing.T) {
	if got, want := adapterTAPName(2), "tap-gns3-e2"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got, want := adapterBridgeName(2), "bridge2"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDisplayArgFormatsColonPrefix(t *testing.T) {
	if got, want := displayArg(7), ":7"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
