package dockerapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
)

// newTestServer starts an httptest.Server listening on a Unix socket at a
// temp path and returns a Client dialing it plus the mux for handlers.
func newTestServer(t *testing.T) (*Client, *http.ServeMux) {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewUnstartedServer(mux)

	sockPath := filepath.Join(t.TempDir(), "docker.sock")
	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listen unix socket: %v", err)
	}
	srv.Listener = ln
	srv.Start()
	t.Cleanup(srv.Close)

	return New(sockPath), mux
}

func TestCreatePostsToExpectedPath(t *testing.T) {
	c, mux := newTestServer(t)
	var gotPath, gotQuery string
	var gotBody CreateRequest
	mux.HandleFunc("/containers/create", func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(CreateResponse{ID: "abc123"})
	})

	id, err := c.Create(context.Background(), "n1", CreateRequest{Image: "nginx", HostConfig: HostConfig{Privileged: true}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id != "abc123" {
		t.Fatalf("got id %q, want abc123", id)
	}
	if gotPath != "/containers/create" {
		t.Fatalf("got path %q", gotPath)
	}
	if gotQuery != "name=n1" {
		t.Fatalf("got query %q", gotQuery)
	}
	if gotBody.Image != "nginx" || !gotBody.HostConfig.Privileged {
		t.Fatalf("got body %+v", gotBody)
	}
}

func TestStopIncludesTimeoutParam(t *testing.T) {
	c, mux := newTestServer(t)
	var gotQuery string
	mux.HandleFunc("/containers/xyz/stop", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.Stop(context.Background(), "xyz", 5); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if gotQuery != "t=5" {
		t.Fatalf("got query %q, want t=5", gotQuery)
	}
}

func TestDeleteIncludesForceAndVolumes(t *testing.T) {
	c, mux := newTestServer(t)
	var gotQuery string
	mux.HandleFunc("/containers/xyz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Fatalf("got method %s, want DELETE", r.Method)
		}
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.Delete(context.Background(), "xyz"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if gotQuery != "force=1&v=1" {
		t.Fatalf("got query %q, want force=1&v=1", gotQuery)
	}
}

func TestInspectDecodesState(t *testing.T) {
	c, mux := newTestServer(t)
	mux.HandleFunc("/containers/xyz/json", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"Id":    "xyz",
			"State": map[string]any{"Status": "running", "Pid": 4242, "Running": true},
		})
	})

	got, err := c.Inspect(context.Background(), "xyz")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if got.State.Pid != 4242 || !got.State.Running {
		t.Fatalf("got %+v", got)
	}
}

func TestDoReturnsErrorOnStatusCode(t *testing.T) {
	c, mux := newTestServer(t)
	mux.HandleFunc("/containers/missing/json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"no such container"}`))
	})

	if _, err := c.Inspect(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error for 404 response")
	}
}
