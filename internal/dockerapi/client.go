// Package dockerapi implements the small subset of a container-engine
// REST API the compute runtime depends on (spec §6 "Container-engine
// REST"): create/start/stop/pause/unpause/restart/delete/logs/attach.
//
// This is a hand-rolled client over net/http and a Unix-socket
// transport rather than a wrapped SDK: the only container-engine code
// in the reference corpus is the daemon's own internal packages, not an
// importable client, so there is nothing upstream to bind against.
package dockerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
)

// DefaultSocket is the conventional Unix socket the container engine
// listens on.
const DefaultSocket = "/var/run/docker.sock"

// Client talks to the container engine over its REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     hclog.Logger
}

// New constructs a Client dialing socketPath over a Unix socket. An
// empty socketPath uses DefaultSocket. Diagnostic logging is a no-op
// until a caller supplies one via SetLogger.
func New(socketPath string) *Client {
	if socketPath == "" {
		socketPath = DefaultSocket
	}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}
	return &Client{
		httpClient: &http.Client{Transport: transport, Timeout: 60 * time.Second},
		baseURL:    "http://unix",
		logger:     hclog.NewNullLogger(),
	}
}

// SetLogger attaches a driver-style structured logger (spec's
// domain-stack wiring note: an adapter-local diagnostic logger passed to
// the docker API client) used to trace each request this client issues.
func (c *Client) SetLogger(l hclog.Logger) {
	if l != nil {
		c.logger = l
	}
}

// CreateRequest is the JSON body for POST /containers/create.
type CreateRequest struct {
	Image      string            `json:"Image"`
	Hostname   string            `json:"Hostname,omitempty"`
	Cmd        []string          `json:"Cmd,omitempty"`
	Entrypoint []string          `json:"Entrypoint,omitempty"`
	Env        []string          `json:"Env,omitempty"`
	Volumes    map[string]struct{} `json:"Volumes,omitempty"`
	HostConfig HostConfig        `json:"HostConfig"`
}

// HostConfig carries the mount binds the spec composes (spec §4.H).
type HostConfig struct {
	Binds      []string `json:"Binds,omitempty"`
	Privileged bool     `json:"Privileged,omitempty"`
}

// CreateResponse is the JSON body of POST /containers/create's reply.
type CreateResponse struct {
	ID string `json:"Id"`
}

// InspectResponse is the subset of GET /containers/{id}/json this
// runtime reads.
type InspectResponse struct {
	ID    string `json:"Id"`
	State struct {
		Status string `json:"Status"`
		Pid    int    `json:"Pid"`
		Running bool  `json:"Running"`
	} `json:"State"`
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("dockerapi: marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("dockerapi: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.logger.Debug("request", "method", method, "path", path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dockerapi: %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("dockerapi: %s %s: status %d: %s", method, path, resp.StatusCode, string(b))
	}
	return resp, nil
}

// Create calls POST /containers/create?name=<name>.
func (c *Client) Create(ctx context.Context, name string, req CreateRequest) (string, error) {
	path := "/containers/create"
	if name != "" {
		path += "?" + url.Values{"name": {name}}.Encode()
	}
	resp, err := c.do(ctx, http.MethodPost, path, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var out CreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("dockerapi: decode create response: %w", err)
	}
	return out.ID, nil
}

// Inspect calls GET /containers/{id}/json.
func (c *Client) Inspect(ctx context.Context, id string) (*InspectResponse, error) {
	resp, err := c.do(ctx, http.MethodGet, "/containers/"+id+"/json", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var out InspectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("dockerapi: decode inspect response: %w", err)
	}
	return &out, nil
}

// Start calls POST /containers/{id}/start.
func (c *Client) Start(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodPost, "/containers/"+id+"/start", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Stop calls POST /containers/{id}/stop?t=<timeoutSeconds>.
func (c *Client) Stop(ctx context.Context, id string, timeoutSeconds int) error {
	path := fmt.Sprintf("/containers/%s/stop?%s", id, url.Values{"t": {fmt.Sprintf("%d", timeoutSeconds)}}.Encode())
	resp, err := c.do(ctx, http.MethodPost, path, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Pause calls POST /containers/{id}/pause.
func (c *Client) Pause(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodPost, "/containers/"+id+"/pause", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Unpause calls POST /containers/{id}/unpause.
func (c *Client) Unpause(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodPost, "/containers/"+id+"/unpause", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Restart calls POST /containers/{id}/restart.
func (c *Client) Restart(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodPost, "/containers/"+id+"/restart", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Delete calls DELETE /containers/{id}?force=1&v=1.
func (c *Client) Delete(ctx context.Context, id string) error {
	path := "/containers/" + id + "?" + url.Values{"force": {"1"}, "v": {"1"}}.Encode()
	resp, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Logs calls GET /containers/{id}/logs and returns the raw stream.
func (c *Client) Logs(ctx context.Context, id string, stdout, stderr bool) (io.ReadCloser, error) {
	path := fmt.Sprintf("/containers/%s/logs?%s", id, url.Values{
		"stdout": {boolParam(stdout)},
		"stderr": {boolParam(stderr)},
	}.Encode())
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func boolParam(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// ImageExists calls GET /images/{name}/json and reports whether the
// image is already present locally.
func (c *Client) ImageExists(ctx context.Context, name string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/images/"+name+"/json", nil)
	if err != nil {
		return false, fmt.Errorf("dockerapi: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("dockerapi: GET /images/%s/json: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("dockerapi: GET /images/%s/json: status %d: %s", name, resp.StatusCode, string(b))
	}
	return true, nil
}

// ImagePull calls POST /images/create?fromImage=<name> and drains the
// streamed progress response.
func (c *Client) ImagePull(ctx context.Context, name string) error {
	path := "/images/create?" + url.Values{"fromImage": {name}}.Encode()
	resp, err := c.do(ctx, http.MethodPost, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(io.Discard, resp.Body)
	return err
}

// AttachWS opens the container's attach/ws endpoint for bidirectional
// stream console access (spec §4.H Console: "attach to the container's
// stream via WebSocket for telnet").
func (c *Client) AttachWS(ctx context.Context, id string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		NetDialContext: func(ctx context.Context, _, addr string) (net.Conn, error) {
			if tr, ok := c.httpClient.Transport.(*http.Transport); ok && tr.DialContext != nil {
				return tr.DialContext(ctx, "unix", addr)
			}
			var d net.Dialer
			return d.DialContext(ctx, "unix", addr)
		},
	}
	path := fmt.Sprintf("ws://unix/containers/%s/attach/ws?%s", id, url.Values{
		"stream": {"1"}, "stdin": {"1"}, "stdout": {"1"}, "stderr": {"1"},
	}.Encode())
	conn, _, err := dialer.DialContext(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("dockerapi: attach/ws: %w", err)
	}
	return conn, nil
}
