// Package container implements the Container backend adapter (spec
// §4.H): nodes driven by a container engine, requiring a privileged
// bridge supervisor to move host TAP devices into the container's
// network namespace.
package container

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/vnetlab/compute/internal/dockerapi"
	"github.com/vnetlab/compute/pkg/corelog"
	"github.com/vnetlab/compute/pkg/corenode"
	"github.com/vnetlab/compute/pkg/nio"
)

// Config describes a container node's desired configuration (spec §4.H
// "Create").
type Config struct {
	Image        string
	Hostname     string
	StartCommand string // shell-split to produce argv; empty uses the image default
	Env          map[string]string
	ExtraVolumes []string
	Adapters     int
	VNC          bool
	MacAddresses []string // one per adapter, indexed by adapter number
}

const (
	resourcesMount  = "/gns3/resources"
	networkTemplate = "/etc/network"
	initScript      = "/gns3/init.sh"
	stopGraceSec    = 5
)

// Node is a Container node.
type Node struct {
	*corenode.Node

	cfg    Config
	docker *dockerapi.Client

	containerID string
	pid         int
	nios        map[int]*nio.NIO
	xDisplay    int
	xServerCmd  *exec.Cmd
}

// New wraps base as a Container node driven by docker over client. A
// driver-style structured logger, named per node, is attached to docker
// for request-level tracing.
func New(base *corenode.Node, docker *dockerapi.Client, cfg Config) *Node {
	docker.SetLogger(hclog.Default().Named("container").With("node", base.ID.String()))
	return &Node{Node: base, cfg: cfg, docker: docker, nios: make(map[int]*nio.NIO)}
}

// substituteEnv performs controller-provided ${VAR} substitution of env
// against itself (spec §4.H): each value may reference other declared
// variables, resolved in a single pass with unresolved references left
// untouched.
func substituteEnv(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(env))
	for _, k := range keys {
		v := env[k]
		for ref, refVal := range env {
			v = strings.ReplaceAll(v, "${"+ref+"}", refVal)
		}
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}

// canonicalizeVolumes drops any declared volume that lies under another
// declared volume, keeping the outermost entries (spec §4.H: "canonicalized
// so no declared volume is a prefix of another").
func canonicalizeVolumes(volumes []string) []string {
	cleaned := make([]string, 0, len(volumes))
	seen := make(map[string]bool)
	for _, v := range volumes {
		c := filepath.Clean(v)
		if !seen[c] {
			seen[c] = true
			cleaned = append(cleaned, c)
		}
	}
	sort.Strings(cleaned)

	var out []string
	for i, v := range cleaned {
		isPrefix := false
		for j, other := range cleaned {
			if i == j {
				continue
			}
			if v != other && strings.HasPrefix(v+"/", other+"/") {
				isPrefix = true
				break
			}
		}
		if !isPrefix {
			out = append(out, v)
		}
	}
	return out
}

// buildHostConfig composes the mount binds: the read-only resources
// directory, the mandatory /etc/network template directory, and the
// canonicalized extra volumes from cfg.ExtraVolumes. Volumes declared by
// the image itself are not added.
func (n *Node) buildHostConfig() dockerapi.HostConfig {
	binds := []string{
		fmt.Sprintf("%s:%s:ro", n.WorkingDir(), resourcesMount),
		fmt.Sprintf("%s:%s", filepath.Join(n.WorkingDir(), "etc-network"), networkTemplate),
	}
	for _, v := range canonicalizeVolumes(n.cfg.ExtraVolumes) {
		binds = append(binds, fmt.Sprintf("%s:%s", filepath.Join(n.WorkingDir(), "volumes", filepath.Base(v)), v))
	}
	return dockerapi.HostConfig{Binds: binds, Privileged: true}
}

// buildArgv resolves the container's entrypoint/cmd per spec §4.H:
// start_command shell-split if present, else the image default (nil Cmd
// lets the engine apply its own default), always wrapped by the init
// script as entrypoint.
func buildArgv(startCommand string) []string {
	if strings.TrimSpace(startCommand) == "" {
		return nil
	}
	return shellSplit(startCommand)
}

// shellSplit is a minimal whitespace/quote-aware splitter sufficient for
// the simple start_command strings container templates declare; it does
// not implement full shell grammar (backticks, globs, pipes).
func shellSplit(s string) []string {
	var out []string
	var cur strings.Builder
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				cur.WriteByte(c)
			}
		case c == '\'' || c == '"':
			quote = c
		case c == ' ' || c == '\t':
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteByte(c)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// Create pulls the image if absent and creates the container with the
// composed request; it does not start it.
func (n *Node) Create(ctx context.Context) error {
	exists, err := n.docker.ImageExists(ctx, n.cfg.Image)
	if err != nil {
		return &corelog.BackendError{Backend: "container", Message: fmt.Sprintf("check image: %v", err), IsUserError: false}
	}
	if !exists {
		if err := n.docker.ImagePull(ctx, n.cfg.Image); err != nil {
			return &corelog.BackendError{Backend: "container", Message: fmt.Sprintf("pull image %s: %v", n.cfg.Image, err), IsUserError: true}
		}
	}

	req := dockerapi.CreateRequest{
		Image:      n.cfg.Image,
		Hostname:   n.cfg.Hostname,
		Cmd:        buildArgv(n.cfg.StartCommand),
		Entrypoint: []string{initScript},
		Env:        substituteEnv(n.cfg.Env),
		HostConfig: n.buildHostConfig(),
	}

	id, err := n.docker.Create(ctx, n.Name, req)
	if err != nil {
		return &corelog.BackendError{Backend: "container", Message: fmt.Sprintf("create container: %v", err), IsUserError: false}
	}
	n.containerID = id
	return nil
}

// ContainerID returns the engine-assigned container id, or "" if Create
// has not run yet.
func (n *Node) ContainerID() string { return n.containerID }

// SetContainerID restores a previously created container's id onto a
// freshly wrapped Node, for reconstructing a node from persisted state
// across process invocations without calling Create again.
func (n *Node) SetContainerID(id string) { n.containerID = id }

// adapterTAPName computes the host TAP device name for adapter (spec
// §4.H "tap-gns3-eX").
func adapterTAPName(adapter int) string {
	return fmt.Sprintf("tap-gns3-e%d", adapter)
}

func adapterBridgeName(adapter int) string {
	return fmt.Sprintf("bridge%d", adapter)
}

// x11SocketPath is the X11 Unix socket path for display.
func x11SocketPath(display int) string {
	return fmt.Sprintf("/tmp/.X11-unix/X%d", display)
}

// AddNIO wires adapter's link to target; before Start it is only
// recorded, after Start it is immediately attached to the already-moved
// host TAP (spec §4.H).
func (n *Node) AddNIO(ctx context.Context, adapter, port int, target *nio.NIO) error {
	n.nios[adapter] = target
	if n.Status() != corenode.StatusStarted {
		return nil
	}
	return n.attachAdapterNIO(ctx, adapter, target)
}

func (n *Node) attachAdapterNIO(ctx context.Context, adapter int, target *nio.NIO) error {
	name := adapterBridgeName(adapter)
	src := nio.NewTAP(adapterTAPName(adapter))
	return n.AddBridgeUDPConnection(ctx, name, src, target)
}

// UpdateNIO reapplies filters on adapter's link.
func (n *Node) UpdateNIO(ctx context.Context, adapter, port int, target *nio.NIO) error {
	n.nios[adapter] = target
	if n.Status() != corenode.StatusStarted {
		return nil
	}
	return n.UpdateBridgeUDPConnection(ctx, adapterBridgeName(adapter), target)
}

// RemoveNIO detaches adapter's link.
func (n *Node) RemoveNIO(ctx context.Context, adapter, port int) error {
	delete(n.nios, adapter)
	if n.Status() != corenode.StatusStarted {
		return nil
	}
	return n.BridgeDelete(ctx, adapterBridgeName(adapter))
}

// StartCapture starts a packet capture on one adapter's bridge (port is
// ignored: a container adapter carries exactly one NIO).
func (n *Node) StartCapture(ctx context.Context, adapter, port int, path, dlt string) error {
	return n.BridgeStartCapture(ctx, adapterBridgeName(adapter), path, dlt)
}

// StopCapture stops a capture started with StartCapture.
func (n *Node) StopCapture(ctx context.Context, adapter, port int) error {
	return n.BridgeStopCapture(ctx, adapterBridgeName(adapter))
}

// Start spawns an X server (if VNC), starts the container, reads its
// PID, creates and moves one host TAP per adapter into the container's
// network namespace, and wires any already-declared NIOs (spec §4.H).
func (n *Node) Start(ctx context.Context) error {
	if n.containerID == "" {
		return &corelog.NodeError{Node: n.ID.String(), Operation: "start", Reason: "container has not been created"}
	}

	if err := n.BridgeStart(ctx, true); err != nil {
		return err
	}

	if n.cfg.VNC {
		display, err := nextFreeDisplay()
		if err != nil {
			return err
		}
		cmd, err := startXServer(ctx, display)
		if err != nil {
			return err
		}
		if err := waitForX11Socket(ctx, display); err != nil {
			return err
		}
		n.xDisplay = display
		n.xServerCmd = cmd
	}

	if err := n.docker.Start(ctx, n.containerID); err != nil {
		return &corelog.BackendError{Backend: "container", Message: fmt.Sprintf("start container: %v", err), IsUserError: false}
	}

	info, err := n.docker.Inspect(ctx, n.containerID)
	if err != nil {
		return &corelog.BackendError{Backend: "container", Message: fmt.Sprintf("inspect container: %v", err), IsUserError: false}
	}
	n.pid = info.State.Pid

	for adapter := 0; adapter < n.cfg.Adapters; adapter++ {
		if err := n.bringUpAdapter(ctx, adapter); err != nil {
			return err
		}
	}

	for adapter, target := range n.nios {
		if err := n.attachAdapterNIO(ctx, adapter, target); err != nil {
			return err
		}
	}

	n.SetStatus(corenode.StatusStarted)
	return nil
}

// bringUpAdapter creates a host TAP, attaches it to a bridge, sets its
// MAC, and moves it into the container's namespace as ethN (spec §4.H).
func (n *Node) bringUpAdapter(ctx context.Context, adapter int) error {
	tap := adapterTAPName(adapter)
	name := adapterBridgeName(adapter)

	if err := n.BridgeCreate(ctx, name); err != nil {
		return err
	}

	if _, err := n.BridgeSend(ctx, fmt.Sprintf("bridge add_nio_tap %s %q", name, tap)); err != nil {
		return err
	}

	mac := ""
	if adapter < len(n.cfg.MacAddresses) {
		mac = n.cfg.MacAddresses[adapter]
	}
	if mac != "" {
		if _, err := n.BridgeSend(ctx, fmt.Sprintf("docker set_mac_addr %s %s", tap, mac)); err != nil {
			return err
		}
	}

	dstIfc := fmt.Sprintf("eth%d", adapter)
	if _, err := n.BridgeSend(ctx, fmt.Sprintf("docker move_to_ns %s %d %s", tap, n.pid, dstIfc)); err != nil {
		return err
	}
	return nil
}

// fixPermissions logs, at debug level, a "chmod -R a+rwX <volume>" command
// for each canonicalized extra volume. It executes nothing: no chown or
// chmod is run inside the container or on the host.
func (n *Node) fixPermissions(ctx context.Context) {
	for _, v := range canonicalizeVolumes(n.cfg.ExtraVolumes) {
		cmd := fmt.Sprintf("chmod -R a+rwX %s", v)
		corelog.Logger.Debugf("container %s: fix permissions: %s", n.ID, cmd)
	}
}

// Stop calls fixPermissions (which only logs), then stops the container
// with a 5s grace period, and stops the bridge (spec §4.H).
func (n *Node) Stop(ctx context.Context) error {
	if n.containerID != "" {
		n.fixPermissions(ctx)
		if err := n.docker.Stop(ctx, n.containerID, stopGraceSec); err != nil {
			corelog.Logger.Warnf("container: stop container: %v", err)
		}
	}
	if err := n.BridgeStop(ctx); err != nil {
		corelog.Logger.Warnf("container: bridge stop: %v", err)
	}
	if n.xServerCmd != nil && n.xServerCmd.Process != nil {
		n.xServerCmd.Process.Kill()
		n.xServerCmd = nil
	}
	n.SetStatus(corenode.StatusStopped)
	return nil
}

// Suspend calls the container engine's pause endpoint.
func (n *Node) Suspend(ctx context.Context) error {
	if err := n.docker.Pause(ctx, n.containerID); err != nil {
		return &corelog.BackendError{Backend: "container", Message: fmt.Sprintf("pause: %v", err), IsUserError: false}
	}
	n.SetStatus(corenode.StatusSuspended)
	return nil
}

// Delete stops (if running), deletes the container, then releases base
// resources.
func (n *Node) Delete(ctx context.Context) error {
	if n.Status() == corenode.StatusStarted {
		if err := n.Stop(ctx); err != nil {
			return err
		}
	}
	if n.containerID != "" {
		if err := n.docker.Delete(ctx, n.containerID); err != nil {
			corelog.Logger.Warnf("container: delete container: %v", err)
		}
	}
	n.Close()
	return nil
}

// nextFreeDisplay scans /tmp/.X11-unix for the next unused display
// number (spec §4.H "spawn an X server on the next free display
// number").
func nextFreeDisplay() (int, error) {
	for d := 1; d < 100; d++ {
		if _, err := os.Stat(x11SocketPath(d)); os.IsNotExist(err) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("container: no free X11 display number in [1,100)")
}

func displayArg(display int) string {
	return ":" + strconv.Itoa(display)
}
