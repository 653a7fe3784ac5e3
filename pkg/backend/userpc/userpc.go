// Package userpc implements the userspace-PC backend adapter (spec
// §4.H): a subprocess-based node type that always requires a bridge
// supervisor, even for a single link, because all of its link wiring goes
// through the bridge.
package userpc

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/vnetlab/compute/pkg/corelog"
	"github.com/vnetlab/compute/pkg/corenode"
	"github.com/vnetlab/compute/pkg/nio"
)

const stopGrace = 3 * time.Second

// bridgeLinkName is the single bridge this adapter creates, since a
// userspace PC exposes exactly one network adapter.
const bridgeLinkName = "link0"

// Node is a userspace-PC node: *corenode.Node plus the subprocess and NIO
// state specific to this backend.
type Node struct {
	*corenode.Node

	Executable string
	MacID      int

	mu      sync.Mutex
	cmd     *exec.Cmd
	logFile *os.File
	nio     *nio.NIO
}

// New wraps base as a userspace-PC node driven by executable.
func New(base *corenode.Node, executable string, macID int) *Node {
	return &Node{Node: base, Executable: executable, MacID: macID}
}

// AddNIO attaches the single UDP link this PC's one adapter carries (spec
// §4.H: "-s lport -c rport -t <resolved-ip>" link arguments plus bridge
// wiring). It is only valid before Start.
func (n *Node) AddNIO(ctx context.Context, adapter, port int, target *nio.NIO) error {
	if n.Status() == corenode.StatusStarted {
		return &corelog.NodeError{Node: n.ID.String(), Operation: "add_nio", Reason: "cannot change link while started"}
	}
	n.mu.Lock()
	n.nio = target
	n.mu.Unlock()
	return nil
}

// UpdateNIO reapplies filters on the already-wired bridge link.
func (n *Node) UpdateNIO(ctx context.Context, adapter, port int, target *nio.NIO) error {
	n.mu.Lock()
	n.nio = target
	n.mu.Unlock()
	if n.Status() != corenode.StatusStarted {
		return nil
	}
	return n.UpdateBridgeUDPConnection(ctx, bridgeLinkName, target)
}

// RemoveNIO detaches the link.
func (n *Node) RemoveNIO(ctx context.Context, adapter, port int) error {
	n.mu.Lock()
	n.nio = nil
	n.mu.Unlock()
	if n.Status() != corenode.StatusStarted {
		return nil
	}
	return n.BridgeDelete(ctx, bridgeLinkName)
}

// StartCapture starts a packet capture on this PC's one link (adapter and
// port are ignored: there is only ever link0).
func (n *Node) StartCapture(ctx context.Context, adapter, port int, path, dlt string) error {
	return n.BridgeStartCapture(ctx, bridgeLinkName, path, dlt)
}

// StopCapture stops a capture started with StartCapture.
func (n *Node) StopCapture(ctx context.Context, adapter, port int) error {
	return n.BridgeStopCapture(ctx, bridgeLinkName)
}

// buildArgs computes the subprocess argv: internal console, MAC id, and
// link arguments if a UDP NIO has been wired (spec §4.H).
func (n *Node) buildArgs(internalConsole int) []string {
	args := []string{
		"-p", fmt.Sprintf("%d", internalConsole),
		"-m", fmt.Sprintf("%d", n.MacID),
		"-i", "1",
		"-F",
	}
	if n.nio != nil {
		if lport, rhost, rport, ok := n.nio.UDPParams(); ok {
			args = append(args, "-s", fmt.Sprintf("%d", lport), "-c", fmt.Sprintf("%d", rport), "-t", rhost)
		}
	}
	return args
}

// Start validates the executable, spawns it with the computed argv,
// redirects output to a log file, starts the bridge, wires the UDP
// tunnel if present, and starts the wrap-console proxy.
func (n *Node) Start(ctx context.Context) error {
	info, err := os.Stat(n.Executable)
	if err != nil {
		return &corelog.BackendError{Backend: "userpc", Message: fmt.Sprintf("executable not found: %v", err), IsUserError: true}
	}
	if info.Mode()&0o111 == 0 {
		return &corelog.BackendError{Backend: "userpc", Message: "executable is not executable", IsUserError: true}
	}

	internalConsole := n.InternalConsole()
	if internalConsole == 0 {
		return &corelog.NodeError{Node: n.ID.String(), Operation: "start", Reason: "node was not constructed with WrapConsole"}
	}
	logPath := filepath.Join(n.WorkingDir(), "userpc.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("userpc: open log file: %w", err)
	}

	cmd := exec.Command(n.Executable, n.buildArgs(internalConsole)...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return &corelog.BackendError{Backend: "userpc", Message: fmt.Sprintf("spawn: %v", err), IsUserError: false}
	}
	n.CommandLine = cmd.String()

	n.mu.Lock()
	n.cmd = cmd
	n.logFile = logFile
	n.mu.Unlock()

	go func() { cmd.Wait() }()

	if err := n.BridgeStart(ctx, false); err != nil {
		return err
	}

	n.mu.Lock()
	target := n.nio
	n.mu.Unlock()
	if target != nil {
		// A loopback placeholder NIO representing the PC's own side of
		// the wire; the bridge only needs the destination's UDP params.
		src := nio.NewUDP(0, "", 0)
		if err := n.AddBridgeUDPConnection(ctx, bridgeLinkName, src, target); err != nil {
			return err
		}
	}

	if err := n.StartWrapConsole(ctx); err != nil {
		return err
	}

	n.SetStatus(corenode.StatusStarted)
	return nil
}

// Stop terminates the child (SIGTERM, then SIGKILL after stopGrace) and
// stops the bridge (spec §4.H).
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	cmd := n.cmd
	logFile := n.logFile
	n.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		cmd.Process.Signal(syscall.SIGTERM)
		deadline := time.Now().Add(stopGrace)
		for time.Now().Before(deadline) {
			if cmd.Process.Signal(syscall.Signal(0)) != nil {
				break
			}
			time.Sleep(100 * time.Millisecond)
		}
		cmd.Process.Signal(syscall.SIGKILL)
	}
	if logFile != nil {
		logFile.Close()
	}

	n.StopWrapConsole()
	if err := n.BridgeStop(ctx); err != nil {
		corelog.Logger.Warnf("userpc: bridge stop: %v", err)
	}
	n.SetStatus(corenode.StatusStopped)
	return nil
}

// Suspend is not supported by the userspace-PC backend; the process has
// no analogue of a hypervisor-level pause (spec §9: unsupported
// operations return NotSupported rather than panicking).
func (n *Node) Suspend(ctx context.Context) error {
	return &corelog.NotSupportedError{Backend: "userpc", Operation: "suspend"}
}

// Delete stops the node (if running) and closes its base resources.
func (n *Node) Delete(ctx context.Context) error {
	if n.Status() == corenode.StatusStarted {
		if err := n.Stop(ctx); err != nil {
			return err
		}
	}
	n.Close()
	return nil
}
