package container

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/vnetlab/compute/pkg/corelog"
)

const x11SocketWait = 5 * time.Second

// startXServer spawns a headless X server on display (spec §4.H "if VNC,
// spawn an X server on the next free display number").
func startXServer(ctx context.Context, display int) (*exec.Cmd, error) {
	cmd := exec.Command("Xvfb", displayArg(display), "-screen", "0", "1024x768x24", "-nolisten", "tcp")
	if err := cmd.Start(); err != nil {
		return nil, &corelog.BackendError{Backend: "container", Message: fmt.Sprintf("spawn Xvfb: %v", err), IsUserError: false}
	}
	go cmd.Wait()
	return cmd, nil
}

// waitForX11Socket polls for the display's Unix socket to appear, up to
// x11SocketWait (spec §4.H "wait for the X11 socket").
func waitForX11Socket(ctx context.Context, display int) error {
	deadline := time.Now().Add(x11SocketWait)
	path := x11SocketPath(display)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return &corelog.TimeoutError{Operation: "wait for X11 socket", Elapsed: ctx.Err().Error()}
		case <-time.After(50 * time.Millisecond):
		}
	}
	return &corelog.TimeoutError{Operation: fmt.Sprintf("wait for X11 socket %s", path), Elapsed: x11SocketWait.String()}
}
