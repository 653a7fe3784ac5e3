// Package bridgesup supervises one bridge hypervisor subprocess: picking
// its control port, spawning it with log redirection, verifying its
// reported version, and stopping it cleanly or by force (spec §4.D).
package bridgesup

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"sync"
	"time"

	"github.com/vnetlab/compute/pkg/bridgeclient"
	"github.com/vnetlab/compute/pkg/corelog"
)

// versionRe extracts the hypervisor's self-reported version string from
// its "-v" banner, e.g. "ubridge version 0.9.18".
var versionRe = regexp.MustCompile(`ubridge version ([0-9a-z.]+)`)

// minVersion is the lowest accepted bridge hypervisor version, which
// differs by platform: darwin shipped bind()-before-connect fixes later.
func minVersion() string {
	if runtime.GOOS == "darwin" {
		return "0.9.12"
	}
	return "0.9.14"
}

const stopGrace = 3 * time.Second

// Supervisor owns one bridge hypervisor subprocess and the Client
// connected to it.
type Supervisor struct {
	binaryPath string
	logDir     string

	mu      sync.Mutex
	cmd     *exec.Cmd
	logFile *os.File
	client  *bridgeclient.Client
	host    string
	port    int
}

// New returns a Supervisor that will spawn binaryPath, redirecting its
// stdout/stderr into a file under logDir.
func New(binaryPath, logDir string) *Supervisor {
	return &Supervisor{binaryPath: binaryPath, logDir: logDir}
}

// pickPort asks the kernel for a free TCP port the hypervisor can bind,
// mirroring the getaddrinfo()+bind() port-selection the hypervisor's own
// launcher performs.
func pickPort(host string) (int, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}

// CheckVersion runs "binaryPath -v" and validates the reported version
// against minVersion() for the current platform. This never touches a
// running process; it is meant to be called once at startup.
func CheckVersion(binaryPath string) (string, error) {
	out, err := exec.Command(binaryPath, "-v").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("bridgesup: %s -v: %w", binaryPath, err)
	}
	m := versionRe.FindSubmatch(out)
	if m == nil {
		return "", fmt.Errorf("bridgesup: could not parse version banner from %s -v", binaryPath)
	}
	version := string(m[1])
	if version < minVersion() {
		return version, fmt.Errorf("bridgesup: %s reports version %s, need >= %s", binaryPath, version, minVersion())
	}
	return version, nil
}

// Start spawns the hypervisor bound to host on a freshly picked port,
// redirects its output to a log file under logDir, and connects a Client
// to it. The caller owns the returned context for the connect retry loop.
func (s *Supervisor) Start(ctx context.Context, host string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		return fmt.Errorf("bridgesup: already started")
	}

	port, err := pickPort(host)
	if err != nil {
		return fmt.Errorf("bridgesup: pick port: %w", err)
	}

	logPath := fmt.Sprintf("%s/ubridge_%d.log", s.logDir, port)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("bridgesup: open log file: %w", err)
	}

	cmd := exec.Command(s.binaryPath, "-H", fmt.Sprintf("%s:%d", host, port))
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return &corelog.BridgeError{Host: host, Port: port, Message: fmt.Sprintf("spawn: %v", err), ProcessLive: false}
	}

	client := bridgeclient.New(host, port)
	if err := client.Connect(ctx); err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		logFile.Close()
		return &corelog.BridgeError{Host: host, Port: port, Message: fmt.Sprintf("connect after spawn: %v", err), ProcessLive: false}
	}

	s.cmd = cmd
	s.logFile = logFile
	s.client = client
	s.host = host
	s.port = port

	corelog.Logger.Infof("bridgesup: started hypervisor pid=%d on %s:%d, logging to %s", cmd.Process.Pid, host, port, logPath)
	return nil
}

// Client returns the connected bridge client, or nil if Start has not
// succeeded.
func (s *Supervisor) Client() *bridgeclient.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// Addr returns the host and port the hypervisor is bound to.
func (s *Supervisor) Addr() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.host, s.port
}

// Alive reports whether the subprocess is believed still running.
func (s *Supervisor) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return false
	}
	// Signal 0 probes for existence without affecting the process.
	return s.cmd.Process.Signal(syscallSignalZero()) == nil
}

// Stop sends the hypervisor a "hypervisor stop" command, waits up to
// stopGrace for the process to exit, then force-kills it. The log file is
// removed afterward, matching the hypervisor's own cleanup-on-stop
// behavior.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil {
		return nil
	}

	if s.client != nil {
		stopCtx, cancel := context.WithTimeout(ctx, stopGrace)
		s.client.Send(stopCtx, "hypervisor stop")
		cancel()
		s.client.Close()
	}

	done := make(chan error, 1)
	go func() { done <- s.cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(stopGrace):
		corelog.Logger.Warnf("bridgesup: hypervisor pid=%d did not exit within %s, killing", s.cmd.Process.Pid, stopGrace)
		s.cmd.Process.Kill()
		<-done
	}

	if s.logFile != nil {
		name := s.logFile.Name()
		s.logFile.Close()
		os.Remove(name)
	}

	s.cmd = nil
	s.client = nil
	s.logFile = nil
	return nil
}

// logReader exposes the hypervisor's log file for diagnostics while it is
// running. Nothing in this module calls it.
func (s *Supervisor) logReader() (*bufio.Reader, error) {
	if s.logFile == nil {
		return nil, fmt.Errorf("bridgesup: no active log file")
	}
	f, err := os.Open(s.logFile.Name())
	if err != nil {
		return nil, err
	}
	return bufio.NewReader(f), nil
}
