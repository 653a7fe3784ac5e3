package corelog

import (
	"errors"
	"fmt"
)

// Sentinel kinds, one per row of spec §7's error taxonomy. Callers use
// errors.Is against these to decide HTTP status mapping at the (external)
// router layer.
var (
	ErrPortInUse  = errors.New("port in use")
	ErrNoFreePort = errors.New("no free port in range")
	ErrNode       = errors.New("node precondition failed")
	ErrBridge     = errors.New("bridge hypervisor error")
	ErrBackend    = errors.New("backend error")
	ErrTimeout    = errors.New("deadline exceeded")
)

// PortInUseError reports that a specifically requested port could not be
// reserved because another reservation (in or out of range) already holds it.
type PortInUseError struct {
	Port    int
	Project string
}

func (e *PortInUseError) Error() string {
	return fmt.Sprintf("port %d already reserved for project %s", e.Port, e.Project)
}

func (e *PortInUseError) Unwrap() error { return ErrPortInUse }

// NoFreePortError reports that a configured port range is exhausted.
type NoFreePortError struct {
	RangeStart, RangeEnd int
	Project              string
}

func (e *NoFreePortError) Error() string {
	return fmt.Sprintf("no free port in [%d,%d) for project %s", e.RangeStart, e.RangeEnd, e.Project)
}

func (e *NoFreePortError) Unwrap() error { return ErrNoFreePort }

// NodeError reports a backend precondition failure (start without a link,
// VNC console below 5900, operation unsupported by this backend, ...).
type NodeError struct {
	Node      string
	Operation string
	Reason    string
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %s: %s", e.Node, e.Operation, e.Reason)
}

func (e *NodeError) Unwrap() error { return ErrNode }

// BridgeError reports a bridge hypervisor client or supervisor failure. It
// carries the host/port and whether the hypervisor process is still alive,
// per spec §4.C.
type BridgeError struct {
	Host        string
	Port        int
	Message     string
	ProcessLive bool
}

func (e *BridgeError) Error() string {
	return fmt.Sprintf("bridge %s:%d: %s (process alive: %v)", e.Host, e.Port, e.Message, e.ProcessLive)
}

func (e *BridgeError) Unwrap() error { return ErrBridge }

// BackendError reports a subprocess/container backend failure. IsUserError
// distinguishes a user-correctable condition (409) from an infra failure (500).
type BackendError struct {
	Backend     string
	Message     string
	IsUserError bool
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %s", e.Backend, e.Message)
}

func (e *BackendError) Unwrap() error { return ErrBackend }

// TimeoutError reports a deadline elapsed on a retry loop (bridge connect,
// wrap-console connect, capture-file readiness, ...).
type TimeoutError struct {
	Operation string
	Elapsed   string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout waiting for %s (after %s)", e.Operation, e.Elapsed)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// NotSupportedError reports that a backend adapter does not implement a
// given capability (spec §9's interface-capability design).
type NotSupportedError struct {
	Backend   string
	Operation string
}

func (e *NotSupportedError) Error() string {
	return fmt.Sprintf("%s: operation %q not supported", e.Backend, e.Operation)
}
