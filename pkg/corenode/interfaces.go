package corenode

import (
	"context"

	"github.com/vnetlab/compute/pkg/nio"
)

// Lifecycle is the capability every backend adapter implements for
// create/start/stop/suspend/delete (spec §9: dynamic-dispatch base class
// replaced by a set of capability interfaces).
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Suspend(ctx context.Context) error
	Delete(ctx context.Context) error
}

// Linking is the capability for adapters that wire point-to-point links.
type Linking interface {
	AddNIO(ctx context.Context, adapter, port int, n *nio.NIO) error
	UpdateNIO(ctx context.Context, adapter, port int, n *nio.NIO) error
	RemoveNIO(ctx context.Context, adapter, port int) error
}

// Console is the capability for adapters exposing an interactive console
// beyond the base wrap-console proxy (e.g. resetting a VM's virtual
// terminal).
type Console interface {
	StartConsole(ctx context.Context) error
	StopConsole(ctx context.Context) error
	ResetConsole(ctx context.Context) error
}

// Capture is the capability for adapters that can start/stop a packet
// capture on one of their link endpoints.
type Capture interface {
	StartCapture(ctx context.Context, adapter, port int, path, dlt string) error
	StopCapture(ctx context.Context, adapter, port int) error
}
