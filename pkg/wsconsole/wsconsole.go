// Package wsconsole bridges a node's console (a plain TCP stream, as
// exposed by pkg/telnetproxy) to a browser WebSocket connection, so a
// controller UI can attach to a console without a telnet client (spec
// §4.F).
package wsconsole

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vnetlab/compute/pkg/corelog"
)

// Upgrader is shared by callers that need to upgrade an incoming HTTP
// request; exposed here rather than buried in a router package since this
// module has no HTTP layer of its own (spec's router is out of scope).
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Pump bridges conn (console TCP stream) and ws (browser WebSocket)
// bidirectionally until either side closes or ctx is cancelled. Console
// bytes are sent as binary WebSocket frames; text frames received from the
// browser are written to conn as console input.
func Pump(ctx context.Context, conn net.Conn, ws *websocket.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)

	go func() {
		errCh <- pumpConsoleToWS(ctx, conn, ws)
	}()
	go func() {
		errCh <- pumpWSToConsole(ctx, ws, conn)
	}()

	select {
	case err := <-errCh:
		cancel()
		conn.Close()
		ws.Close()
		return err
	case <-ctx.Done():
		conn.Close()
		ws.Close()
		return ctx.Err()
	}
}

func pumpConsoleToWS(ctx context.Context, conn net.Conn, ws *websocket.Conn) error {
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, err := conn.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return err
		}
		if err := ws.WriteMessage(websocket.BinaryMessage, append([]byte(nil), buf[:n]...)); err != nil {
			return err
		}
	}
}

func pumpWSToConsole(ctx context.Context, ws *websocket.Conn, conn net.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, msg, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		if _, err := conn.Write(msg); err != nil {
			corelog.Logger.Warnf("wsconsole: write to console failed: %v", err)
			return err
		}
	}
}
