// Package bridgeclient implements the line-oriented TCP client for the
// bridge hypervisor control channel (spec §4.C). Commands are sent as a
// single text line; the response is one or more lines terminated by either
// a success or an error status line.
package bridgeclient

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/vnetlab/compute/pkg/corelog"
)

// successRe matches the 1xx terminator line ("100 ..."; "100-..." lines are
// continuation data, not terminators), errorRe matches a 2xx status line.
// Both patterns come straight from the hypervisor's own response-framing
// convention.
var (
	successRe = regexp.MustCompile(`^1[0-9]{2}\s`)
	errorRe   = regexp.MustCompile(`^2[0-9]{2}-`)
)

const (
	// connectRetryInterval matches spec §4.C's open_connection retry
	// cadence exactly.
	connectRetryInterval = 10 * time.Millisecond
	readChunkSize        = 1024
)

// Client is a mutex-serialized connection to one bridge hypervisor
// instance. Only one command may be in flight at a time (spec §5, "single
// in-flight command per bridge client").
type Client struct {
	host string
	port int

	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
}

// New returns an unconnected Client bound to host:port. host may be
// "0.0.0.0" or "::", which Connect rewrites to a loopback address, since a
// hypervisor listening on the wildcard address cannot be dialed directly.
func New(host string, port int) *Client {
	return &Client{host: host, port: port}
}

func dialHost(host string) string {
	switch host {
	case "0.0.0.0":
		return "127.0.0.1"
	case "::":
		return "::1"
	default:
		return host
	}
}

// Connect dials the hypervisor, retrying at short intervals until ctx is
// done, since the supervisor may still be spawning the process when the
// first dial is attempted.
func (c *Client) Connect(ctx context.Context) error {
	addr := net.JoinHostPort(dialHost(c.host), fmt.Sprintf("%d", c.port))

	var lastErr error
	for {
		select {
		case <-ctx.Done():
			return &corelog.TimeoutError{Operation: fmt.Sprintf("bridge connect %s", addr), Elapsed: ctx.Err().Error()}
		default:
		}

		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			c.mu.Lock()
			c.conn = conn
			c.r = bufio.NewReader(conn)
			c.mu.Unlock()
			return nil
		}
		lastErr = err

		timer := time.NewTimer(connectRetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &corelog.TimeoutError{Operation: fmt.Sprintf("bridge connect %s (last error: %v)", addr, lastErr), Elapsed: ctx.Err().Error()}
		case <-timer.C:
		}
	}
}

// Close closes the underlying connection. Safe to call multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.r = nil
	return err
}

// Connected reports whether Connect has succeeded and Close has not since
// been called.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send writes a single command line and reads the response, serialized
// against any other concurrent Send on this client. It is cancel-safe: if
// ctx.Done() fires before the terminator line arrives, Send returns to its
// caller immediately, but the read keeps draining to the terminator in the
// background before the client's lock is released, so the connection is
// left in a known state for the next command (spec §5, "cancel-safe
// reads... drain to the terminator line even when the awaiting caller is
// cancelled").
func (c *Client) Send(ctx context.Context, command string) ([]string, error) {
	c.mu.Lock()

	if c.conn == nil {
		c.mu.Unlock()
		return nil, &corelog.BridgeError{Host: c.host, Port: c.port, Message: "not connected", ProcessLive: false}
	}

	if dl, ok := ctx.Deadline(); ok {
		c.conn.SetDeadline(dl)
	}

	if _, err := c.conn.Write([]byte(command + "\n")); err != nil {
		c.conn.SetDeadline(time.Time{})
		c.mu.Unlock()
		return nil, &corelog.BridgeError{Host: c.host, Port: c.port, Message: fmt.Sprintf("write: %v", err), ProcessLive: true}
	}

	type result struct {
		lines []string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		lines, err := c.readResponse()
		done <- result{lines, err}
	}()

	select {
	case r := <-done:
		c.conn.SetDeadline(time.Time{})
		c.mu.Unlock()
		return r.lines, r.err
	case <-ctx.Done():
		// The caller is giving up now; the read goroutine already has the
		// connection and keeps draining toward the terminator. Hand the
		// lock off to it instead of releasing it here, so no other Send
		// can interleave reads on the same connection.
		go func() {
			<-done
			c.conn.SetDeadline(time.Time{})
			c.mu.Unlock()
		}()
		return nil, &corelog.TimeoutError{Operation: fmt.Sprintf("bridge send %q", command), Elapsed: ctx.Err().Error()}
	}
}

// readResponse reads lines until a success (1xx) or error (2xx) status
// line is seen, accumulating any preceding data lines. On error it returns
// a BridgeError describing the hypervisor-reported failure.
func (c *Client) readResponse() ([]string, error) {
	var lines []string
	for {
		line, err := c.r.ReadString('\n')
		if err != nil {
			return nil, &corelog.BridgeError{Host: c.host, Port: c.port, Message: fmt.Sprintf("read: %v", err), ProcessLive: false}
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case errorRe.MatchString(line):
			msg := strings.TrimPrefix(line, line[:4])
			return nil, &corelog.BridgeError{Host: c.host, Port: c.port, Message: strings.TrimSpace(msg), ProcessLive: true}
		case successRe.MatchString(line):
			body := strings.TrimSpace(line[4:])
			if body != "" && body != "OK" {
				lines = append(lines, body)
			}
			return lines, nil
		default:
			lines = append(lines, strings.TrimPrefix(line, "100-"))
		}
	}
}
