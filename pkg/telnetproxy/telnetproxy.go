// Package telnetproxy implements the telnet console multiplexer in front
// of a node's console socket (spec §4.E): IAC option negotiation, NAWS
// window-size reporting, and a single-reader-slot fan-out so that many
// telnet clients can observe one console while only one drives it.
package telnetproxy

import (
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/vnetlab/compute/pkg/corelog"
)

// Telnet protocol bytes (RFC 854 / RFC 1073).
const (
	iac  = 255
	will = 251
	wont = 252
	do   = 253
	dont = 254
	sb   = 250
	se   = 240

	optEcho = 1
	optSGA  = 3
	optNAWS = 31
)

// parserState is the IAC byte-level state machine's current mode.
type parserState int

const (
	stateData parserState = iota
	stateIAC
	stateOption // saw IAC + (WILL|WONT|DO|DONT), waiting for option byte
	stateSB     // inside a sub-negotiation, waiting for its option byte
	stateSBData // accumulating sub-negotiation payload until IAC SE
	stateSBIAC  // saw IAC while in sub-negotiation payload
)

// NAWSFunc is invoked when a client reports its terminal size via NAWS.
type NAWSFunc func(cols, rows uint16)

// iacParser strips telnet negotiation out of a byte stream, forwarding the
// remaining data bytes and invoking onNAWS on window-size reports. One
// instance is owned by a single client connection; it is not safe for
// concurrent use, matching the single-reader-slot model this mirrors.
type iacParser struct {
	state      parserState
	subOpt     byte
	subPayload []byte
	onNAWS     NAWSFunc
}

// Feed processes one incoming byte, returning the data byte to forward to
// the backend and whether there was one (negotiation bytes produce none).
func (p *iacParser) Feed(b byte) (data byte, ok bool) {
	switch p.state {
	case stateData:
		if b == iac {
			p.state = stateIAC
			return 0, false
		}
		return b, true

	case stateIAC:
		switch b {
		case iac:
			p.state = stateData
			return iac, true // escaped 0xFF
		case will, wont, do, dont:
			p.state = stateOption
			return 0, false
		case sb:
			p.state = stateSB
			return 0, false
		default:
			p.state = stateData
			return 0, false
		}

	case stateOption:
		p.state = stateData
		return 0, false

	case stateSB:
		p.subOpt = b
		p.subPayload = p.subPayload[:0]
		p.state = stateSBData
		return 0, false

	case stateSBData:
		if b == iac {
			p.state = stateSBIAC
			return 0, false
		}
		p.subPayload = append(p.subPayload, b)
		return 0, false

	case stateSBIAC:
		if b == se {
			p.handleSubnegotiation()
			p.state = stateData
			return 0, false
		}
		// Escaped 0xFF inside sub-negotiation payload.
		p.subPayload = append(p.subPayload, b)
		p.state = stateSBData
		return 0, false
	}
	return 0, false
}

func (p *iacParser) handleSubnegotiation() {
	if p.subOpt == optNAWS && len(p.subPayload) >= 4 && p.onNAWS != nil {
		cols := binary.BigEndian.Uint16(p.subPayload[0:2])
		rows := binary.BigEndian.Uint16(p.subPayload[2:4])
		p.onNAWS(cols, rows)
	}
}

// introSequence is sent to every newly attached client: offer to negotiate
// window size, and take over echo/suppress-go-ahead so the client renders
// like a raw terminal rather than a line-buffered one.
var introSequence = []byte{
	iac, do, optNAWS,
	iac, will, optEcho,
	iac, will, optSGA,
}

// client is one attached telnet connection.
type client struct {
	conn   net.Conn
	out    chan []byte
	parser *iacParser
}

// Proxy fans console output from one backend out to many telnet clients,
// while routing input from the single active client back to the backend.
type Proxy struct {
	backend io.Writer

	mu           sync.Mutex
	clients      map[*client]struct{}
	activeReader *client
	onNAWS       NAWSFunc
}

// New returns a Proxy that writes client input to backend. Output from the
// backend is fanned out via Broadcast.
func New(backend io.Writer, onNAWS NAWSFunc) *Proxy {
	return &Proxy{
		backend: backend,
		clients: make(map[*client]struct{}),
		onNAWS:  onNAWS,
	}
}

// Attach registers conn as a new telnet client, spawning its reader and
// writer pumps. It blocks until the client disconnects, so callers
// typically invoke it in its own goroutine per accepted connection.
func (p *Proxy) Attach(conn net.Conn) {
	c := &client{
		conn: conn,
		out:  make(chan []byte, 64),
	}
	c.parser = &iacParser{onNAWS: func(cols, rows uint16) {
		if p.onNAWS != nil {
			p.onNAWS(cols, rows)
		}
	}}

	p.mu.Lock()
	p.clients[c] = struct{}{}
	isFirst := p.activeReader == nil
	if isFirst {
		p.activeReader = c
	}
	p.mu.Unlock()

	conn.Write(introSequence)

	done := make(chan struct{})
	go p.writerPump(c, done)
	p.readerPump(c)

	close(done)
	p.detach(c)
}

func (p *Proxy) writerPump(c *client, done chan struct{}) {
	for {
		select {
		case buf, ok := <-c.out:
			if !ok {
				return
			}
			if _, err := c.conn.Write(buf); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (p *Proxy) readerPump(c *client) {
	buf := make([]byte, 4096)
	var data []byte
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			return
		}
		data = data[:0]
		for _, b := range buf[:n] {
			if out, ok := c.parser.Feed(b); ok {
				data = append(data, out)
			}
		}
		if len(data) == 0 {
			continue
		}

		p.mu.Lock()
		isActive := p.activeReader == c
		p.mu.Unlock()
		if !isActive {
			continue // observers may not drive the console
		}
		if _, err := p.backend.Write(data); err != nil {
			corelog.Logger.Warnf("telnetproxy: write to backend failed: %v", err)
			return
		}
	}
}

func (p *Proxy) detach(c *client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.clients, c)
	close(c.out)
	if p.activeReader == c {
		p.activeReader = nil
		// Hand the reader slot to an arbitrary remaining client, if any,
		// so the console stays drivable after the driver disconnects.
		for other := range p.clients {
			p.activeReader = other
			break
		}
	}
}

// Broadcast sends backend output to every attached client, doubling any
// literal 0xFF byte per telnet's IAC-escaping rule.
func (p *Proxy) Broadcast(data []byte) {
	escaped := escapeIAC(data)

	p.mu.Lock()
	defer p.mu.Unlock()
	for c := range p.clients {
		select {
		case c.out <- escaped:
		default:
			corelog.Logger.Warnf("telnetproxy: client output queue full, dropping write")
		}
	}
}

// ClientCount returns the number of currently attached clients.
func (p *Proxy) ClientCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

func escapeIAC(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, b := range data {
		out = append(out, b)
		if b == iac {
			out = append(out, iac)
		}
	}
	return out
}
