// Package bridgehv is a dev/test stand-in for the bridge hypervisor the
// core coordinates but never implements itself (spec §1 "it coordinates
// an external forwarding helper", §4.C/§6 wire protocol). It speaks the
// same line protocol pkg/bridgeclient drives, so pkg/bridgesup can spawn
// cmd/bridgehv exactly as it would the real `ubridge` binary in tests and
// local development, without a privileged raw-socket/TAP capable build of
// the real hypervisor on hand. Ethernet/TAP/VMnet NIOs and BPF packet
// filters are accepted and tracked but not wired to real host interfaces
// or compiled — those require raw sockets, npcap/libpcap, and OS
// privileges the real hypervisor alone provides; this stand-in only
// relays the UDP↔UDP path a bridged pair of adapters actually exercises
// end to end.
package bridgehv

import (
	"bufio"
	"fmt"
	"strings"
)

// writeSuccess terminates a response with the final "100 " status line
// (spec §4.C): a bare "100 OK" if body is empty, otherwise "100 <body>".
func writeSuccess(w *bufio.Writer, body string) error {
	if body == "" {
		body = "OK"
	}
	_, err := w.WriteString(fmt.Sprintf("100 %s\r\n", body))
	if err == nil {
		err = w.Flush()
	}
	return err
}

// writeData emits one "100-<body>" continuation line, preceding the final
// terminator (spec §4.C "success-continuation lines").
func writeData(w *bufio.Writer, body string) error {
	_, err := w.WriteString(fmt.Sprintf("100-%s\r\n", body))
	return err
}

// writeError terminates a response with a "2xx-<message>" error line.
func writeError(w *bufio.Writer, message string) error {
	_, err := w.WriteString(fmt.Sprintf("200-%s\r\n", message))
	if err == nil {
		err = w.Flush()
	}
	return err
}

// splitArgs tokenizes a command line, honoring double-quoted arguments
// (interface names are sent as `"<ifc>"` per spec §6's vocabulary).
func splitArgs(line string) []string {
	var args []string
	var cur strings.Builder
	inQuotes := false
	hasCur := false

	flush := func() {
		if hasCur {
			args = append(args, cur.String())
			cur.Reset()
			hasCur = false
		}
	}

	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			hasCur = true
		case r == ' ' && !inQuotes:
			flush()
		default:
			cur.WriteRune(r)
			hasCur = true
		}
	}
	flush()
	return args
}
