package main

import (
	"fmt"
	"io"
	"net"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vnetlab/compute/pkg/registry"
)

// Telnet bytes this client sends on connect to report its window size
// (RFC 1073), matching the IAC/NAWS vocabulary pkg/telnetproxy parses on
// the server side.
const (
	telIAC  = 255
	telWILL = 251
	telSB   = 250
	telSE   = 240
	telNAWS = 31
)

func newConsoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "console <node>",
		Short: "Attach to a node's console (spec §4.E)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			projectID, err := requireProject()
			if err != nil {
				return err
			}
			s, err := registry.Load(cfg.ProjectsRoot, projectID, "")
			if err != nil {
				return err
			}
			rec, err := s.Find(args[0])
			if err != nil {
				return err
			}
			if rec.Console == 0 {
				return fmt.Errorf("computectl: node %q has no console", args[0])
			}

			addr := fmt.Sprintf("%s:%d", cfg.ConsoleHost, rec.Console)
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				return fmt.Errorf("computectl: dial console %s: %w", addr, err)
			}
			defer conn.Close()

			sendNAWS(conn)
			watchResize(conn)

			stdinFD := int(os.Stdin.Fd())
			if term.IsTerminal(stdinFD) {
				oldState, err := term.MakeRaw(stdinFD)
				if err == nil {
					defer term.Restore(stdinFD, oldState)
				}
			}

			done := make(chan struct{})
			go func() {
				io.Copy(conn, os.Stdin)
				close(done)
			}()
			io.Copy(os.Stdout, conn)
			<-done
			return nil
		},
	}
	return cmd
}

// nawsPayload builds IAC WILL NAWS followed by an IAC SB NAWS
// <cols-hi><cols-lo><rows-hi><rows-lo> IAC SE sub-negotiation for the
// current stdout terminal size.
func nawsPayload() ([]byte, bool) {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return nil, false
	}
	cols, rows, err := term.GetSize(fd)
	if err != nil {
		return nil, false
	}
	return []byte{
		telIAC, telWILL, telNAWS,
		telIAC, telSB, telNAWS,
		byte(cols >> 8), byte(cols),
		byte(rows >> 8), byte(rows),
		telIAC, telSE,
	}, true
}

func sendNAWS(conn net.Conn) {
	if payload, ok := nawsPayload(); ok {
		conn.Write(payload)
	}
}

// watchResize re-sends NAWS whenever the terminal is resized (platform
// notification wired in console_signal_*.go), for the life of the
// process — the console subcommand runs for exactly one session.
func watchResize(conn net.Conn) {
	ch := make(chan os.Signal, 1)
	notifyResize(ch)
	go func() {
		for range ch {
			sendNAWS(conn)
		}
	}()
}
