//go:build windows

package bridgesup

import "os"

// syscallSignalZero has no real null-signal equivalent on Windows; Alive()
// falls back to os.Interrupt, which os.Process.Signal rejects outright
// there, so callers on Windows should prefer checking Supervisor state via
// Stop()'s own bookkeeping instead of Alive().
func syscallSignalZero() os.Signal {
	return os.Interrupt
}
