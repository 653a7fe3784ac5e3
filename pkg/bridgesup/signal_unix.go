//go:build !windows

package bridgesup

import "syscall"

// syscallSignalZero returns the null signal used to probe whether a
// process still exists without affecting it.
func syscallSignalZero() syscall.Signal {
	return syscall.Signal(0)
}
