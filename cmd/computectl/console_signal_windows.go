//go:build windows

package main

import "os"

// notifyResize is a no-op on Windows: there is no SIGWINCH equivalent
// console Go programs can subscribe to, so the initial NAWS report sent
// on connect is the only size the server sees for this session.
func notifyResize(ch chan<- os.Signal) {}
