// bridgehv is a dev/test stand-in for the bridge hypervisor (spec §4.D):
// it understands the same `-v` / `-H host:port` CLI contract pkg/bridgesup
// spawns the real `ubridge` binary with, so it can be pointed at from a
// compute.yaml's bridge.executable during local development or testing
// without a privileged build of the real hypervisor on hand.
//
// Usage:
//
//	bridgehv -v               Print version banner and exit
//	bridgehv -H host:port     Listen and serve the bridge control protocol
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/vnetlab/compute/pkg/bridgehv"
	"github.com/vnetlab/compute/pkg/version"
)

// ubridgeVersion is at or above pkg/bridgesup's minVersion() floor on
// every platform; it is what -v prints, since pkg/bridgesup parses that exact
// "ubridge version X" banner to decide whether to spawn this binary.
const ubridgeVersion = "0.9.18"

func main() {
	versionFlag := flag.Bool("v", false, "print version and exit")
	listenAddr := flag.String("H", "", "host:port to listen on")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("ubridge version %s\n", ubridgeVersion)
		fmt.Printf("bridgehv build: %s\n", version.Info())
		return
	}
	if *listenAddr == "" {
		fmt.Fprintln(os.Stderr, "bridgehv: -H host:port is required")
		os.Exit(1)
	}

	srv := bridgehv.NewServer()
	if err := srv.ListenAndServe(*listenAddr); err != nil {
		fmt.Fprintf(os.Stderr, "bridgehv: %v\n", err)
		os.Exit(1)
	}
}
