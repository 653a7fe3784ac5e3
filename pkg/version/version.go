// Package version holds build-time identification for the compute binaries.
package version

import "fmt"

// Version, GitCommit and BuildDate are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/vnetlab/compute/pkg/version.Version=v1.0.0 \
//	  -X github.com/vnetlab/compute/pkg/version.GitCommit=abc1234 \
//	  -X github.com/vnetlab/compute/pkg/version.BuildDate=2026-07-31"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns a one-line human-readable build identification string, used
// by computectl's and bridgehv's "-v"/"version" output.
func Info() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate)
}
