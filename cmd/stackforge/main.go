// Package main is the entry point for the stackforge CLI.
//
// stackforge provisions a containerized web service on AWS: network,
// container registry, load balancer with TLS, compute, and logging. It
// keeps its state in S3 behind a DynamoDB lock.
//
// Commands: plan, apply, destroy, outputs, unlock, version.
//
// For detailed usage information, run:
//
//	stackforge --help
package main

import (
	"fmt"
	"os"

	"github.com/imamik/stackforge/cmd/stackforge/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
