// Command gateway runs the VitalSync HTTP API and its maintenance tasks.
package main

import (
	"os"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
