// Command artsel selects artworks across the pages of the artworks API, either
// interactively, over an HTTP API, or headless from the command line.
package main

import (
	"os"
)

var version = "dev"

func main() {
	if err := newRootCmd(version).Execute(); err != nil {
		os.Exit(1)
	}
}
