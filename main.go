/*
assetstream streams every mesh and texture under an assets directory to a
device and reports when each one becomes ready.
*/
package main

import (
	"fmt"
	"os"

	"github.com/spaghettifunk/assetstream/cmd"
)

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cmd.Version = version
	cmd.Commit = commit

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
