//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Streams the ./assets directory with the in-memory device until every asset settled.
func (Run) Engine() error {
	mg.Deps(Build.Binary)

	args := []string{"run", "--exit-when-done"}
	if dir := os.Getenv("ASSETS_DIR"); dir != "" {
		args = append(args, "--assets", dir)
	}
	fmt.Println("Run engine...")
	if _, err := executeCmd("bin/assetstream", withArgs(args...), withStream()); err != nil {
		return err
	}
	return nil
}
