//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Builds the assetstream binary into ./bin.
func (Build) Binary() error {
	ldflags := fmt.Sprintf("-X main.version=%s -X main.commit=%s", version(), commit())
	if _, err := executeCmd("go", withArgs("build", "-ldflags", ldflags, "-o", "bin/assetstream", "."), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs go mod tidy and go vet over every package.
func (Build) Tidy() error {
	if _, err := executeCmd("go", withArgs("mod", "tidy")); err != nil {
		return fmt.Errorf("failed to run go mod tidy: %w", err)
	}
	if _, err := executeCmd("go", withArgs("vet", "./..."), withStream()); err != nil {
		return err
	}
	return nil
}
