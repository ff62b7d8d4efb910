//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs every test with the race detector.
func (Test) All() error {
	_, err := executeCmd("go", withArgs("test", "-race", "-count=1", "./..."), withStream())
	return err
}

// Runs the streaming pipeline tests only.
func (Test) Systems() error {
	_, err := executeCmd("go", withArgs("test", "-race", "-count=1", "./..."), withDir("engine/systems"), withStream())
	return err
}
