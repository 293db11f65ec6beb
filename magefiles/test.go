//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs the unit tests of every package.
func (Test) Unit() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}

// Runs the unit tests with the race detector, the merge system and the
// watcher run on several goroutines.
func (Test) Race() error {
	_, err := executeCmd("go", withArgs("test", "-race", "-count=1", "./..."), withStream())
	return err
}
