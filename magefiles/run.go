//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Builds the binary and merges the given recipe once.
func (Run) Merge(recipe string) error {
	mg.Deps(Build.Binary)
	fmt.Printf("Merging %s...\n", recipe)
	_, err := executeCmd(binaryPath, withArgs("-recipe", recipe), withStream())
	return err
}

// Builds the binary and keeps merging the given recipe whenever it or one
// of its sources changes.
func (Run) Watch(recipe string) error {
	mg.Deps(Build.Binary)
	fmt.Printf("Watching %s...\n", recipe)
	_, err := executeCmd(binaryPath, withArgs("-watch", "-log-level", "debug", "-recipe", recipe), withStream())
	return err
}
