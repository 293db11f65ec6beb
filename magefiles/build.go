//go:build mage

package main

import (
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

var binaryPath = filepath.Join("bin", "anima-merge")

// Downloads the modules and builds the anima-merge binary into bin/.
func (Build) Binary() error {
	if _, err := executeCmd("go", withArgs("mod", "download")); err != nil {
		return err
	}
	if _, err := executeCmd("go", withArgs("build", "-o", binaryPath, "."), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs go vet over every package.
func (Build) Vet() error {
	_, err := executeCmd("go", withArgs("vet", "./..."), withStream())
	return err
}
