//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// Runs the unit tests with the race detector. The renderer tests use the null backend, no GPU needed.
func (Test) Unit() error {
	// the race detector needs cgo
	_, err := executeCmd("go", withArgs("test", "-race", "-count=1", "./engine/..."), withEnv("CGO_ENABLED=1"), withStream())
	return err
}

// Runs go vet over the module.
func (Test) Vet() error {
	_, err := executeCmd("go", withArgs("vet", "./..."), withStream())
	return err
}

// Runs vet and the unit tests.
func (Test) All() {
	mg.SerialDeps(Test.Vet, Test.Unit)
}
