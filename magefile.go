//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Run starts the web server.
func Run() error {
	return sh.RunV("go", "run", "./cmd/web")
}

// Build compiles the web server binary into ./bin.
func Build() error {
	return sh.RunV("go", "build", "-o", "bin/web", "./cmd/web")
}

// Test runs all tests.
func Test() error {
	return sh.RunV("go", "test", "./...")
}

// Tidy runs go mod tidy.
func Tidy() error {
	return sh.RunV("go", "mod", "tidy")
}

// Tables creates the database tables.
func Tables() error {
	return sh.RunV("go", "run", "./cmd/tools/createtable")
}

// Dev tidies, tests and runs.
func Dev() {
	mg.SerialDeps(Tidy, Test, Run)
}
