//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the engine on the sample config and scene.
func (Run) Engine() error {
	if err := buildShaders(); err != nil {
		return err
	}
	fmt.Println("Run engine...")
	args := []string{"run", ".", "--config", "assets/config.toml", "--scene", "assets/scenes/default.toml"}
	if os.Getenv("PENUMBRA_VALIDATION") != "" {
		args = append(args, "--validation")
	}
	if _, err := executeCmd("go", withArgs(args...), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the test suite. No GPU or window is needed.
func (Run) Tests() error {
	if _, err := executeCmd("go", withArgs("test", "./engine/..."), withStream()); err != nil {
		return err
	}
	return nil
}
