//go:build mage

package main

import (
	"fmt"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/target"
)

type Build mg.Namespace

const shaderDir = "assets/shaders"

// One program per render pass, each a vertex and a fragment stage.
var (
	shaderPasses = []string{"gbuffer", "lighting", "shadow"}
	shaderStages = []string{"vert", "frag"}
)

// Compiles every GLSL stage under assets/shaders to <pass>.<stage>.spv.
// Stages whose SPIR-V is newer than the source are skipped.
func (Build) Shaders() error {
	return buildShaders()
}

// Compiles the shaders and builds the penumbra binary.
func (Build) Engine() error {
	mg.Deps(Build.Shaders)
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/penumbra", "."), withEnv("CGO_ENABLED", "1"), withStream()); err != nil {
		return err
	}
	return nil
}

func buildShaders() error {
	for _, pass := range shaderPasses {
		for _, stage := range shaderStages {
			src := filepath.Join(shaderDir, fmt.Sprintf("%s.%s", pass, stage))
			out := src + ".spv"
			stale, err := target.Path(out, src)
			if err != nil {
				return err
			}
			if !stale {
				continue
			}
			if _, err := executeCmd("glslc", withArgs(src, "-o", out), withStream()); err != nil {
				return err
			}
		}
	}
	return nil
}
