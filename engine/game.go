package engine

import (
	"github.com/spaghettifunk/penumbra/engine/scene"
)

// Game lets an application hook into the engine loop. Every hook is
// optional.
type Game struct {
	// Called once the scene is built and again after every reload.
	FnInitialize Initialize
	// Called every frame before drawing. The scene may be animated in place
	// but its topology must not change.
	FnUpdate   Update
	FnOnResize OnResize
}

type Initialize func(s *scene.Scene) error
type Update func(s *scene.Scene, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
