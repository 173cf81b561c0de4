package testbed

import (
	"github.com/spaghettifunk/penumbra/engine"
	"github.com/spaghettifunk/penumbra/engine/core"
	"github.com/spaghettifunk/penumbra/engine/scene"
)

// Degrees per second.
const spinSpeed = 30.0

type TestGame struct {
	*engine.Game

	// Models whose instances turn around Y. The floor is left alone.
	spinning []*scene.Model
	width    uint32
	height   uint32
}

func NewTestGame() *TestGame {
	tg := &TestGame{Game: &engine.Game{}}
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnOnResize = tg.OnResize
	return tg
}

func (g *TestGame) Initialize(s *scene.Scene) error {
	g.spinning = g.spinning[:0]
	for _, m := range s.Models {
		if m.Name == "floor" {
			continue
		}
		g.spinning = append(g.spinning, m)
	}
	core.LogInfo("testbed ready: %d spinning models. Keys: I add instance, L add light, K remove light, R reload", len(g.spinning))
	return nil
}

func (g *TestGame) Update(s *scene.Scene, deltaTime float64) error {
	step := float32(spinSpeed * deltaTime)
	for _, m := range g.spinning {
		for i := range m.Instances {
			r := &m.Instances[i].Rotation
			r[1] += step
			if r[1] >= 360 {
				r[1] -= 360
			}
		}
	}
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	g.width = width
	g.height = height
	return nil
}
