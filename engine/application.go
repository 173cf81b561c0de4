package engine

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/penumbra/engine/core"
	"github.com/spaghettifunk/penumbra/engine/platform"
	"github.com/spaghettifunk/penumbra/engine/scene"
)

// Offset between an added instance and the one it was copied from.
var instanceSpacing = mgl32.Vec3{1.5, 0, 1.5}

// keyAction is what a key press asks the engine to do.
type keyAction uint8

const (
	keyIgnored keyAction = iota
	keyQuit
	keyReload
	// The scene was edited in place and its topology changed.
	keyTopology
)

// applyKey performs the scene edits bound to key. Topology edits always
// target the last model so the floor stays untouched.
func applyKey(s *scene.Scene, key platform.Key) keyAction {
	switch key {
	case platform.KeyEscape:
		return keyQuit
	case platform.KeyR:
		return keyReload
	case platform.KeyI:
		if s.AddInstance(len(s.Models)-1, instanceSpacing) {
			return keyTopology
		}
	case platform.KeyL:
		s.AddLight(rotatedLight(s))
		return keyTopology
	case platform.KeyK:
		if s.RemoveLight() {
			return keyTopology
		}
	}
	return keyIgnored
}

// rotatedLight is a copy of the last light turned 45 degrees around Y, or a
// plain overhead light when there is none.
func rotatedLight(s *scene.Scene) scene.Light {
	if len(s.Lights) == 0 {
		return scene.NewLight(mgl32.Vec3{0, -1, -0.2}, mgl32.Vec3{1, 1, 1}, 1)
	}
	last := s.Lights[len(s.Lights)-1]
	dir := mgl32.HomogRotate3DY(mgl32.DegToRad(45)).Mul4x1(last.Direction.Vec4(0)).Vec3()
	l := scene.NewLight(dir, last.Color, last.Intensity)
	l.Target = last.Target
	l.Extent = last.Extent
	l.Distance = last.Distance
	return l
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listenerInst interface{}, context core.EventContext) bool {
	switch code {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning = false
		return true
	}
	return false
}

func (e *Engine) onKey(code core.SystemEventCode, sender interface{}, listenerInst interface{}, context core.EventContext) bool {
	if code != core.EVENT_CODE_KEY_PRESSED {
		return false
	}
	key := platform.Key(context.Data.U16[0])

	switch applyKey(e.scene, key) {
	case keyQuit:
		// Other listeners may care about quitting too.
		e.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, e, core.EventContext{})
		return true
	case keyReload:
		e.reloadScene(e.config.Scene)
		return true
	case keyTopology:
		t := e.scene.Topology()
		core.LogInfo("scene edited: instances per model %v, %d lights", t.Instances, t.Lights)
		e.renderer.SetTopology(e.scene)
		return true
	}
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, listenerInst interface{}, context core.EventContext) bool {
	width := context.Data.U32[0]
	height := context.Data.U32[1]

	if width == e.width && height == e.height {
		return false
	}
	e.width = width
	e.height = height
	core.LogDebug("Window resize: %d, %d", width, height)

	if e.renderer != nil {
		e.renderer.Resized(width, height)
	}

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return true
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(width, height); err != nil {
			core.LogError("game resize: %s", err)
		}
	}
	return true
}

func (e *Engine) onSceneChanged(code core.SystemEventCode, sender interface{}, listenerInst interface{}, context core.EventContext) bool {
	e.reloadScene(context.Data.C[0])
	return true
}

// reloadScene rebuilds the scene from path. A broken file keeps the current
// scene on screen.
func (e *Engine) reloadScene(path string) {
	s, err := e.loadScene(path)
	if err != nil {
		core.LogError("scene reload failed, keeping the current scene: %s", err)
		return
	}
	e.scene = s
	if e.renderer != nil {
		e.renderer.SetTopology(s)
	}
	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(s); err != nil {
			core.LogError("game initialize after reload: %s", err)
		}
	}
}
