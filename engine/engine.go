package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/spaghettifunk/penumbra/engine/assets"
	"github.com/spaghettifunk/penumbra/engine/core"
	"github.com/spaghettifunk/penumbra/engine/platform"
	"github.com/spaghettifunk/penumbra/engine/renderer"
	"github.com/spaghettifunk/penumbra/engine/renderer/vulkan"
	"github.com/spaghettifunk/penumbra/engine/scene"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Every subsystem has been released
	EngineStageShutdown
)

// Statistics are logged once every this many FPS samples.
const metricsLogInterval = 5

type Engine struct {
	config       core.Config
	gameInstance *Game
	currentStage Stage

	isRunning   bool
	isSuspended bool
	width       uint32
	height      uint32

	events   *core.EventSystem
	platform *platform.Platform
	backend  *vulkan.Backend
	library  *assets.Library
	watcher  *assets.Watcher
	renderer *renderer.Renderer
	scene    *scene.Scene

	clock    *core.Clock
	metrics  *core.Metrics
	samples  uint32
	lastTime float64
}

// New prepares an engine for config. g may be nil.
func New(config core.Config, g *Game) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if g == nil {
		g = &Game{}
	}
	events := core.NewEventSystem()
	return &Engine{
		config:       config,
		gameInstance: g,
		currentStage: EngineStageUninitialized,
		events:       events,
		platform:     platform.New(events),
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		width:        config.Application.StartWidth,
		height:       config.Application.StartHeight,
	}, nil
}

// Initialize opens the window, brings up the Vulkan device, builds the scene
// and the renderer. On failure everything created so far is released.
func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageUninitialized {
		return fmt.Errorf("engine already initialized")
	}
	e.currentStage = EngineStageInitializing

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	e.events.Register(core.EVENT_CODE_KEY_RELEASED, e, e.onKey)
	e.events.Register(core.EVENT_CODE_RESIZED, e, e.onResized)
	e.events.Register(core.EVENT_CODE_SCENE_CHANGED, e, e.onSceneChanged)

	app := e.config.Application
	if err := e.platform.Startup(app.Name, app.StartPosX, app.StartPosY, app.StartWidth, app.StartHeight); err != nil {
		return err
	}

	backend, err := vulkan.New(vulkan.Options{
		AppName:    app.Name,
		Validation: e.config.Renderer.Validation,
		ShaderDir:  e.config.Renderer.ShaderDir,
		Window:     e.platform.Window,
	})
	if err != nil {
		e.release()
		return err
	}
	e.backend = backend
	e.platform.Attach(backend)

	if e.library, err = assets.NewLibrary(backend); err != nil {
		e.release()
		return err
	}
	if e.scene, err = e.loadScene(e.config.Scene); err != nil {
		e.release()
		return err
	}
	if e.renderer, err = renderer.New(backend, e.platform, e.config.Renderer, e.scene); err != nil {
		e.release()
		return err
	}

	if e.config.Scene != "" {
		if e.watcher, err = assets.NewWatcher(e.config.Scene, e.events); err != nil {
			// Hot reload is a convenience; the scene is already loaded.
			core.LogWarn("scene hot reload disabled: %s", err)
		}
	}

	if e.gameInstance.FnInitialize != nil {
		if err := e.gameInstance.FnInitialize(e.scene); err != nil {
			e.release()
			return err
		}
	}
	if e.gameInstance.FnOnResize != nil {
		if err := e.gameInstance.FnOnResize(e.width, e.height); err != nil {
			e.release()
			return err
		}
	}

	e.isRunning = true
	e.currentStage = EngineStageInitialized
	core.LogInfo("engine initialized")
	return nil
}

func (e *Engine) loadScene(path string) (*scene.Scene, error) {
	desc := scene.Default()
	if path != "" {
		var err error
		if desc, err = scene.LoadDescription(path); err != nil {
			return nil, err
		}
	}
	return scene.Build(desc, e.library)
}

// Run drives the frame loop until the window closes, a quit event arrives
// or ctx is cancelled. Any error other than a recoverable surface state ends
// the loop and is returned.
func (e *Engine) Run(ctx context.Context) error {
	if e.currentStage != EngineStageInitialized {
		return fmt.Errorf("engine is not initialized")
	}
	e.currentStage = EngineStageRunning

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			e.platform.Wake()
		case <-done:
		}
	}()
	defer func() {
		close(done)
		wg.Wait()
	}()

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.isRunning {
		if ctx.Err() != nil {
			core.LogInfo("run cancelled, shutting down")
			break
		}

		var open bool
		if e.isSuspended {
			open = e.platform.WaitMessages()
		} else {
			open = e.platform.PumpMessages()
		}
		if !open {
			e.isRunning = false
		}
		e.events.Dispatch()
		if !e.isRunning {
			break
		}
		if e.isSuspended {
			continue
		}

		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime
		frameStartTime := platform.GetAbsoluteTime()

		if e.gameInstance.FnUpdate != nil {
			if err := e.gameInstance.FnUpdate(e.scene, delta); err != nil {
				return fmt.Errorf("game update failed: %w", err)
			}
		}

		if err := e.renderer.DrawFrame(e.scene); err != nil {
			return fmt.Errorf("frame %d: %w", e.renderer.FrameNumber(), err)
		}

		if e.metrics.Update(platform.GetAbsoluteTime() - frameStartTime) {
			e.samples++
			if e.samples%metricsLogInterval == 0 {
				fps, ms := e.metrics.Frame()
				core.LogDebug("%.0f fps, %.3f ms/frame (frame %d)", fps, ms, e.renderer.FrameNumber())
			}
		}
		e.lastTime = currentTime
	}
	return nil
}

// Shutdown releases every subsystem in reverse creation order. Calling it
// twice is harmless.
func (e *Engine) Shutdown() error {
	if e.currentStage == EngineStageShutdown {
		return nil
	}
	e.currentStage = EngineStageShuttingDown
	e.isRunning = false
	e.clock.Stop()
	e.release()
	e.events.Shutdown()
	e.currentStage = EngineStageShutdown
	core.LogInfo("engine shut down")
	return nil
}

func (e *Engine) release() {
	if e.watcher != nil {
		if err := e.watcher.Close(); err != nil {
			core.LogWarn("closing scene watcher: %s", err)
		}
		e.watcher = nil
	}
	if e.renderer != nil {
		e.renderer.Shutdown()
		e.renderer = nil
	}
	if e.library != nil {
		e.library.Destroy()
		e.library = nil
	}
	if e.backend != nil {
		e.backend.Close()
		e.backend = nil
	}
	if e.platform != nil {
		if err := e.platform.Shutdown(); err != nil {
			core.LogError("platform shutdown: %s", err)
		}
	}
}

// GetFramebufferSize returns the last known window size.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}
