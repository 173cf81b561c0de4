package renderer

import (
	"fmt"
	"time"

	"github.com/spaghettifunk/penumbra/engine/core"
	"github.com/spaghettifunk/penumbra/engine/renderer/deferred"
	"github.com/spaghettifunk/penumbra/engine/renderer/frame"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
	"github.com/spaghettifunk/penumbra/engine/renderer/shadow"
	"github.com/spaghettifunk/penumbra/engine/renderer/swapchain"
	"github.com/spaghettifunk/penumbra/engine/scene"
)

// Renderer runs the per-frame loop: fence wait, image acquire, uniform
// update, submit and present. Everything derived from the swapchain or the
// scene topology is rebuilt through the swapchain coordinator.
type Renderer struct {
	config core.RendererConfig
	device gpu.Device

	coordinator *swapchain.Coordinator
	frames      *frame.Synchronizer
	pipelines   *Pipelines
	targets     *deferred.Targets
	uniforms    *deferred.Uniforms
	shadows     *shadow.Orchestrator
	bindings    *deferred.Bindings
	commands    *deferred.Commands

	scene    *scene.Scene
	topology scene.Topology
	dirty    bool

	frameNumber uint64
}

func New(device gpu.Device, window swapchain.Window, config core.RendererConfig, s *scene.Scene) (*Renderer, error) {
	r := &Renderer{
		config:   config,
		device:   device,
		scene:    s,
		topology: s.Topology(),
	}
	coordinator, err := swapchain.NewCoordinator(device, window)
	if err != nil {
		return nil, err
	}
	r.coordinator = coordinator

	caps, err := device.SurfaceCapabilities(window.Surface())
	if err != nil {
		coordinator.Destroy()
		return nil, fmt.Errorf("querying surface capabilities: %w", err)
	}

	r.frames, err = frame.NewSynchronizer(device, config.MaxFramesInFlight, coordinator.ImageCount(), time.Duration(config.FenceTimeoutMs)*time.Millisecond)
	if err != nil {
		coordinator.Destroy()
		return nil, err
	}
	r.pipelines = NewPipelines(device)
	if r.targets, err = deferred.NewTargets(device); err != nil {
		r.Shutdown()
		return nil, err
	}
	r.uniforms = deferred.NewUniforms(device)
	r.shadows, err = shadow.NewOrchestrator(device, shadow.Settings{
		MapSize:     config.ShadowMapSize,
		DepthFormat: caps.DepthFormat,
		Budget:      config.Descriptors,
	}, r.pipelines)
	if err != nil {
		r.Shutdown()
		return nil, err
	}
	if r.bindings, err = deferred.NewBindings(device, config.Descriptors); err != nil {
		r.Shutdown()
		return nil, err
	}
	r.commands = deferred.NewCommands(device)

	r.register()
	if err := coordinator.Start(); err != nil {
		r.Shutdown()
		return nil, err
	}
	core.LogInfo("renderer ready: %d frames in flight, %d swapchain images", config.MaxFramesInFlight, coordinator.ImageCount())
	return r, nil
}

func swapchainChanged(c swapchain.Change) bool {
	return c.Swapchain || c.Extent || c.Format
}

func topologyOrSwapchain(c swapchain.Change) bool {
	return c.Topology || swapchainChanged(c)
}

// register lists the rebuild stages in dependency order. The coordinator
// destroys them in reverse.
func (r *Renderer) register() {
	r.coordinator.Register(
		// Render passes go before the pipelines built against them on
		// teardown and come back first on rebuild.
		&swapchain.Stage{
			Label:     "render passes and pipelines",
			DependsOn: func(c swapchain.Change) bool { return c.Format },
			OnDestroy: func() {
				r.pipelines.DestroyRenderPasses()
				r.pipelines.DestroyPipelines()
			},
			OnReset: func(t swapchain.Target) error {
				if err := r.pipelines.ResetRenderPasses(t.Format, t.DepthFormat); err != nil {
					return err
				}
				return r.pipelines.ResetPipelines()
			},
		},
		&swapchain.Stage{
			Label:     "frame slots",
			DependsOn: func(c swapchain.Change) bool { return c.Swapchain },
			OnReset: func(t swapchain.Target) error {
				return r.frames.Recover(t.ImageCount())
			},
		},
		&swapchain.Stage{
			Label:     "render targets",
			DependsOn: swapchainChanged,
			OnDestroy: r.targets.Release,
			OnReset: func(t swapchain.Target) error {
				return r.targets.Reset(t, r.pipelines)
			},
		},
		&swapchain.Stage{
			Label:     "instance uniforms",
			DependsOn: topologyOrSwapchain,
			OnDestroy: r.uniforms.Release,
			OnReset: func(t swapchain.Target) error {
				return r.uniforms.Reset(t.ImageCount(), r.scene)
			},
		},
		&swapchain.Stage{
			Label:     "shadow passes",
			DependsOn: topologyOrSwapchain,
			OnDestroy: r.shadows.Release,
			OnReset: func(t swapchain.Target) error {
				return r.shadows.Reset(t.ImageCount(), r.scene)
			},
		},
		&swapchain.Stage{
			Label:     "scene descriptors",
			DependsOn: topologyOrSwapchain,
			OnDestroy: r.bindings.Release,
			OnReset: func(t swapchain.Target) error {
				return r.bindings.Reset(t.ImageCount(), r.scene, deferred.Sources{
					Passes:   r.pipelines,
					Uniforms: r.uniforms,
					Targets:  r.targets,
					Shadows:  r.shadows,
				})
			},
		},
		// Shadow command buffers are re-recorded by the shadow stage but freed
		// here, so every command buffer is gone before any descriptor set.
		&swapchain.Stage{
			Label:     "command buffers",
			DependsOn: topologyOrSwapchain,
			OnDestroy: func() {
				r.commands.Release()
				r.shadows.FreeCommands()
			},
			OnReset: func(t swapchain.Target) error {
				return r.commands.Reset(t.ImageCount(), r.scene, r.pipelines, r.targets, r.bindings)
			},
		},
	)
}

// SetTopology swaps in a scene whose counts may have changed. The rebuild
// happens at the start of the next frame.
func (r *Renderer) SetTopology(s *scene.Scene) {
	r.scene = s
	r.dirty = true
}

// Resized forwards the window's resize notification.
func (r *Renderer) Resized(width, height uint32) {
	r.coordinator.Resize(width, height)
}

// DrawFrame renders s. Recoverable surface states skip the frame and
// schedule a swapchain rebuild; every other failure is returned.
func (r *Renderer) DrawFrame(s *scene.Scene) error {
	if s != r.scene || !s.Topology().Equal(r.topology) {
		r.SetTopology(s)
	}

	if r.coordinator.State() != swapchain.StateValid {
		ok, err := r.coordinator.Recover()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		// Recreation rebuilds every scene-derived stage as well.
		r.topology = r.scene.Topology()
		r.dirty = false
	}
	if r.dirty {
		r.topology = r.scene.Topology()
		r.dirty = false
		if err := r.coordinator.Rebuild(swapchain.Change{Topology: true}); err != nil {
			return err
		}
		core.LogInfo("scene topology rebuilt: %d models, %d lights", r.topology.Models(), r.topology.Lights)
	}

	if _, err := r.frames.BeginFrame(); err != nil {
		return err
	}
	sc := r.coordinator.Swapchain()
	image, status, err := r.frames.AcquireImage(sc)
	if err != nil {
		return err
	}
	if status.NeedsRecreate() {
		r.coordinator.Invalidate(status)
		return nil
	}
	if err := r.frames.BindImage(image); err != nil {
		return err
	}

	extent := r.coordinator.Extent()
	aspect := float32(extent.Width) / float32(extent.Height)
	if err := r.uniforms.Update(image, r.scene, aspect); err != nil {
		return err
	}
	if err := r.shadows.UpdateUniforms(image, r.scene.Lights); err != nil {
		return err
	}

	cmds := append(r.shadows.Commands(image), r.commands.Command(image))
	status, err = r.frames.EndFrame(sc, image, cmds)
	if err != nil {
		return err
	}
	if status != gpu.StatusOK {
		r.coordinator.Invalidate(status)
	}
	r.frameNumber++
	return nil
}

func (r *Renderer) FrameNumber() uint64 {
	return r.frameNumber
}

func (r *Renderer) Coordinator() *swapchain.Coordinator {
	return r.coordinator
}

func (r *Renderer) Frames() *frame.Synchronizer {
	return r.frames
}

func (r *Renderer) Bindings() *deferred.Bindings {
	return r.bindings
}

func (r *Renderer) Shadows() *shadow.Orchestrator {
	return r.shadows
}

func (r *Renderer) Commands() *deferred.Commands {
	return r.commands
}

// Shutdown waits for the device to go idle and destroys everything in
// reverse creation order.
func (r *Renderer) Shutdown() {
	if err := r.device.WaitIdle(); err != nil {
		core.LogError("waiting for device idle: %s", err)
	}
	r.coordinator.Destroy()
	if r.bindings != nil {
		r.bindings.Destroy()
	}
	if r.shadows != nil {
		r.shadows.Destroy()
	}
	if r.targets != nil {
		r.targets.Destroy()
	}
	r.frames.Destroy()
	core.LogInfo("renderer shut down after %d frames", r.frameNumber)
}
