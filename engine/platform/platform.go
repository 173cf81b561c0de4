package platform

import (
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/penumbra/engine/core"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// Key is a keyboard key code as carried in EventContext.Data.U16[0].
type Key uint16

const (
	KeyEscape Key = Key(glfw.KeyEscape)
	KeyI      Key = Key(glfw.KeyI)
	KeyL      Key = Key(glfw.KeyL)
	KeyK      Key = Key(glfw.KeyK)
	KeyR      Key = Key(glfw.KeyR)
)

// SurfaceProvider creates presentation surfaces for the window. The Vulkan
// backend implements it.
type SurfaceProvider interface {
	Surface() gpu.Surface
	CreateSurface() (gpu.Surface, error)
	DestroySurface(s gpu.Surface)
}

// Platform owns the glfw window and forwards its input and resize
// callbacks to the event system. Once a SurfaceProvider is attached it also
// serves as the swapchain's window.
type Platform struct {
	Window *glfw.Window

	events   *core.EventSystem
	surfaces SurfaceProvider
	surface  gpu.Surface
}

func New(events *core.EventSystem) *Platform {
	return &Platform{events: events}
}

func (p *Platform) Startup(applicationName string, x uint32, y uint32, width uint32, height uint32) error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("failed to initialize glfw: %w", err)
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return fmt.Errorf("%w: glfw reports no Vulkan loader", core.ErrConfiguration)
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		glfw.Terminate()
		return fmt.Errorf("failed to create window: %w", err)
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetCloseCallback(p.closeCallback)
	p.Window.SetPos(int(x), int(y))
	p.Window.Show()

	core.LogInfo("window created: %s %dx%d", applicationName, width, height)
	return nil
}

// Attach hands the platform the backend's surfaces.
func (p *Platform) Attach(surfaces SurfaceProvider) {
	p.surfaces = surfaces
	p.surface = surfaces.Surface()
}

func (p *Platform) Surface() gpu.Surface {
	return p.surface
}

// RecreateSurface replaces a lost surface with a new one for the same
// window.
func (p *Platform) RecreateSurface() (gpu.Surface, error) {
	if p.surfaces == nil {
		return 0, fmt.Errorf("no surface provider attached")
	}
	if p.surface != 0 {
		p.surfaces.DestroySurface(p.surface)
		p.surface = 0
	}
	s, err := p.surfaces.CreateSurface()
	if err != nil {
		return 0, err
	}
	p.surface = s
	core.LogInfo("window surface recreated")
	return s, nil
}

// FramebufferSize reports the drawable size, zero while minimized.
func (p *Platform) FramebufferSize() (uint32, uint32) {
	w, h := p.Window.GetFramebufferSize()
	if w <= 0 || h <= 0 {
		return 0, 0
	}
	return uint32(w), uint32(h)
}

// PumpMessages processes pending window events and reports whether the
// window is still open.
func (p *Platform) PumpMessages() bool {
	glfw.PollEvents()
	return !p.Window.ShouldClose()
}

// WaitMessages blocks until the window receives an event. Used while
// minimized.
func (p *Platform) WaitMessages() bool {
	glfw.WaitEvents()
	return !p.Window.ShouldClose()
}

// Wake unblocks a pending WaitMessages. Safe from any goroutine.
func (p *Platform) Wake() {
	glfw.PostEmptyEvent()
}

func GetAbsoluteTime() float64 {
	return glfw.GetTime()
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}

func (p *Platform) post(code core.SystemEventCode, ctx core.EventContext) {
	if err := p.events.Post(code, p, ctx); err != nil {
		core.LogWarn("dropping window event %d: %s", code, err)
	}
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if key < 0 {
		return
	}
	var ctx core.EventContext
	ctx.Data.U16[0] = uint16(key)
	switch action {
	case glfw.Press:
		p.post(core.EVENT_CODE_KEY_PRESSED, ctx)
	case glfw.Release:
		p.post(core.EVENT_CODE_KEY_RELEASED, ctx)
	}
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	var ctx core.EventContext
	ctx.Data.U32[0] = uint32(max(width, 0))
	ctx.Data.U32[1] = uint32(max(height, 0))
	p.post(core.EVENT_CODE_RESIZED, ctx)
}

func (p *Platform) closeCallback(w *glfw.Window) {
	p.post(core.EVENT_CODE_APPLICATION_QUIT, core.EventContext{})
}
