package swapchain

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/penumbra/engine/core"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
)

type State int

const (
	StateValid State = iota
	StateOutOfDate
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateOutOfDate:
		return "out of date"
	case StateDestroyed:
		return "destroyed"
	}
	return "unknown"
}

var ErrDestroyed = errors.New("swapchain coordinator destroyed")

type Device interface {
	gpu.Syncer
	gpu.SwapchainDevice
	CreateImageView(img gpu.Image, format gpu.Format, aspect gpu.Aspect) (gpu.ImageView, error)
	DestroyImageView(view gpu.ImageView)
}

// Window is the windowing collaborator.
type Window interface {
	Surface() gpu.Surface
	// RecreateSurface destroys the current surface and creates a new one.
	RecreateSurface() (gpu.Surface, error)
	// FramebufferSize reports the drawable size, zero while minimized.
	FramebufferSize() (uint32, uint32)
}

// Coordinator owns the swapchain and rebuilds every registered dependent
// when the swapchain is invalidated or the scene topology changes.
// Dependents are rebuilt in registration order and destroyed in reverse.
type Coordinator struct {
	device Device
	window Window

	state       State
	pending     Change
	surfaceLost bool

	swapchain   gpu.Owned[gpu.Swapchain]
	images      []gpu.Image
	views       []gpu.Owned[gpu.ImageView]
	format      gpu.Format
	depthFormat gpu.Format
	extent      gpu.Extent2D

	dependents []Dependent
}

func NewCoordinator(device Device, window Window) (*Coordinator, error) {
	c := &Coordinator{device: device, window: window}
	caps, err := device.SurfaceCapabilities(window.Surface())
	if err != nil {
		return nil, fmt.Errorf("querying surface capabilities: %w", err)
	}
	if err := c.create(caps); err != nil {
		return nil, err
	}
	return c, nil
}

// Register appends d to the rebuild order.
func (c *Coordinator) Register(d ...Dependent) {
	c.dependents = append(c.dependents, d...)
}

// Start builds every dependent for the first time.
func (c *Coordinator) Start() error {
	return c.resetFrom(0, Everything)
}

func (c *Coordinator) State() State {
	return c.state
}

func (c *Coordinator) Swapchain() gpu.Swapchain {
	return c.swapchain.Get()
}

func (c *Coordinator) ImageCount() uint32 {
	return uint32(len(c.images))
}

func (c *Coordinator) Extent() gpu.Extent2D {
	return c.extent
}

func (c *Coordinator) Target(change Change) Target {
	views := make([]gpu.ImageView, len(c.views))
	for i := range c.views {
		views[i] = c.views[i].Get()
	}
	return Target{
		Swapchain:   c.swapchain.Get(),
		Images:      c.images,
		Views:       views,
		Format:      c.format,
		DepthFormat: c.depthFormat,
		Extent:      c.extent,
		Change:      change,
	}
}

// StatusError maps a non-OK acquire or present status onto
// core.ErrTransientSurface. It returns nil for gpu.StatusOK.
func StatusError(status gpu.Status) error {
	if status == gpu.StatusOK {
		return nil
	}
	return fmt.Errorf("%w: %s", core.ErrTransientSurface, status)
}

// Invalidate marks the swapchain out of date after a recoverable acquire or
// present status.
func (c *Coordinator) Invalidate(status gpu.Status) {
	if c.state == StateDestroyed {
		return
	}
	if status == gpu.StatusSurfaceLost {
		c.surfaceLost = true
	}
	if c.state != StateOutOfDate {
		core.LogInfo("swapchain invalidated: %v", StatusError(status))
	}
	c.state = StateOutOfDate
	c.pending = c.pending.Merge(Change{Swapchain: true})
}

// Resize is the windowing collaborator's resize notification. A zero area
// keeps the coordinator out of date until a non-zero size shows up.
func (c *Coordinator) Resize(width, height uint32) {
	if c.state == StateDestroyed {
		return
	}
	if width == 0 || height == 0 {
		core.LogInfo("window minimized, swapchain recreation suspended")
	} else {
		core.LogDebug("window resized to %dx%d", width, height)
	}
	c.state = StateOutOfDate
	c.pending = c.pending.Merge(Change{Swapchain: true, Extent: true})
}

// Recover runs the recreation protocol once, fully. It reports false without
// touching anything while the drawable area is zero.
func (c *Coordinator) Recover() (bool, error) {
	switch c.state {
	case StateDestroyed:
		return false, ErrDestroyed
	case StateValid:
		if !c.pending.Any() {
			return true, nil
		}
	}
	if w, h := c.window.FramebufferSize(); w == 0 || h == 0 {
		return false, nil
	}

	var caps gpu.SurfaceCapabilities
	if !c.surfaceLost {
		var err error
		caps, err = c.device.SurfaceCapabilities(c.window.Surface())
		if err != nil {
			return false, fmt.Errorf("querying surface capabilities: %w", err)
		}
		if caps.CurrentExtent.Empty() {
			return false, nil
		}
	}

	if err := c.device.WaitIdle(); err != nil {
		return false, fmt.Errorf("waiting for device idle: %w", err)
	}

	change := c.pending.Merge(Change{Swapchain: true})
	if c.surfaceLost {
		// Nothing is known about the new surface yet.
		change.Format = true
		change.Extent = true
	} else {
		change.Format = change.Format || caps.SurfaceFormat != c.format
		change.Extent = change.Extent || caps.CurrentExtent != c.extent
	}
	first := c.firstInvalidated(change)
	c.destroyFrom(first)
	c.destroySwapchain()

	if c.surfaceLost {
		if _, err := c.window.RecreateSurface(); err != nil {
			return false, fmt.Errorf("re-creating surface: %w", err)
		}
		c.surfaceLost = false
		var err error
		caps, err = c.device.SurfaceCapabilities(c.window.Surface())
		if err != nil {
			return false, fmt.Errorf("querying surface capabilities: %w", err)
		}
	}

	if err := c.create(caps); err != nil {
		return false, err
	}
	if err := c.resetFrom(first, change); err != nil {
		return false, err
	}
	core.LogInfo("swapchain recreated: %d images at %dx%d", len(c.images), c.extent.Width, c.extent.Height)
	return true, nil
}

// Rebuild destroys and rebuilds the dependents affected by change without
// touching the swapchain. While out of date the change is folded into the
// next Recover.
func (c *Coordinator) Rebuild(change Change) error {
	switch c.state {
	case StateDestroyed:
		return ErrDestroyed
	case StateOutOfDate:
		c.pending = c.pending.Merge(change)
		return nil
	}
	if err := c.device.WaitIdle(); err != nil {
		return fmt.Errorf("waiting for device idle: %w", err)
	}
	first := c.firstInvalidated(change)
	c.destroyFrom(first)
	return c.resetFrom(first, change)
}

// Destroy tears down every dependent and the swapchain. The coordinator
// cannot be used afterwards.
func (c *Coordinator) Destroy() {
	if c.state == StateDestroyed {
		return
	}
	if err := c.device.WaitIdle(); err != nil {
		core.LogError("waiting for device idle: %s", err)
	}
	c.destroyFrom(0)
	c.destroySwapchain()
	c.state = StateDestroyed
}

// firstInvalidated is the index of the first dependent affected by change.
// Every dependent after it is rebuilt too, since it may hold handles into
// it.
func (c *Coordinator) firstInvalidated(change Change) int {
	for i, d := range c.dependents {
		if d.Invalidated(change) {
			return i
		}
	}
	return len(c.dependents)
}

func (c *Coordinator) destroyFrom(first int) {
	for i := len(c.dependents) - 1; i >= first; i-- {
		core.LogDebug("destroying %s", c.dependents[i].Name())
		c.dependents[i].Destroy()
	}
}

func (c *Coordinator) resetFrom(first int, change Change) error {
	target := c.Target(change)
	for i := first; i < len(c.dependents); i++ {
		if err := c.dependents[i].Reset(target); err != nil {
			return fmt.Errorf("rebuilding %s: %w", c.dependents[i].Name(), err)
		}
	}
	c.pending = Change{}
	c.state = StateValid
	return nil
}

func (c *Coordinator) destroySwapchain() {
	for i := len(c.views) - 1; i >= 0; i-- {
		c.views[i].Destroy()
	}
	c.views = nil
	c.images = nil
	c.swapchain.Destroy()
}

// imageCount asks for one image more than the minimum, within the maximum
// when the surface has one.
func imageCount(caps gpu.SurfaceCapabilities) uint32 {
	n := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && n > caps.MaxImageCount {
		n = caps.MaxImageCount
	}
	return n
}

func (c *Coordinator) create(caps gpu.SurfaceCapabilities) error {
	extent := caps.CurrentExtent
	if extent.Empty() {
		w, h := c.window.FramebufferSize()
		extent = gpu.Extent2D{Width: w, Height: h}
	}
	sc, images, err := c.device.CreateSwapchain(gpu.SwapchainInfo{
		Surface:    c.window.Surface(),
		ImageCount: imageCount(caps),
		Extent:     extent,
		Format:     caps.SurfaceFormat,
	})
	if err != nil {
		return fmt.Errorf("creating swapchain: %w", err)
	}
	c.swapchain = gpu.Own(sc, c.device.DestroySwapchain)
	c.images = images
	c.views = make([]gpu.Owned[gpu.ImageView], len(images))
	for i, img := range images {
		view, err := c.device.CreateImageView(img, caps.SurfaceFormat, gpu.AspectColor)
		if err != nil {
			c.destroySwapchain()
			return fmt.Errorf("creating swapchain image view %d: %w", i, err)
		}
		c.views[i] = gpu.Own(view, c.device.DestroyImageView)
	}
	c.format = caps.SurfaceFormat
	c.depthFormat = caps.DepthFormat
	c.extent = extent
	c.state = StateValid
	return nil
}
