package swapchain

import "github.com/spaghettifunk/penumbra/engine/renderer/gpu"

// Change describes why dependents are being rebuilt.
type Change struct {
	// The swapchain and its images were re-created.
	Swapchain bool
	// The surface format changed.
	Format bool
	// The surface extent changed.
	Extent bool
	// A scene count (models, units, instances, lights) changed.
	Topology bool
}

func (c Change) Merge(o Change) Change {
	return Change{
		Swapchain: c.Swapchain || o.Swapchain,
		Format:    c.Format || o.Format,
		Extent:    c.Extent || o.Extent,
		Topology:  c.Topology || o.Topology,
	}
}

func (c Change) Any() bool {
	return c.Swapchain || c.Format || c.Extent || c.Topology
}

// Everything is the change used for the initial build.
var Everything = Change{Swapchain: true, Format: true, Extent: true, Topology: true}

// Target is what dependents are rebuilt against.
type Target struct {
	Swapchain   gpu.Swapchain
	Images      []gpu.Image
	Views       []gpu.ImageView
	Format      gpu.Format
	DepthFormat gpu.Format
	Extent      gpu.Extent2D
	Change      Change
}

func (t Target) ImageCount() uint32 {
	return uint32(len(t.Images))
}

// Dependent is a subsystem whose resources are derived from the swapchain or
// the scene topology. Destroy releases everything Reset created; there is no
// partial teardown.
type Dependent interface {
	Name() string
	Invalidated(c Change) bool
	Destroy()
	Reset(t Target) error
}

// Stage adapts a set of functions to Dependent.
type Stage struct {
	Label     string
	DependsOn func(c Change) bool
	OnDestroy func()
	OnReset   func(t Target) error
}

func (s *Stage) Name() string {
	return s.Label
}

func (s *Stage) Invalidated(c Change) bool {
	return s.DependsOn != nil && s.DependsOn(c)
}

func (s *Stage) Destroy() {
	if s.OnDestroy != nil {
		s.OnDestroy()
	}
}

func (s *Stage) Reset(t Target) error {
	if s.OnReset == nil {
		return nil
	}
	return s.OnReset(t)
}
