package core

import (
	"errors"

	"github.com/spaghettifunk/penumbra/engine/containers"
)

// Failure taxonomy of the frame core. Every error returned by the renderer
// packages wraps one of these (or a gpu device error) so callers can decide
// with errors.Is whether the frame loop survives.
var (
	// Descriptor or memory budget exceeded, or a required device feature is
	// missing. Fatal, aborts startup.
	ErrConfiguration = errors.New("configuration error")
	// Out-of-date/suboptimal swapchain or lost surface. Recovered by the
	// swapchain recreation protocol and never surfaced beyond a log line.
	ErrTransientSurface = errors.New("transient surface error")
	// Allocation failure inside a fixed budget. Fatal, there is no growth.
	ErrResourceExhaustion = errors.New("resource exhaustion")
	// Tensor access outside its current shape. A programming error.
	ErrIndexOutOfRange = containers.ErrIndexOutOfRange
)
