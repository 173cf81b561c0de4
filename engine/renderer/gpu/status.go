package gpu

import "errors"

// Status is the outcome of an acquire or present call that the frame loop
// can recover from. Anything worse is reported as an error instead.
type Status uint32

const (
	StatusOK Status = iota
	StatusSuboptimal
	StatusOutOfDate
	StatusSurfaceLost
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusSuboptimal:
		return "suboptimal"
	case StatusOutOfDate:
		return "out of date"
	case StatusSurfaceLost:
		return "surface lost"
	}
	return "unknown"
}

// NeedsRecreate reports whether the swapchain must be rebuilt.
func (s Status) NeedsRecreate() bool {
	return s == StatusOutOfDate || s == StatusSurfaceLost
}

var (
	ErrTimeout         = errors.New("gpu: timeout")
	ErrOutOfPoolMemory = errors.New("gpu: out of pool memory")
	ErrDeviceLost      = errors.New("gpu: device lost")
	ErrOutOfMemory     = errors.New("gpu: out of memory")
)
