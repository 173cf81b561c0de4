package frame

import (
	"fmt"
	"math"
	"time"

	"github.com/spaghettifunk/penumbra/engine/core"
	"github.com/spaghettifunk/penumbra/engine/renderer/gpu"
)

// The presentation engine decides how long an acquire may take.
const acquireTimeout = time.Duration(math.MaxInt64)

type Device interface {
	gpu.Syncer
	gpu.Submitter
	gpu.Presenter
}

// Slot is the set of synchronization objects used by one frame in flight.
type Slot struct {
	Index          uint32
	ImageAvailable gpu.Semaphore
	RenderFinished gpu.Semaphore
	InFlight       gpu.Fence
}

// Synchronizer bounds the GPU work in flight to a fixed number of frames and
// tracks which frame slot last rendered into each swapchain image.
type Synchronizer struct {
	device  Device
	timeout time.Duration

	imageAvailable []gpu.Owned[gpu.Semaphore]
	renderFinished []gpu.Owned[gpu.Semaphore]
	inFlight       []gpu.Owned[gpu.Fence]
	// Set between a fence reset and the submit that will signal it again.
	armed []bool

	// Fence of the slot that last submitted work for each swapchain image.
	imagesInFlight []gpu.Fence

	current uint32
}

func NewSynchronizer(device Device, framesInFlight, imageCount uint32, timeout time.Duration) (*Synchronizer, error) {
	if framesInFlight == 0 {
		return nil, fmt.Errorf("%w: frames in flight must be at least 1", core.ErrConfiguration)
	}
	s := &Synchronizer{
		device:         device,
		timeout:        timeout,
		imageAvailable: make([]gpu.Owned[gpu.Semaphore], framesInFlight),
		renderFinished: make([]gpu.Owned[gpu.Semaphore], framesInFlight),
		inFlight:       make([]gpu.Owned[gpu.Fence], framesInFlight),
		armed:          make([]bool, framesInFlight),
		imagesInFlight: make([]gpu.Fence, imageCount),
	}
	for i := uint32(0); i < framesInFlight; i++ {
		ia, err := device.CreateSemaphore()
		if err != nil {
			s.Destroy()
			return nil, fmt.Errorf("creating image available semaphore %d: %w", i, err)
		}
		s.imageAvailable[i] = gpu.Own(ia, device.DestroySemaphore)

		rf, err := device.CreateSemaphore()
		if err != nil {
			s.Destroy()
			return nil, fmt.Errorf("creating render finished semaphore %d: %w", i, err)
		}
		s.renderFinished[i] = gpu.Own(rf, device.DestroySemaphore)

		// Created signaled so the first frames do not block.
		f, err := device.CreateFence(true)
		if err != nil {
			s.Destroy()
			return nil, fmt.Errorf("creating in flight fence %d: %w", i, err)
		}
		s.inFlight[i] = gpu.Own(f, device.DestroyFence)
	}
	core.LogDebug("frame synchronizer created with %d frames in flight over %d images", framesInFlight, imageCount)
	return s, nil
}

func (s *Synchronizer) FramesInFlight() uint32 {
	return uint32(len(s.inFlight))
}

func (s *Synchronizer) ImageCount() uint32 {
	return uint32(len(s.imagesInFlight))
}

func (s *Synchronizer) Current() Slot {
	return Slot{
		Index:          s.current,
		ImageAvailable: s.imageAvailable[s.current].Get(),
		RenderFinished: s.renderFinished[s.current].Get(),
		InFlight:       s.inFlight[s.current].Get(),
	}
}

// Fence returns the in-flight fence of slot i.
func (s *Synchronizer) Fence(i uint32) gpu.Fence {
	return s.inFlight[i].Get()
}

// ImageOwner returns the fence currently recorded for a swapchain image, or
// the null fence.
func (s *Synchronizer) ImageOwner(image uint32) gpu.Fence {
	if int(image) >= len(s.imagesInFlight) {
		return gpu.NullFence
	}
	return s.imagesInFlight[image]
}

// BeginFrame waits until the GPU is done with the current slot and resets its
// fence for the new frame.
func (s *Synchronizer) BeginFrame() (Slot, error) {
	f := s.inFlight[s.current].Get()
	if err := s.device.WaitForFence(f, s.timeout); err != nil {
		return Slot{}, fmt.Errorf("waiting for in flight fence of slot %d: %w", s.current, err)
	}
	if err := s.device.ResetFence(f); err != nil {
		return Slot{}, fmt.Errorf("resetting in flight fence of slot %d: %w", s.current, err)
	}
	s.armed[s.current] = true
	return s.Current(), nil
}

// AcquireImage requests the next presentable image. Out-of-date and lost
// surfaces come back as a status, not as an error.
func (s *Synchronizer) AcquireImage(sc gpu.Swapchain) (uint32, gpu.Status, error) {
	image, status, err := s.device.AcquireNextImage(sc, acquireTimeout, s.imageAvailable[s.current].Get())
	if err != nil {
		return 0, status, fmt.Errorf("acquiring swapchain image: %w", err)
	}
	return image, status, nil
}

// BindImage makes the current slot the owner of image, first waiting for
// whichever frame rendered into it before.
func (s *Synchronizer) BindImage(image uint32) error {
	if int(image) >= len(s.imagesInFlight) {
		return fmt.Errorf("%w: swapchain image %d, image count %d", core.ErrIndexOutOfRange, image, len(s.imagesInFlight))
	}
	own := s.inFlight[s.current].Get()
	if owner := s.imagesInFlight[image]; owner != gpu.NullFence && owner != own {
		if err := s.device.WaitForFence(owner, s.timeout); err != nil {
			return fmt.Errorf("waiting for owner of swapchain image %d: %w", image, err)
		}
	}
	s.imagesInFlight[image] = own
	return nil
}

// EndFrame submits the recorded command buffers for the current slot,
// presents image and advances to the next slot.
func (s *Synchronizer) EndFrame(sc gpu.Swapchain, image uint32, cmds []gpu.CommandBuffer) (gpu.Status, error) {
	slot := s.Current()
	err := s.device.Submit(gpu.SubmitInfo{
		WaitSemaphores:   []gpu.Semaphore{slot.ImageAvailable},
		CommandBuffers:   cmds,
		SignalSemaphores: []gpu.Semaphore{slot.RenderFinished},
		Fence:            slot.InFlight,
	})
	if err != nil {
		return gpu.StatusOK, fmt.Errorf("submitting frame on slot %d: %w", slot.Index, err)
	}
	s.armed[slot.Index] = false

	status, err := s.device.Present(sc, image, slot.RenderFinished)
	s.current = (s.current + 1) % uint32(len(s.inFlight))
	if err != nil {
		return status, fmt.Errorf("presenting swapchain image %d: %w", image, err)
	}
	return status, nil
}

// Recover must be called with the device idle after the swapchain was
// rebuilt. Fences reset by a frame that never reached submit are replaced by
// signaled ones and the image ownership table is resized to imageCount.
func (s *Synchronizer) Recover(imageCount uint32) error {
	for i, armed := range s.armed {
		if !armed {
			continue
		}
		f, err := s.device.CreateFence(true)
		if err != nil {
			return fmt.Errorf("re-creating in flight fence %d: %w", i, err)
		}
		s.inFlight[i].Replace(f, s.device.DestroyFence)
		s.armed[i] = false
		core.LogDebug("re-armed in flight fence of slot %d", i)
	}
	s.imagesInFlight = make([]gpu.Fence, imageCount)
	return nil
}

// Destroy releases every semaphore and fence. The device must be idle.
func (s *Synchronizer) Destroy() {
	for i := range s.inFlight {
		s.inFlight[i].Destroy()
		s.renderFinished[i].Destroy()
		s.imageAvailable[i].Destroy()
	}
	s.imagesInFlight = nil
}
