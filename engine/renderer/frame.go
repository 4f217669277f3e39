package renderer

import (
	"errors"
	"fmt"

	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/math"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
)

type FrameState int

const (
	FrameStateIdle FrameState = iota
	FrameStateFrameBegun
	FrameStatePassBegun
	FrameStatePassEnded
	FrameStateFrameEnded
)

func (s FrameState) String() string {
	switch s {
	case FrameStateIdle:
		return "idle"
	case FrameStateFrameBegun:
		return "frame begun"
	case FrameStatePassBegun:
		return "pass begun"
	case FrameStatePassEnded:
		return "pass ended"
	case FrameStateFrameEnded:
		return "frame ended"
	}
	return "unknown"
}

func (r *Renderer) State() FrameState { return r.state }

// inFrame reports whether a frame has begun and not yet ended.
func (r *Renderer) inFrame() bool {
	return r.state == FrameStateFrameBegun || r.state == FrameStatePassBegun || r.state == FrameStatePassEnded
}

// InFlightFrames is the number of submitted frames not yet observed complete.
func (r *Renderer) InFlightFrames() int {
	n := 0
	for i := 0; i < r.framesInFlight; i++ {
		if r.slots[i].serial != 0 {
			n++
		}
	}
	return n
}

func (r *Renderer) checkBegin() error {
	if r.destroyed {
		return r.callerError(core.ErrInvalidState, "frame on a destroyed renderer")
	}
	if r.deviceLost {
		return core.ErrDeviceLost
	}
	if r.state != FrameStateIdle && r.state != FrameStateFrameEnded {
		return r.callerError(core.ErrInvalidState, "begin frame in state %s", r.state)
	}
	return nil
}

// slotInFlight reports whether the frame last submitted in slot i may still be executing.
func (r *Renderer) slotInFlight(i int) bool {
	s := r.slots[i].serial
	return s != 0 && s > r.completedSerial
}

// waitSlot blocks until the frame last submitted in slot i has finished.
func (r *Renderer) waitSlot(i int) error {
	s := &r.slots[i]
	if s.serial == 0 {
		return nil
	}
	if err := r.checkDevice(r.dev.WaitFence(s.fence, 0)); err != nil {
		return err
	}
	r.completedSerial = math.Max(r.completedSerial, s.serial)
	s.serial = 0
	return nil
}

// reclaim makes the current slot available and destroys what the GPU is done with.
func (r *Renderer) reclaim() error {
	if err := r.waitSlot(r.currentSlot); err != nil {
		return err
	}
	r.completeReadbacks()
	return r.executeDeferredReleases(false)
}

// BeginFrame starts recording a frame that renders to sc. It blocks only
// when the current slot's previous frame is still executing.
//
// core.ErrSwapchainOutOfDate asks the caller to resize sc and retry,
// core.ErrFrameSkipped to try again later. Neither leaves a frame begun.
func (r *Renderer) BeginFrame(sc *SwapChain) error {
	if err := r.checkBegin(); err != nil {
		return err
	}
	if sc.r != r {
		return r.callerError(core.ErrInvalidState, "swapchain %q belongs to another renderer", sc.name)
	}
	if !sc.IsBuilt() {
		return r.callerError(core.ErrNotBuilt, "begin frame on swapchain %q", sc.name)
	}
	if sc.stale {
		return fmt.Errorf("%w: swapchain %q holds an image of an abandoned frame", core.ErrSwapchainOutOfDate, sc.name)
	}
	if sc.IsOutOfDate() {
		w, h := sc.SurfacePixelSize()
		return fmt.Errorf("%w: surface of %q is %dx%d, built for %dx%d",
			core.ErrSwapchainOutOfDate, sc.name, w, h, sc.width, sc.height)
	}
	if err := r.reclaim(); err != nil {
		return err
	}

	slot := r.currentSlot
	idx, err := r.dev.AcquireNextImage(sc.native, sc.imageAvailable[slot])
	if err != nil {
		err = r.checkDevice(err)
		switch {
		case errors.Is(err, core.ErrDeviceLost):
			return err
		case errors.Is(err, core.ErrSwapchainOutOfDate):
			return fmt.Errorf("failed to acquire from swapchain %q: %w", sc.name, err)
		}
		r.log.Warn("frame skipped", "swapchain", sc.name, "err", err)
		return fmt.Errorf("%w: acquire from swapchain %q: %w", core.ErrFrameSkipped, sc.name, err)
	}
	if err := r.waitImage(sc, idx); err != nil {
		return r.abandonAcquire(sc, slot, err)
	}
	if err := r.beginRecording(); err != nil {
		return r.abandonAcquire(sc, slot, err)
	}
	sc.imagesInFlight[idx] = r.frameSerial
	sc.currentImage = idx
	r.frameSwapchain = sc
	return nil
}

// abandonAcquire handles a frame that failed to begin after an image was
// acquired. An empty submission consumes the image-available semaphore, and
// the swapchain reports out of date so the rebuild gives the image back.
func (r *Renderer) abandonAcquire(sc *SwapChain, slot int, err error) error {
	if errors.Is(err, core.ErrDeviceLost) {
		return err
	}
	if serr := r.checkDevice(r.dev.Submit(driver.SubmitInfo{Wait: sc.imageAvailable[slot]})); serr != nil {
		r.log.Warn("failed to retire acquired image", "swapchain", sc.name, "err", serr)
	}
	sc.stale = true
	r.log.Warn("frame skipped", "swapchain", sc.name, "err", err)
	return fmt.Errorf("%w: begin frame on swapchain %q: %w", core.ErrFrameSkipped, sc.name, err)
}

// waitImage waits for the frame that last rendered to an acquired image
// when that frame is still executing in another slot.
func (r *Renderer) waitImage(sc *SwapChain, idx uint32) error {
	used := sc.imagesInFlight[idx]
	if used <= r.completedSerial {
		return nil
	}
	for i := 0; i < r.framesInFlight; i++ {
		if r.slots[i].serial == used {
			return r.waitSlot(i)
		}
	}
	return nil
}

func (r *Renderer) beginRecording() error {
	s := &r.slots[r.currentSlot]
	if err := r.dev.ResetFence(s.fence); err != nil {
		return r.checkDevice(fmt.Errorf("failed to reset frame fence: %w", err))
	}
	if err := r.dev.BeginCommandBuffer(s.cmd); err != nil {
		return r.checkDevice(fmt.Errorf("failed to begin command buffer: %w", err))
	}
	r.frameSerial++
	r.state = FrameStateFrameBegun
	r.pipeline = nil
	r.passTarget = nil

	r.clock.Update()
	if r.frameSerial > 1 {
		r.metrics.Update(r.clock.Elapsed())
	}
	r.clock.Start()
	return nil
}

func (r *Renderer) checkEnd() error {
	if r.deviceLost {
		return core.ErrDeviceLost
	}
	if r.state != FrameStateFrameBegun && r.state != FrameStatePassEnded {
		return r.callerError(core.ErrInvalidState, "end frame in state %s", r.state)
	}
	return nil
}

// submit ends recording and queues the frame with the slot fence.
func (r *Renderer) submit(wait, signal driver.Semaphore) error {
	s := &r.slots[r.currentSlot]
	if err := r.dev.EndCommandBuffer(s.cmd); err != nil {
		return r.checkDevice(fmt.Errorf("failed to end command buffer: %w", err))
	}
	err := r.dev.Submit(driver.SubmitInfo{CommandBuffer: s.cmd, Wait: wait, Signal: signal, Fence: s.fence})
	if err != nil {
		return r.checkDevice(fmt.Errorf("failed to submit frame %d: %w", r.frameSerial, err))
	}
	s.serial = r.frameSerial
	r.submittedSerial = r.frameSerial
	return nil
}

// advance moves to the next slot once a frame has ended, whether or not it reached the GPU.
func (r *Renderer) advance() {
	r.currentSlot = (r.currentSlot + 1) % r.framesInFlight
	r.state = FrameStateFrameEnded
	r.frameSwapchain = nil
	r.offscreen = false
	r.pipeline = nil
	r.passTarget = nil
}

// EndFrame submits the frame and queues sc for presentation. An
// out-of-date present still ends the frame and reports
// core.ErrSwapchainOutOfDate.
func (r *Renderer) EndFrame(sc *SwapChain) error {
	if err := r.checkEnd(); err != nil {
		return err
	}
	if r.offscreen || r.frameSwapchain != sc {
		return r.callerError(core.ErrInvalidState, "end frame on swapchain %q that did not begin it", sc.name)
	}
	slot := r.currentSlot
	if err := r.submit(sc.imageAvailable[slot], sc.renderFinished[slot]); err != nil {
		r.advance()
		return err
	}
	err := r.checkDevice(r.dev.Present(sc.native, sc.currentImage, sc.renderFinished[slot]))
	r.advance()
	if err != nil {
		return fmt.Errorf("failed to present swapchain %q: %w", sc.name, err)
	}
	return nil
}

// BeginOffscreenFrame starts a frame that renders only to texture targets.
func (r *Renderer) BeginOffscreenFrame() error {
	if err := r.checkBegin(); err != nil {
		return err
	}
	if err := r.reclaim(); err != nil {
		return err
	}
	if err := r.beginRecording(); err != nil {
		return err
	}
	r.offscreen = true
	return nil
}

// EndOffscreenFrame submits the frame and waits for the GPU to finish it.
func (r *Renderer) EndOffscreenFrame() error {
	if err := r.checkEnd(); err != nil {
		return err
	}
	if !r.offscreen {
		return r.callerError(core.ErrInvalidState, "end offscreen frame inside a swapchain frame")
	}
	slot := r.currentSlot
	if err := r.submit(0, 0); err != nil {
		r.advance()
		return err
	}
	err := r.waitSlot(slot)
	r.advance()
	if err != nil {
		return err
	}
	r.completeReadbacks()
	return nil
}

// Finish waits for the GPU to execute everything submitted so far, then
// completes readbacks and destroys every queued release that became safe.
func (r *Renderer) Finish() error {
	if r.deviceLost {
		return core.ErrDeviceLost
	}
	if r.inFrame() {
		return r.callerError(core.ErrInvalidState, "finish inside a frame")
	}
	if err := r.waitIdle(); err != nil {
		return err
	}
	r.completeReadbacks()
	return r.executeDeferredReleases(false)
}
