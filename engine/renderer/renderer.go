// Package renderer is the resource lifecycle core of the rendering
// hardware abstraction layer. A Renderer owns the frame slots of one
// device timeline, builds and releases resources, and defers native
// destruction until the GPU has provably finished with a resource.
//
// A Renderer, and every resource created from it, must only be used from
// one goroutine. Independent Renderers may run on their own goroutines.
package renderer

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/alpqr/qvk6-sub001/engine/containers"
	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
)

type Options struct {
	Config core.Config
	// Shared makes the instance part of a shared context. The device
	// argument of New must then be nil or the context's device.
	Shared *SharedContext
}

// frameSlot is one of the rotating CPU-side recording contexts.
type frameSlot struct {
	fence driver.Fence
	cmd   driver.CommandBuffer
	// serial of the frame last submitted in the slot and not yet observed
	// complete, 0 if none.
	serial uint64
}

type Renderer struct {
	dev            driver.Device
	alloc          driver.Allocator
	limits         driver.Limits
	cfg            core.Config
	shared         *SharedContext
	framesInFlight int
	log            *log.Logger

	state           FrameState
	currentSlot     int
	frameSerial     uint64
	submittedSerial uint64
	completedSerial uint64
	slots           [core.MaxFramesInFlight]frameSlot
	frameSwapchain  *SwapChain
	offscreen       bool
	pipeline        *GraphicsPipeline
	passTarget      RenderTarget
	deviceLost      bool
	destroyed       bool

	releases   releaseQueue
	live       map[core.ResourceID]Resource
	sharedHeld map[core.ResourceID]*sharedRecord
	pools      descriptorPoolRegistry
	readbacks  *containers.RingQueue[*readback]

	clock   *core.Clock
	metrics core.FrameMetrics
}

// New creates an instance on dev. The device stays owned by the caller.
func New(dev driver.Device, opts Options) (*Renderer, error) {
	cfg := opts.Config
	if cfg == (core.Config{}) {
		cfg = core.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Shared != nil {
		if dev == nil {
			dev = opts.Shared.dev
		}
		if dev != opts.Shared.dev {
			return nil, fmt.Errorf("%w: device differs from the shared context's", core.ErrIncompatibleShare)
		}
	}
	if dev == nil {
		return nil, errors.New("renderer: nil device")
	}
	core.SetLogLevel(cfg.LogLevel)

	r := &Renderer{
		dev:            dev,
		alloc:          dev.Allocator(),
		limits:         dev.Limits(),
		cfg:            cfg,
		shared:         opts.Shared,
		framesInFlight: cfg.FramesInFlight,
		log:            core.Logger().With("backend", dev.Backend().String()),
		state:          FrameStateIdle,
		releases:       newReleaseQueue(),
		live:           make(map[core.ResourceID]Resource),
		sharedHeld:     make(map[core.ResourceID]*sharedRecord),
		pools: descriptorPoolRegistry{capacity: driver.PoolCapacity{
			MaxSets:               cfg.DescriptorPool.MaxSets,
			UniformBuffers:        cfg.DescriptorPool.UniformBuffers,
			CombinedImageSamplers: cfg.DescriptorPool.CombinedImageSamplers,
		}},
		readbacks: containers.NewRingQueue[*readback](cfg.MaxPendingReadbacks),
		clock:     core.NewClock(),
	}

	for i := 0; i < r.framesInFlight; i++ {
		fence, err := dev.CreateFence(true)
		if err != nil {
			r.destroySlots()
			return nil, fmt.Errorf("failed to create frame fence: %w", err)
		}
		r.slots[i].fence = fence
		cmd, err := dev.CreateCommandBuffer()
		if err != nil {
			r.destroySlots()
			return nil, fmt.Errorf("failed to create frame command buffer: %w", err)
		}
		r.slots[i].cmd = cmd
	}
	r.log.Info("renderer created", "frames_in_flight", r.framesInFlight)
	return r, nil
}

// Destroy releases every live resource, waits for the device to go idle
// and destroys everything still queued. The Renderer is unusable afterwards.
func (r *Renderer) Destroy() error {
	if r.destroyed {
		return nil
	}
	if r.state == FrameStateFrameBegun || r.state == FrameStatePassBegun || r.state == FrameStatePassEnded {
		r.log.Warn("renderer destroyed inside a frame")
	}
	for id, rec := range r.sharedHeld {
		r.queueSharedUnref(rec)
		delete(r.sharedHeld, id)
	}
	for _, res := range r.liveResources() {
		if !res.IsBuilt() {
			continue
		}
		r.log.Warn("releasing leaked resource", "kind", res.Kind().String(), "name", res.Name())
		if err := res.Release(); err != nil {
			core.LogError("failed to release %s %q: %s", res.Kind(), res.Name(), err.Error())
		}
	}
	if r.waitIdle() == nil {
		r.completeReadbacks()
	}
	r.failReadbacks(core.ErrDeviceLost)
	err := r.executeDeferredReleases(true)
	r.pools.destroy(r.dev)
	r.destroySlots()
	r.destroyed = true
	r.state = FrameStateIdle
	if errors.Is(err, core.ErrDeviceLost) {
		return nil
	}
	return err
}

func (r *Renderer) destroySlots() {
	for i := range r.slots {
		if r.slots[i].fence != 0 {
			r.dev.DestroyFence(r.slots[i].fence)
		}
		if r.slots[i].cmd != 0 {
			r.dev.FreeCommandBuffer(r.slots[i].cmd)
		}
		r.slots[i] = frameSlot{}
	}
}

func (r *Renderer) Device() driver.Device { return r.dev }

func (r *Renderer) Backend() driver.Backend { return r.dev.Backend() }

func (r *Renderer) Config() core.Config { return r.cfg }

func (r *Renderer) FramesInFlight() int { return r.framesInFlight }

// CurrentFrameSlot is the slot the current (or next) frame records into.
func (r *Renderer) CurrentFrameSlot() int { return r.currentSlot }

// FrameSerial is the serial of the most recently begun frame, 0 before the first one.
func (r *Renderer) FrameSerial() uint64 { return r.frameSerial }

// CompletedFrameSerial is the newest frame serial known to be finished on the GPU.
func (r *Renderer) CompletedFrameSerial() uint64 { return r.completedSerial }

func (r *Renderer) IsDeviceLost() bool { return r.deviceLost }

func (r *Renderer) Metrics() *core.FrameMetrics { return &r.metrics }

// DescriptorPoolCount is the number of descriptor pools created so far.
func (r *Renderer) DescriptorPoolCount() int { return len(r.pools.pools) }

// PendingReleases is the number of entries waiting in the deferred release queue.
func (r *Renderer) PendingReleases() int { return len(r.releases.entries) }

// callerError logs and returns a programmer error.
func (r *Renderer) callerError(err error, format string, args ...interface{}) error {
	e := fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
	core.LogError("%s", e.Error())
	return e
}

// checkDevice converts a device-lost report into the sticky lost state.
func (r *Renderer) checkDevice(err error) error {
	if err != nil && errors.Is(err, core.ErrDeviceLost) && !r.deviceLost {
		r.deviceLost = true
		core.LogError("device lost, the renderer must be destroyed")
	}
	return err
}
