// Package null implements driver.Device without a GPU. Submitted work
// completes immediately, or only when the caller says so in manual mode,
// which makes frame pacing and deferred destruction observable in tests.
package null

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
)

var (
	// ErrAcquireFailed is the transient failure injected by FailNextAcquire.
	ErrAcquireFailed = errors.New("null: acquire failed")
	// ErrInjected is returned by calls made to fail by the FailNext helpers.
	ErrInjected = errors.New("null: injected failure")
)

const swapchainImageCount = 3

type Option func(*Device)

// WithManualCompletion keeps submitted work pending until CompleteNext or
// CompleteAll is called.
func WithManualCompletion() Option {
	return func(d *Device) { d.manual = true }
}

func WithLimits(l driver.Limits) Option {
	return func(d *Device) { d.limits = l }
}

// Stats counts native calls. Misuse counters stay zero for correct callers.
type Stats struct {
	BuffersCreated           int
	BuffersDestroyed         int
	ImagesCreated            int
	ImagesDestroyed          int
	SamplersCreated          int
	SamplersDestroyed        int
	Allocations              int
	Frees                    int
	LayoutsCreated           int
	LayoutsDestroyed         int
	DescriptorPoolsCreated   int
	DescriptorPoolsDestroyed int
	DescriptorSetsAllocated  int
	DescriptorSetsFreed      int
	DescriptorWrites         int
	RenderPassesCreated      int
	RenderPassesDestroyed    int
	FramebuffersCreated      int
	FramebuffersDestroyed    int
	PipelinesCreated         int
	PipelinesDestroyed       int
	SwapchainsCreated        int
	SwapchainsDestroyed      int
	Submits                  int
	Presents                 int
	Draws                    int
	WaitIdleCalls            int

	InvalidHandles  int
	SemaphoreMisuse int
	RecordingMisuse int
}

type buffer struct {
	desc  driver.BufferDesc
	alloc driver.Allocation
}

type image struct {
	desc      driver.ImageDesc
	alloc     driver.Allocation
	swapchain bool
}

type allocation struct {
	data   []byte
	usage  driver.MemoryUsage
	mapped bool
}

type pool struct {
	capacity driver.PoolCapacity
	sets     uint32
	ubos     uint32
	samplers uint32
}

type set struct {
	pool   driver.DescriptorPool
	layout driver.DescriptorSetLayout
	writes map[uint32]driver.DescriptorWrite
}

type swapchain struct {
	surface driver.Surface
	width   uint32
	height  uint32
	images  []driver.Image
	next    uint32
}

type commandBuffer struct {
	recording bool
	inPass    bool
}

// Device is a deterministic, thread-safe stand-in for a GPU.
type Device struct {
	mu      sync.Mutex
	cond    *sync.Cond
	next    driver.Handle
	limits  driver.Limits
	manual  bool
	lost    bool
	failing int
	stats   Stats

	failBegin       int
	failSwapchain   int
	failFramebuffer int

	buffers      map[driver.Buffer]*buffer
	images       map[driver.Image]*image
	samplers     map[driver.Sampler]driver.SamplerDesc
	allocs       map[driver.Allocation]*allocation
	layouts      map[driver.DescriptorSetLayout][]driver.LayoutBinding
	pools        map[driver.DescriptorPool]*pool
	sets         map[driver.DescriptorSet]*set
	renderPasses map[driver.RenderPass]driver.RenderPassDesc
	framebuffers map[driver.Framebuffer]driver.FramebufferDesc
	pipelines    map[driver.Pipeline]driver.PipelineDesc
	fences       map[driver.Fence]bool
	semaphores   map[driver.Semaphore]bool
	cmdbufs      map[driver.CommandBuffer]*commandBuffer
	swapchains   map[driver.Swapchain]*swapchain

	// pending holds the fences of submitted, not yet completed work in queue order.
	pending []driver.Fence
}

var _ driver.Device = (*Device)(nil)

func New(opts ...Option) *Device {
	d := &Device{
		limits: driver.Limits{
			MaxBufferSize:                   1 << 28,
			MaxTextureSize:                  16384,
			MinUniformBufferOffsetAlignment: 256,
			MaxSampleCount:                  8,
		},
		buffers:      make(map[driver.Buffer]*buffer),
		images:       make(map[driver.Image]*image),
		samplers:     make(map[driver.Sampler]driver.SamplerDesc),
		allocs:       make(map[driver.Allocation]*allocation),
		layouts:      make(map[driver.DescriptorSetLayout][]driver.LayoutBinding),
		pools:        make(map[driver.DescriptorPool]*pool),
		sets:         make(map[driver.DescriptorSet]*set),
		renderPasses: make(map[driver.RenderPass]driver.RenderPassDesc),
		framebuffers: make(map[driver.Framebuffer]driver.FramebufferDesc),
		pipelines:    make(map[driver.Pipeline]driver.PipelineDesc),
		fences:       make(map[driver.Fence]bool),
		semaphores:   make(map[driver.Semaphore]bool),
		cmdbufs:      make(map[driver.CommandBuffer]*commandBuffer),
		swapchains:   make(map[driver.Swapchain]*swapchain),
	}
	d.cond = sync.NewCond(&d.mu)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) handle() driver.Handle {
	d.next++
	return d.next
}

func (d *Device) Backend() driver.Backend { return driver.BackendNull }

func (d *Device) Limits() driver.Limits { return d.limits }

func (d *Device) Allocator() driver.Allocator { return (*allocator)(d) }

// Stats returns a snapshot of the call counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// CompleteNext finishes the oldest pending submission and reports whether there was one.
func (d *Device) CompleteNext() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pending) == 0 {
		return false
	}
	d.signal(d.pending[0])
	d.pending = d.pending[1:]
	return true
}

// CompleteAll finishes every pending submission.
func (d *Device) CompleteAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.completeAll()
}

func (d *Device) completeAll() {
	for _, f := range d.pending {
		d.signal(f)
	}
	d.pending = nil
}

func (d *Device) signal(f driver.Fence) {
	if _, ok := d.fences[f]; ok {
		d.fences[f] = true
	}
	d.cond.Broadcast()
}

// Pending is the number of submissions the GPU has not finished.
func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// LoseDevice makes every subsequent call that can fail report core.ErrDeviceLost.
func (d *Device) LoseDevice() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lost = true
	d.cond.Broadcast()
}

// FailNextAcquire makes the next n acquires fail with ErrAcquireFailed.
func (d *Device) FailNextAcquire(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failing += n
}

// FailNextBegin makes the next n BeginCommandBuffer calls fail with ErrInjected.
func (d *Device) FailNextBegin(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failBegin += n
}

// FailNextSwapchain makes the next n CreateSwapchain calls fail with ErrInjected.
func (d *Device) FailNextSwapchain(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failSwapchain += n
}

// FailFramebufferAfter lets n more CreateFramebuffer calls succeed and fails the one after with ErrInjected.
func (d *Device) FailFramebufferAfter(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failFramebuffer = n + 1
}

// injected counts down a FailNext counter and reports whether this call fails.
func injected(counter *int) bool {
	if *counter <= 0 {
		return false
	}
	*counter--
	return true
}

func (d *Device) BufferAlive(b driver.Buffer) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.buffers[b]
	return ok
}

func (d *Device) ImageAlive(img driver.Image) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.images[img]
	return ok
}

// DescriptorSetWrite returns what was last written to a binding of a set.
func (d *Device) DescriptorSetWrite(s driver.DescriptorSet, binding uint32) (driver.DescriptorWrite, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.sets[s]
	if !ok {
		return driver.DescriptorWrite{}, false
	}
	w, ok := st.writes[binding]
	return w, ok
}

// LiveObjects counts every native object still alive, swapchain images excluded.
func (d *Device) LiveObjects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.buffers) + len(d.samplers) + len(d.allocs) + len(d.layouts) +
		len(d.pools) + len(d.sets) + len(d.renderPasses) + len(d.framebuffers) +
		len(d.pipelines) + len(d.fences) + len(d.semaphores) + len(d.cmdbufs) + len(d.swapchains)
	for _, img := range d.images {
		if !img.swapchain {
			n++
		}
	}
	return n
}

func (d *Device) CreateBuffer(desc driver.BufferDesc) (driver.Buffer, driver.MemoryRequirements, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return 0, driver.MemoryRequirements{}, core.ErrDeviceLost
	}
	if desc.Size == 0 || desc.Size > d.limits.MaxBufferSize {
		return 0, driver.MemoryRequirements{}, fmt.Errorf("null: invalid buffer size %d", desc.Size)
	}
	h := driver.Buffer(d.handle())
	d.buffers[h] = &buffer{desc: desc}
	d.stats.BuffersCreated++
	return h, driver.MemoryRequirements{Size: desc.Size, Alignment: 256, TypeBits: 1}, nil
}

func (d *Device) BindBufferMemory(b driver.Buffer, a driver.Allocation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers[b]
	al, aok := d.allocs[a]
	if !ok || !aok {
		d.stats.InvalidHandles++
		return fmt.Errorf("null: bind of unknown buffer %d or allocation %d", b, a)
	}
	if uint64(len(al.data)) < buf.desc.Size {
		return fmt.Errorf("null: allocation of %d bytes too small for buffer of %d", len(al.data), buf.desc.Size)
	}
	buf.alloc = a
	return nil
}

func (d *Device) DestroyBuffer(b driver.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.buffers[b]; !ok {
		d.stats.InvalidHandles++
		return
	}
	delete(d.buffers, b)
	d.stats.BuffersDestroyed++
}

func (d *Device) CreateImage(desc driver.ImageDesc) (driver.Image, driver.MemoryRequirements, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return 0, driver.MemoryRequirements{}, core.ErrDeviceLost
	}
	if desc.Width == 0 || desc.Height == 0 || desc.Width > d.limits.MaxTextureSize || desc.Height > d.limits.MaxTextureSize {
		return 0, driver.MemoryRequirements{}, fmt.Errorf("null: invalid image size %dx%d", desc.Width, desc.Height)
	}
	h := driver.Image(d.handle())
	d.images[h] = &image{desc: desc}
	d.stats.ImagesCreated++
	size := uint64(desc.Width) * uint64(desc.Height) * uint64(max(desc.Format.BytesPerPixel(), 1)) * uint64(max(desc.Layers, 1))
	return h, driver.MemoryRequirements{Size: size, Alignment: 4096, TypeBits: 1}, nil
}

func (d *Device) BindImageMemory(img driver.Image, a driver.Allocation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	im, ok := d.images[img]
	if _, aok := d.allocs[a]; !ok || !aok {
		d.stats.InvalidHandles++
		return fmt.Errorf("null: bind of unknown image %d or allocation %d", img, a)
	}
	im.alloc = a
	return nil
}

func (d *Device) DestroyImage(img driver.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	im, ok := d.images[img]
	if !ok || im.swapchain {
		d.stats.InvalidHandles++
		return
	}
	delete(d.images, img)
	d.stats.ImagesDestroyed++
}

func (d *Device) CreateSampler(desc driver.SamplerDesc) (driver.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return 0, core.ErrDeviceLost
	}
	h := driver.Sampler(d.handle())
	d.samplers[h] = desc
	d.stats.SamplersCreated++
	return h, nil
}

func (d *Device) DestroySampler(s driver.Sampler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.samplers[s]; !ok {
		d.stats.InvalidHandles++
		return
	}
	delete(d.samplers, s)
	d.stats.SamplersDestroyed++
}

func (d *Device) CreateRenderPass(desc driver.RenderPassDesc) (driver.RenderPass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return 0, core.ErrDeviceLost
	}
	h := driver.RenderPass(d.handle())
	d.renderPasses[h] = desc
	d.stats.RenderPassesCreated++
	return h, nil
}

func (d *Device) DestroyRenderPass(rp driver.RenderPass) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.renderPasses[rp]; !ok {
		d.stats.InvalidHandles++
		return
	}
	delete(d.renderPasses, rp)
	d.stats.RenderPassesDestroyed++
}

func (d *Device) CreateFramebuffer(desc driver.FramebufferDesc) (driver.Framebuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return 0, core.ErrDeviceLost
	}
	if d.failFramebuffer > 0 {
		d.failFramebuffer--
		if d.failFramebuffer == 0 {
			return 0, ErrInjected
		}
	}
	if _, ok := d.renderPasses[desc.RenderPass]; !ok {
		d.stats.InvalidHandles++
		return 0, fmt.Errorf("null: framebuffer references unknown render pass %d", desc.RenderPass)
	}
	for _, a := range desc.Attachments {
		if _, ok := d.images[a]; !ok {
			d.stats.InvalidHandles++
			return 0, fmt.Errorf("null: framebuffer references unknown image %d", a)
		}
	}
	h := driver.Framebuffer(d.handle())
	d.framebuffers[h] = desc
	d.stats.FramebuffersCreated++
	return h, nil
}

func (d *Device) DestroyFramebuffer(fb driver.Framebuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.framebuffers[fb]; !ok {
		d.stats.InvalidHandles++
		return
	}
	delete(d.framebuffers, fb)
	d.stats.FramebuffersDestroyed++
}

func (d *Device) CreatePipeline(desc driver.PipelineDesc) (driver.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return 0, core.ErrDeviceLost
	}
	if _, ok := d.layouts[desc.Layout]; !ok {
		d.stats.InvalidHandles++
		return 0, fmt.Errorf("null: pipeline references unknown layout %d", desc.Layout)
	}
	if _, ok := d.renderPasses[desc.RenderPass]; !ok {
		d.stats.InvalidHandles++
		return 0, fmt.Errorf("null: pipeline references unknown render pass %d", desc.RenderPass)
	}
	h := driver.Pipeline(d.handle())
	d.pipelines[h] = desc
	d.stats.PipelinesCreated++
	return h, nil
}

func (d *Device) DestroyPipeline(p driver.Pipeline) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pipelines[p]; !ok {
		d.stats.InvalidHandles++
		return
	}
	delete(d.pipelines, p)
	d.stats.PipelinesDestroyed++
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.WaitIdleCalls++
	if d.lost {
		return core.ErrDeviceLost
	}
	d.completeAll()
	return nil
}

// Destroy logs leaked objects. It does not free them.
func (d *Device) Destroy() {
	if n := d.LiveObjects(); n > 0 {
		core.LogWarn("null device destroyed with %d live objects", n)
	}
}

func waitTimer(d *Device, timeout time.Duration) (done func()) {
	if timeout <= 0 {
		return func() {}
	}
	t := time.AfterFunc(timeout, func() {
		d.mu.Lock()
		d.cond.Broadcast()
		d.mu.Unlock()
	})
	return func() { t.Stop() }
}
