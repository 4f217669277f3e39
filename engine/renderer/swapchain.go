package renderer

import (
	"fmt"

	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
	"github.com/alpqr/qvk6-sub001/engine/renderer/metadata"
)

// SwapChain presents into a surface. It must be rebuilt whenever the
// surface size differs from the size it was built with.
type SwapChain struct {
	resourceBase
	surface      driver.Surface
	depthStencil *RenderBuffer
	ownsDepth    bool
	rp           *RenderPassDescriptor
	ownsPass     bool

	native       driver.Swapchain
	format       metadata.TextureFormat
	images       []driver.Image
	framebuffers []driver.Framebuffer
	// imagesInFlight holds the serial of the frame that last rendered to
	// each image, 0 if none.
	imagesInFlight []uint64
	// Semaphores are per frame slot: an image-available semaphore must not
	// be signaled again while an earlier wait on it may be outstanding.
	imageAvailable [core.MaxFramesInFlight]driver.Semaphore
	renderFinished [core.MaxFramesInFlight]driver.Semaphore
	width          uint32
	height         uint32
	currentImage   uint32
	// stale is set when a frame was abandoned after acquiring an image.
	stale bool
}

func (r *Renderer) NewSwapChain(name string, surface driver.Surface) *SwapChain {
	sc := &SwapChain{surface: surface}
	sc.init(r, metadata.ResourceKindSwapChain, name)
	return sc
}

// SetDepthStencil supplies the depth/stencil buffer. Without one the
// swapchain creates and resizes its own.
func (sc *SwapChain) SetDepthStencil(rb *RenderBuffer) { sc.depthStencil, sc.ownsDepth = rb, false }

func (sc *SwapChain) DepthStencil() *RenderBuffer { return sc.depthStencil }

func (sc *SwapChain) SetRenderPassDescriptor(rp *RenderPassDescriptor) {
	sc.rp, sc.ownsPass = rp, false
}

func (sc *SwapChain) RenderPassDescriptor() *RenderPassDescriptor { return sc.rp }

func (sc *SwapChain) SurfacePixelSize() (uint32, uint32) { return sc.surface.PixelSize() }

// BuiltSize is the size of the presentable images.
func (sc *SwapChain) BuiltSize() (uint32, uint32) { return sc.width, sc.height }

func (sc *SwapChain) Format() metadata.TextureFormat { return sc.format }

func (sc *SwapChain) CurrentImageIndex() uint32 { return sc.currentImage }

func (sc *SwapChain) ImageCount() int { return len(sc.images) }

// IsOutOfDate reports whether the surface changed size since the last
// build, or a frame was abandoned while holding an acquired image.
func (sc *SwapChain) IsOutOfDate() bool {
	if sc.stale {
		return true
	}
	w, h := sc.surface.PixelSize()
	return w != sc.width || h != sc.height
}

func (sc *SwapChain) passDesc() driver.RenderPassDesc {
	return driver.RenderPassDesc{
		Colors: []driver.AttachmentDesc{{Format: sc.format, SampleCount: 1, Present: true}},
		Depth:  driver.AttachmentDesc{Format: metadata.TextureFormatD24S8, SampleCount: 1},
	}
}

// NewCompatibleRenderPassDescriptor returns a descriptor for pipelines
// rendering to the swapchain. The swapchain must be built.
func (sc *SwapChain) NewCompatibleRenderPassDescriptor() (*RenderPassDescriptor, error) {
	if !sc.IsBuilt() {
		return nil, sc.r.callerError(core.ErrNotBuilt, "render pass descriptor of swapchain %q", sc.name)
	}
	return sc.r.newRenderPassDescriptor(sc.name+" pass", sc.passDesc())
}

// Resize rebuilds the swapchain for the current surface size.
func (sc *SwapChain) Resize() error { return sc.Build() }

// Build creates or rebuilds the presentable images, the depth/stencil
// buffer and one framebuffer per image. A rebuild waits for the device to go idle.
func (sc *SwapChain) Build() error {
	r := sc.r
	if r.inFrame() {
		return r.callerError(core.ErrInvalidState, "swapchain %q rebuilt inside a frame", sc.name)
	}
	if r.deviceLost {
		return core.ErrDeviceLost
	}
	w, h := sc.surface.PixelSize()
	if w == 0 || h == 0 {
		return fmt.Errorf("%w: surface of %q has zero size", core.ErrSwapchainOutOfDate, sc.name)
	}

	var old driver.Swapchain
	if sc.IsBuilt() {
		if err := r.waitIdle(); err != nil {
			return err
		}
		for _, fb := range sc.framebuffers {
			r.dev.DestroyFramebuffer(fb)
		}
		sc.framebuffers = nil
		old = sc.native
	}
	for i := 0; i < r.framesInFlight; i++ {
		for _, sem := range []*driver.Semaphore{&sc.imageAvailable[i], &sc.renderFinished[i]} {
			if *sem != 0 {
				continue
			}
			created, err := r.dev.CreateSemaphore()
			if err != nil {
				sc.abandon()
				return r.checkDevice(fmt.Errorf("failed to create semaphore: %w", err))
			}
			*sem = created
		}
	}

	native, err := r.dev.CreateSwapchain(driver.SwapchainDesc{Surface: sc.surface, Width: w, Height: h, Old: old})
	if old != 0 {
		r.dev.DestroySwapchain(old)
		sc.native = 0
	}
	if err != nil {
		sc.abandon()
		return r.checkDevice(fmt.Errorf("failed to create swapchain %q: %w", sc.name, err))
	}
	sc.native = native
	sc.images = r.dev.SwapchainImages(native)
	sc.format = r.dev.SwapchainFormat(native)
	sc.width, sc.height = w, h

	if err := sc.buildAttachments(); err != nil {
		sc.abandon()
		return err
	}
	sc.imagesInFlight = make([]uint64, len(sc.images))
	sc.currentImage = 0
	sc.stale = false
	sc.markBuilt(sc)
	r.log.Debug("swapchain built", "name", sc.name, "width", w, "height", h, "images", len(sc.images))
	return nil
}

// abandon undoes a failed build. The device is idle or the native objects
// were never used, so they are destroyed right away; owned attachments go
// through the release queue.
func (sc *SwapChain) abandon() {
	r := sc.r
	for _, fb := range sc.framebuffers {
		r.dev.DestroyFramebuffer(fb)
	}
	if sc.native != 0 {
		r.dev.DestroySwapchain(sc.native)
	}
	for i := range sc.imageAvailable {
		for _, sem := range []driver.Semaphore{sc.imageAvailable[i], sc.renderFinished[i]} {
			if sem != 0 {
				r.dev.DestroySemaphore(sem)
			}
		}
	}
	sc.native, sc.framebuffers, sc.images, sc.imagesInFlight = 0, nil, nil, nil
	sc.imageAvailable = [core.MaxFramesInFlight]driver.Semaphore{}
	sc.renderFinished = [core.MaxFramesInFlight]driver.Semaphore{}
	sc.width, sc.height = 0, 0
	sc.stale = false
	if sc.ownsDepth && sc.depthStencil != nil {
		if err := sc.depthStencil.Release(); err != nil {
			r.log.Warn("failed to release depth buffer", "swapchain", sc.name, "err", err)
		}
		sc.depthStencil, sc.ownsDepth = nil, false
	}
	if sc.ownsPass && sc.rp != nil {
		if err := sc.rp.Release(); err != nil {
			r.log.Warn("failed to release render pass", "swapchain", sc.name, "err", err)
		}
		sc.rp, sc.ownsPass = nil, false
	}
	if sc.state == stateBuilt {
		sc.state = stateUnbuilt
	}
	r.untrack(sc)
}

func (sc *SwapChain) buildAttachments() error {
	r := sc.r
	if sc.depthStencil == nil {
		sc.depthStencil = r.NewRenderBuffer(metadata.RenderBufferConfig{
			Name: sc.name + " depth", Type: metadata.RenderBufferTypeDepthStencil,
		})
		sc.ownsDepth = true
	}
	if dw, dh := sc.depthStencil.Size(); dw != sc.width || dh != sc.height || !sc.depthStencil.IsBuilt() {
		if err := sc.depthStencil.Resize(sc.width, sc.height); err != nil {
			return err
		}
	}
	if sc.rp == nil {
		rp, err := r.newRenderPassDescriptor(sc.name+" pass", sc.passDesc())
		if err != nil {
			return err
		}
		sc.rp, sc.ownsPass = rp, true
	}
	for _, img := range sc.images {
		fb, err := r.dev.CreateFramebuffer(driver.FramebufferDesc{
			RenderPass:  sc.rp.native,
			Attachments: []driver.Image{img, sc.depthStencil.image},
			Width:       sc.width,
			Height:      sc.height,
		})
		if err != nil {
			return r.checkDevice(fmt.Errorf("failed to create framebuffer for swapchain %q: %w", sc.name, err))
		}
		sc.framebuffers = append(sc.framebuffers, fb)
	}
	return nil
}

// CurrentFrameRenderTarget renders into the image acquired by BeginFrame.
func (sc *SwapChain) CurrentFrameRenderTarget() RenderTarget { return swapchainTarget{sc} }

type swapchainTarget struct{ sc *SwapChain }

func (t swapchainTarget) PixelSize() (uint32, uint32) { return t.sc.width, t.sc.height }

func (t swapchainTarget) RenderPassDescriptor() *RenderPassDescriptor { return t.sc.rp }

func (t swapchainTarget) renderPassBegin(r *Renderer) (driver.RenderPassBegin, error) {
	sc := t.sc
	if r.frameSwapchain != sc {
		return driver.RenderPassBegin{}, r.callerError(core.ErrInvalidState, "swapchain %q is not being rendered this frame", sc.name)
	}
	sc.touch(r)
	sc.depthStencil.touch(r)
	sc.rp.touch(r)
	return driver.RenderPassBegin{
		RenderPass:  sc.rp.native,
		Framebuffer: sc.framebuffers[sc.currentImage],
		Width:       sc.width,
		Height:      sc.height,
	}, nil
}

func (sc *SwapChain) Release() error {
	proceed, err := sc.beginRelease(sc)
	if !proceed {
		return err
	}
	p := &swapchainRelease{swapchain: sc.native, framebuffers: sc.framebuffers}
	for i := range sc.imageAvailable {
		if sc.imageAvailable[i] != 0 {
			p.semaphores = append(p.semaphores, sc.imageAvailable[i])
		}
		if sc.renderFinished[i] != 0 {
			p.semaphores = append(p.semaphores, sc.renderFinished[i])
		}
	}
	sc.native, sc.framebuffers, sc.images, sc.imagesInFlight = 0, nil, nil, nil
	sc.imageAvailable = [core.MaxFramesInFlight]driver.Semaphore{}
	sc.renderFinished = [core.MaxFramesInFlight]driver.Semaphore{}
	sc.width, sc.height = 0, 0
	sc.stale = false
	if err := sc.r.queueOwned(&sc.resourceBase, p); err != nil {
		return err
	}
	if sc.ownsDepth && sc.depthStencil != nil {
		if err := sc.depthStencil.Release(); err != nil {
			return err
		}
		sc.depthStencil, sc.ownsDepth = nil, false
	}
	if sc.ownsPass && sc.rp != nil {
		if err := sc.rp.Release(); err != nil {
			return err
		}
		sc.rp, sc.ownsPass = nil, false
	}
	return nil
}
