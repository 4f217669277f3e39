package renderer

import (
	"errors"

	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
	"github.com/alpqr/qvk6-sub001/engine/renderer/metadata"
)

// releasePayload holds exactly the native objects needed to destroy one
// resource. There is one implementation per resource kind.
type releasePayload interface {
	destroy(r *Renderer)
	keys() []releaseKey
}

// releaseKey identifies a native handle in the queue. Handles of one kind
// are unique per device.
type releaseKey struct {
	kind   metadata.ResourceKind
	handle driver.Handle
}

type releaseEntry struct {
	// frame is the serial the GPU must complete before the payload may be destroyed.
	frame   uint64
	payload releasePayload
	owner   *resourceBase
}

type releaseQueue struct {
	entries []releaseEntry
	queued  map[releaseKey]struct{}
}

func newReleaseQueue() releaseQueue {
	return releaseQueue{queued: make(map[releaseKey]struct{})}
}

// queueRelease tags the payload with the current frame serial. Any frame up
// to and including the current one may still reference the handles.
func (r *Renderer) queueRelease(owner *resourceBase, p releasePayload) error {
	keys := p.keys()
	for _, k := range keys {
		if _, dup := r.releases.queued[k]; dup {
			return r.callerError(core.ErrAlreadyReleased, "native %s handle %d queued twice", k.kind, k.handle)
		}
	}
	for _, k := range keys {
		r.releases.queued[k] = struct{}{}
	}
	if owner != nil {
		owner.pending++
	}
	r.releases.entries = append(r.releases.entries, releaseEntry{frame: r.frameSerial, payload: p, owner: owner})
	return nil
}

// executeDeferredReleases destroys every entry whose frame the GPU has
// completed. Forced mode waits for the device to go idle and destroys all.
func (r *Renderer) executeDeferredReleases(forced bool) error {
	var err error
	if forced {
		err = r.waitIdle()
	}
	keep := r.releases.entries[:0]
	for _, e := range r.releases.entries {
		if !forced && e.frame > r.completedSerial {
			keep = append(keep, e)
			continue
		}
		e.payload.destroy(r)
		for _, k := range e.payload.keys() {
			delete(r.releases.queued, k)
		}
		if e.owner != nil {
			e.owner.reclaimed()
		}
	}
	for i := len(keep); i < len(r.releases.entries); i++ {
		r.releases.entries[i] = releaseEntry{}
	}
	r.releases.entries = keep
	return err
}

// waitIdle blocks until the GPU finished everything and records that.
func (r *Renderer) waitIdle() error {
	err := r.checkDevice(r.dev.WaitIdle())
	if err != nil && !errors.Is(err, core.ErrDeviceLost) {
		return err
	}
	r.completedSerial = r.submittedSerial
	for i := range r.slots {
		r.slots[i].serial = 0
	}
	return err
}

type bufferRelease struct {
	buffers []driver.Buffer
	allocs  []driver.Allocation
}

func (p *bufferRelease) destroy(r *Renderer) {
	for i, b := range p.buffers {
		r.dev.DestroyBuffer(b)
		r.alloc.Free(p.allocs[i])
	}
}

func (p *bufferRelease) keys() []releaseKey {
	keys := make([]releaseKey, len(p.buffers))
	for i, b := range p.buffers {
		keys[i] = releaseKey{metadata.ResourceKindBuffer, driver.Handle(b)}
	}
	return keys
}

// imageRelease covers textures and render buffers.
type imageRelease struct {
	image driver.Image
	alloc driver.Allocation
}

func (p *imageRelease) destroy(r *Renderer) {
	r.dev.DestroyImage(p.image)
	r.alloc.Free(p.alloc)
}

func (p *imageRelease) keys() []releaseKey {
	return []releaseKey{{metadata.ResourceKindTexture, driver.Handle(p.image)}}
}

type samplerRelease struct {
	sampler driver.Sampler
}

func (p *samplerRelease) destroy(r *Renderer) { r.dev.DestroySampler(p.sampler) }

func (p *samplerRelease) keys() []releaseKey {
	return []releaseKey{{metadata.ResourceKindSampler, driver.Handle(p.sampler)}}
}

type renderPassRelease struct {
	renderPass driver.RenderPass
}

func (p *renderPassRelease) destroy(r *Renderer) { r.dev.DestroyRenderPass(p.renderPass) }

func (p *renderPassRelease) keys() []releaseKey {
	return []releaseKey{{metadata.ResourceKindRenderPassDescriptor, driver.Handle(p.renderPass)}}
}

type renderTargetRelease struct {
	framebuffer driver.Framebuffer
}

func (p *renderTargetRelease) destroy(r *Renderer) { r.dev.DestroyFramebuffer(p.framebuffer) }

func (p *renderTargetRelease) keys() []releaseKey {
	return []releaseKey{{metadata.ResourceKindTextureRenderTarget, driver.Handle(p.framebuffer)}}
}

type pipelineRelease struct {
	pipeline driver.Pipeline
}

func (p *pipelineRelease) destroy(r *Renderer) { r.dev.DestroyPipeline(p.pipeline) }

func (p *pipelineRelease) keys() []releaseKey {
	return []releaseKey{{metadata.ResourceKindGraphicsPipeline, driver.Handle(p.pipeline)}}
}

type bindingTableRelease struct {
	layout   driver.DescriptorSetLayout
	sets     []pooledSet
	ubos     uint32
	samplers uint32
}

func (p *bindingTableRelease) destroy(r *Renderer) {
	for _, s := range p.sets {
		r.pools.free(r.dev, s, p.ubos, p.samplers)
	}
	r.dev.DestroyDescriptorSetLayout(p.layout)
}

func (p *bindingTableRelease) keys() []releaseKey {
	return []releaseKey{{metadata.ResourceKindBindingTable, driver.Handle(p.layout)}}
}

type swapchainRelease struct {
	swapchain    driver.Swapchain
	framebuffers []driver.Framebuffer
	semaphores   []driver.Semaphore
}

func (p *swapchainRelease) destroy(r *Renderer) {
	for _, fb := range p.framebuffers {
		r.dev.DestroyFramebuffer(fb)
	}
	if p.swapchain != 0 {
		r.dev.DestroySwapchain(p.swapchain)
	}
	for _, s := range p.semaphores {
		r.dev.DestroySemaphore(s)
	}
}

func (p *swapchainRelease) keys() []releaseKey {
	keys := []releaseKey{{metadata.ResourceKindSwapChain, driver.Handle(p.swapchain)}}
	for _, fb := range p.framebuffers {
		keys = append(keys, releaseKey{metadata.ResourceKindTextureRenderTarget, driver.Handle(fb)})
	}
	return keys
}
