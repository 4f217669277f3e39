package renderer

import (
	"fmt"

	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
	"github.com/alpqr/qvk6-sub001/engine/renderer/metadata"
)

// RenderBuffer is an attachment that is rendered to but never sampled.
type RenderBuffer struct {
	resourceBase
	cfg   metadata.RenderBufferConfig
	image driver.Image
	alloc driver.Allocation
}

func (r *Renderer) NewRenderBuffer(cfg metadata.RenderBufferConfig) *RenderBuffer {
	if cfg.SampleCount == 0 {
		cfg.SampleCount = 1
	}
	if cfg.Type == metadata.RenderBufferTypeDepthStencil {
		cfg.Format = metadata.TextureFormatD24S8
	}
	rb := &RenderBuffer{cfg: cfg}
	rb.init(r, metadata.ResourceKindRenderBuffer, cfg.Name)
	return rb
}

func (rb *RenderBuffer) Config() metadata.RenderBufferConfig { return rb.cfg }

func (rb *RenderBuffer) Size() (uint32, uint32) { return rb.cfg.Width, rb.cfg.Height }

func (rb *RenderBuffer) Format() metadata.TextureFormat { return rb.cfg.Format }

func (rb *RenderBuffer) Native() driver.Image { return rb.image }

// Resize rebuilds the render buffer with a new size.
func (rb *RenderBuffer) Resize(width, height uint32) error {
	rb.cfg.Width, rb.cfg.Height = width, height
	return rb.Build()
}

func (rb *RenderBuffer) Build() error {
	if err := rb.rebuildable(rb); err != nil {
		return err
	}
	r := rb.r
	if rb.cfg.Type == metadata.RenderBufferTypeColor && (rb.cfg.Format == metadata.TextureFormatUnknown || rb.cfg.Format.IsDepth()) {
		return r.callerError(core.ErrInvalidConfig, "color renderbuffer %q needs a color format", rb.name)
	}
	if err := r.checkImageSize(rb.name, rb.cfg.Width, rb.cfg.Height, rb.cfg.SampleCount); err != nil {
		return err
	}
	img, alloc, err := r.createNativeImage(driver.ImageDesc{
		Width:        rb.cfg.Width,
		Height:       rb.cfg.Height,
		Format:       rb.cfg.Format,
		MipLevels:    1,
		Layers:       1,
		SampleCount:  rb.cfg.SampleCount,
		RenderTarget: true,
	})
	if err != nil {
		return r.checkDevice(fmt.Errorf("failed to create renderbuffer %q: %w", rb.name, err))
	}
	rb.image, rb.alloc = img, alloc
	rb.markBuilt(rb)
	return nil
}

func (rb *RenderBuffer) Release() error {
	proceed, err := rb.beginRelease(rb)
	if !proceed {
		return err
	}
	p := &imageRelease{image: rb.image, alloc: rb.alloc}
	rb.image, rb.alloc = 0, 0
	return rb.r.queueOwned(&rb.resourceBase, p)
}
