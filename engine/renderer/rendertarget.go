package renderer

import (
	"fmt"

	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
	"github.com/alpqr/qvk6-sub001/engine/renderer/metadata"
)

// RenderTarget is anything a pass can render into.
type RenderTarget interface {
	PixelSize() (uint32, uint32)
	RenderPassDescriptor() *RenderPassDescriptor
	renderPassBegin(r *Renderer) (driver.RenderPassBegin, error)
}

// RenderPassDescriptor describes the attachment formats a pipeline renders
// to. Pipelines built against one descriptor work with every compatible target.
type RenderPassDescriptor struct {
	resourceBase
	desc   driver.RenderPassDesc
	native driver.RenderPass
}

func (r *Renderer) newRenderPassDescriptor(name string, desc driver.RenderPassDesc) (*RenderPassDescriptor, error) {
	rp := &RenderPassDescriptor{desc: desc}
	rp.init(r, metadata.ResourceKindRenderPassDescriptor, name)
	if err := rp.Build(); err != nil {
		return nil, err
	}
	return rp, nil
}

func (rp *RenderPassDescriptor) Desc() driver.RenderPassDesc { return rp.desc }

func (rp *RenderPassDescriptor) Native() driver.RenderPass { return rp.native }

// IsCompatible reports whether both descriptors have the same attachment formats and sample counts.
func (rp *RenderPassDescriptor) IsCompatible(other *RenderPassDescriptor) bool {
	a, b := rp.desc, other.desc
	if len(a.Colors) != len(b.Colors) {
		return false
	}
	for i := range a.Colors {
		if a.Colors[i].Format != b.Colors[i].Format || a.Colors[i].SampleCount != b.Colors[i].SampleCount {
			return false
		}
	}
	return a.Depth.Format == b.Depth.Format && a.Depth.SampleCount == b.Depth.SampleCount
}

func (rp *RenderPassDescriptor) Build() error {
	if err := rp.rebuildable(rp); err != nil {
		return err
	}
	h, err := rp.r.dev.CreateRenderPass(rp.desc)
	if err != nil {
		return rp.r.checkDevice(fmt.Errorf("failed to create render pass %q: %w", rp.name, err))
	}
	rp.native = h
	rp.markBuilt(rp)
	return nil
}

func (rp *RenderPassDescriptor) Release() error {
	proceed, err := rp.beginRelease(rp)
	if !proceed {
		return err
	}
	p := &renderPassRelease{renderPass: rp.native}
	rp.native = 0
	return rp.r.queueOwned(&rp.resourceBase, p)
}

type TextureRenderTargetConfig struct {
	Name         string
	Colors       []*Texture
	DepthStencil *RenderBuffer
}

// TextureRenderTarget renders into textures. It rebuilds itself at the
// start of a pass when an attachment was rebuilt since.
type TextureRenderTarget struct {
	resourceBase
	cfg         TextureRenderTargetConfig
	rp          *RenderPassDescriptor
	framebuffer driver.Framebuffer
	width       uint32
	height      uint32
	attachGens  []uint32
}

func (r *Renderer) NewTextureRenderTarget(cfg TextureRenderTargetConfig) *TextureRenderTarget {
	rt := &TextureRenderTarget{cfg: cfg}
	rt.init(r, metadata.ResourceKindTextureRenderTarget, cfg.Name)
	return rt
}

func (rt *TextureRenderTarget) passDesc() driver.RenderPassDesc {
	var desc driver.RenderPassDesc
	for _, c := range rt.cfg.Colors {
		desc.Colors = append(desc.Colors, driver.AttachmentDesc{Format: c.cfg.Format, SampleCount: c.cfg.SampleCount})
	}
	if ds := rt.cfg.DepthStencil; ds != nil {
		desc.Depth = driver.AttachmentDesc{Format: ds.cfg.Format, SampleCount: ds.cfg.SampleCount}
	}
	return desc
}

// NewCompatibleRenderPassDescriptor builds a descriptor matching the attachments.
func (rt *TextureRenderTarget) NewCompatibleRenderPassDescriptor() (*RenderPassDescriptor, error) {
	if len(rt.cfg.Colors) == 0 {
		return nil, rt.r.callerError(core.ErrInvalidConfig, "render target %q has no color attachment", rt.name)
	}
	return rt.r.newRenderPassDescriptor(rt.name+" pass", rt.passDesc())
}

func (rt *TextureRenderTarget) SetRenderPassDescriptor(rp *RenderPassDescriptor) { rt.rp = rp }

func (rt *TextureRenderTarget) RenderPassDescriptor() *RenderPassDescriptor { return rt.rp }

func (rt *TextureRenderTarget) PixelSize() (uint32, uint32) { return rt.width, rt.height }

func (rt *TextureRenderTarget) attachments() []Resource {
	res := make([]Resource, 0, len(rt.cfg.Colors)+1)
	for _, c := range rt.cfg.Colors {
		res = append(res, c)
	}
	if rt.cfg.DepthStencil != nil {
		res = append(res, rt.cfg.DepthStencil)
	}
	return res
}

// IsStale reports whether an attachment was rebuilt after the target.
func (rt *TextureRenderTarget) IsStale() bool {
	atts := rt.attachments()
	if len(atts) != len(rt.attachGens) {
		return true
	}
	for i, a := range atts {
		if a.Generation() != rt.attachGens[i] {
			return true
		}
	}
	return false
}

func (rt *TextureRenderTarget) Build() error {
	if err := rt.rebuildable(rt); err != nil {
		return err
	}
	r := rt.r
	if len(rt.cfg.Colors) == 0 {
		return r.callerError(core.ErrInvalidConfig, "render target %q has no color attachment", rt.name)
	}
	if rt.rp == nil || !rt.rp.IsBuilt() {
		return r.callerError(core.ErrNotBuilt, "render pass descriptor of %q", rt.name)
	}
	var views []driver.Image
	w, h := rt.cfg.Colors[0].Size()
	for _, c := range rt.cfg.Colors {
		if !c.IsBuilt() {
			return r.callerError(core.ErrNotBuilt, "color attachment %q of %q", c.name, rt.name)
		}
		if c.cfg.Flags&metadata.TextureFlagRenderTarget == 0 {
			return r.callerError(core.ErrInvalidConfig, "texture %q lacks the render target flag", c.name)
		}
		if cw, ch := c.Size(); cw != w || ch != h {
			return r.callerError(core.ErrInvalidConfig, "attachment %q is %dx%d, expected %dx%d", c.name, cw, ch, w, h)
		}
		views = append(views, c.image)
	}
	if ds := rt.cfg.DepthStencil; ds != nil {
		if !ds.IsBuilt() {
			return r.callerError(core.ErrNotBuilt, "depth attachment %q of %q", ds.name, rt.name)
		}
		if dw, dh := ds.Size(); dw != w || dh != h {
			return r.callerError(core.ErrInvalidConfig, "depth attachment %q is %dx%d, expected %dx%d", ds.name, dw, dh, w, h)
		}
		views = append(views, ds.image)
	}
	if want := rt.passDesc(); !rt.rp.IsCompatible(&RenderPassDescriptor{desc: want}) {
		return r.callerError(core.ErrInvalidConfig, "render pass descriptor of %q does not match its attachments", rt.name)
	}

	fb, err := r.dev.CreateFramebuffer(driver.FramebufferDesc{RenderPass: rt.rp.native, Attachments: views, Width: w, Height: h})
	if err != nil {
		return r.checkDevice(fmt.Errorf("failed to create framebuffer for %q: %w", rt.name, err))
	}
	rt.framebuffer = fb
	rt.width, rt.height = w, h
	rt.attachGens = rt.attachGens[:0]
	for _, a := range rt.attachments() {
		rt.attachGens = append(rt.attachGens, a.Generation())
	}
	rt.markBuilt(rt)
	return nil
}

func (rt *TextureRenderTarget) renderPassBegin(r *Renderer) (driver.RenderPassBegin, error) {
	if !rt.IsBuilt() || rt.IsStale() {
		if err := rt.Build(); err != nil {
			return driver.RenderPassBegin{}, err
		}
	}
	rt.touch(r)
	rt.rp.touch(r)
	for _, a := range rt.attachments() {
		a.base().touch(r)
	}
	return driver.RenderPassBegin{RenderPass: rt.rp.native, Framebuffer: rt.framebuffer, Width: rt.width, Height: rt.height}, nil
}

func (rt *TextureRenderTarget) Release() error {
	proceed, err := rt.beginRelease(rt)
	if !proceed {
		return err
	}
	p := &renderTargetRelease{framebuffer: rt.framebuffer}
	rt.framebuffer = 0
	return rt.r.queueOwned(&rt.resourceBase, p)
}
