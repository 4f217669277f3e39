package renderer

import (
	"fmt"

	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
	"github.com/alpqr/qvk6-sub001/engine/renderer/metadata"
)

type Texture struct {
	resourceBase
	cfg   metadata.TextureConfig
	image driver.Image
	alloc driver.Allocation
	// dropped is set once the creator released a build other instances
	// still hold.
	dropped bool
}

func (r *Renderer) NewTexture(cfg metadata.TextureConfig) *Texture {
	if cfg.SampleCount == 0 {
		cfg.SampleCount = 1
	}
	t := &Texture{cfg: cfg}
	t.init(r, metadata.ResourceKindTexture, cfg.Name)
	return t
}

func (t *Texture) Config() metadata.TextureConfig { return t.cfg }

func (t *Texture) Size() (uint32, uint32) { return t.cfg.Width, t.cfg.Height }

func (t *Texture) SetSize(width, height uint32) {
	t.cfg.Width, t.cfg.Height = width, height
}

// Resize rebuilds the texture with a new size, bumping its generation.
func (t *Texture) Resize(width, height uint32) error {
	t.SetSize(width, height)
	return t.Build()
}

func (t *Texture) Native() driver.Image { return t.image }

func (t *Texture) Build() error {
	if t.dropped {
		return t.r.callerError(core.ErrResourceInUse, "rebuild of texture %q still held by other instances", t.name)
	}
	if err := t.rebuildable(t); err != nil {
		return err
	}
	r := t.r
	if t.cfg.Format == metadata.TextureFormatUnknown || t.cfg.Format.IsDepth() {
		return r.callerError(core.ErrInvalidConfig, "texture %q has unsupported format %d", t.name, t.cfg.Format)
	}
	if err := r.checkImageSize(t.name, t.cfg.Width, t.cfg.Height, t.cfg.SampleCount); err != nil {
		return err
	}
	sharable := t.cfg.Flags&metadata.TextureFlagSharable != 0
	if sharable && r.shared == nil {
		return r.callerError(core.ErrIncompatibleShare, "sharable texture %q on an instance without shared context", t.name)
	}
	layers := uint32(1)
	if t.cfg.Flags&metadata.TextureFlagCubeMap != 0 {
		layers = 6
	}
	img, alloc, err := r.createNativeImage(driver.ImageDesc{
		Width:        t.cfg.Width,
		Height:       t.cfg.Height,
		Format:       t.cfg.Format,
		MipLevels:    t.cfg.MipLevels(),
		Layers:       layers,
		SampleCount:  t.cfg.SampleCount,
		Sampled:      true,
		RenderTarget: t.cfg.Flags&metadata.TextureFlagRenderTarget != 0,
		TransferSrc:  t.cfg.Flags&metadata.TextureFlagUsedAsTransferSource != 0,
	})
	if err != nil {
		return r.checkDevice(fmt.Errorf("failed to create texture %q: %w", t.name, err))
	}
	t.image, t.alloc = img, alloc
	if sharable {
		t.shared = r.shared.register(t.id, t.sharedDestroyed)
	}
	t.markBuilt(t)
	return nil
}

func (r *Renderer) checkImageSize(name string, width, height, samples uint32) error {
	if width == 0 || height == 0 {
		return r.callerError(core.ErrInvalidConfig, "%q has empty size %dx%d", name, width, height)
	}
	if width > r.limits.MaxTextureSize || height > r.limits.MaxTextureSize {
		return r.callerError(core.ErrResourceLimit, "%q size %dx%d exceeds %d", name, width, height, r.limits.MaxTextureSize)
	}
	if samples > r.limits.MaxSampleCount {
		return r.callerError(core.ErrResourceLimit, "%q sample count %d exceeds %d", name, samples, r.limits.MaxSampleCount)
	}
	return nil
}

func (r *Renderer) createNativeImage(desc driver.ImageDesc) (driver.Image, driver.Allocation, error) {
	img, req, err := r.dev.CreateImage(desc)
	if err != nil {
		return 0, 0, err
	}
	alloc, err := r.alloc.Allocate(req, driver.MemoryUsageGPUOnly)
	if err != nil {
		r.dev.DestroyImage(img)
		return 0, 0, err
	}
	if err := r.dev.BindImageMemory(img, alloc); err != nil {
		r.dev.DestroyImage(img)
		r.alloc.Free(alloc)
		return 0, 0, err
	}
	return img, alloc, nil
}

// Release queues the native image. When other instances still hold the
// current build, only the creator's reference is dropped: the texture stays
// built until the last holder lets go and becomes unbuilt then.
func (t *Texture) Release() error {
	if t.dropped {
		return t.r.callerError(core.ErrAlreadyReleased, "release of texture %q held by other instances", t.name)
	}
	if t.shared != nil && t.IsBuilt() && t.r.shared.refCount(t.shared) > 1 {
		t.dropped = true
		t.r.dropShared(&t.resourceBase, t, &imageRelease{image: t.image, alloc: t.alloc})
		return nil
	}
	proceed, err := t.beginRelease(t)
	if !proceed {
		return err
	}
	p := &imageRelease{image: t.image, alloc: t.alloc}
	t.image, t.alloc = 0, 0
	return t.r.queueOwned(&t.resourceBase, p)
}

func (t *Texture) sharedDestroyed(rec *sharedRecord) {
	if t.shared != rec || !t.dropped {
		return
	}
	t.shared = nil
	t.dropped = false
	t.image, t.alloc = 0, 0
	t.state = stateUnbuilt
}
