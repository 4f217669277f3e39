package renderer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/renderer/metadata"
	"github.com/alpqr/qvk6-sub001/engine/renderer/null"
)

func newSharedPair(t *testing.T) (*Renderer, *Renderer, *SharedContext, *null.Device) {
	t.Helper()
	dev := null.New()
	ctx := NewSharedContext(dev)
	a, err := New(nil, Options{Config: testConfig(), Shared: ctx})
	require.NoError(t, err)
	b, err := New(dev, Options{Config: testConfig(), Shared: ctx})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = a.Destroy()
		_ = b.Destroy()
	})
	return a, b, ctx, dev
}

func newSharableTexture(t *testing.T, r *Renderer) *Texture {
	t.Helper()
	tex := r.NewTexture(metadata.TextureConfig{
		Name: "shared", Width: 32, Height: 32, Format: metadata.TextureFormatRGBA8,
		Flags: metadata.TextureFlagSharable,
	})
	require.NoError(t, tex.Build())
	return tex
}

func TestSharedTextureOutlivesCreator(t *testing.T) {
	a, b, ctx, dev := newSharedPair(t)
	tex := newSharableTexture(t, a)
	require.NoError(t, b.Share(tex))
	assert.Equal(t, 2, ctx.RefCount(tex))
	img := tex.Native()

	require.NoError(t, tex.Release())
	require.NoError(t, a.Finish())
	assert.True(t, dev.ImageAlive(img))
	assert.True(t, tex.IsBuilt())
	assert.Equal(t, 1, ctx.RefCount(tex))
	assert.ErrorIs(t, tex.Release(), core.ErrAlreadyReleased)
	assert.ErrorIs(t, tex.Build(), core.ErrResourceInUse)

	// The holder keeps drawing with the texture.
	s := newDrawSetup(t, b)
	sampler := b.NewSampler(metadata.SamplerConfig{Name: "shared sampler", MagFilter: metadata.FilterLinear})
	require.NoError(t, sampler.Build())
	table := b.NewBindingTable("textured",
		UniformBufferBinding(0, metadata.ShaderStageVertex, s.ubuf, 0, 0),
		SampledTextureBinding(1, metadata.ShaderStageFragment, tex, sampler))
	require.NoError(t, table.Build())
	rp := s.pipeline.rp
	s.table = table
	s.pipeline = b.NewGraphicsPipeline(metadata.GraphicsPipelineConfig{Name: "textured"})
	s.pipeline.SetShaderStages(testShaders(true, 1)...)
	s.pipeline.SetBindingTableLayout(table)
	s.pipeline.SetRenderPassDescriptor(rp)
	require.NoError(t, s.pipeline.Build())
	s.drawFrame(t, b)
	w, ok := dev.DescriptorSetWrite(table.NativeSet(0), 1)
	require.True(t, ok)
	assert.Equal(t, img, w.Image)

	require.NoError(t, b.Unshare(tex))
	assert.True(t, dev.ImageAlive(img))
	require.NoError(t, b.Finish())
	assert.False(t, dev.ImageAlive(img))
	assert.False(t, tex.IsBuilt())
	assert.Zero(t, ctx.RefCount(tex))

	// Once every holder let go the creator owns an ordinary unbuilt texture.
	assert.NoError(t, tex.Release())
	require.NoError(t, tex.Build())
	assert.Equal(t, 1, ctx.RefCount(tex))
	requireNoMisuse(t, dev)
}

func TestSharedTextureReleasedByLastHolder(t *testing.T) {
	a, b, _, dev := newSharedPair(t)
	tex := newSharableTexture(t, a)
	require.NoError(t, b.Share(tex))
	img := tex.Native()

	require.NoError(t, b.Unshare(tex))
	require.NoError(t, b.Finish())
	assert.True(t, dev.ImageAlive(img))

	require.NoError(t, tex.Release())
	require.NoError(t, a.Finish())
	assert.False(t, dev.ImageAlive(img))
}

func TestSharedTeardownDropsHeldReferences(t *testing.T) {
	a, b, _, dev := newSharedPair(t)
	tex := newSharableTexture(t, a)
	require.NoError(t, b.Share(tex))
	img := tex.Native()

	require.NoError(t, a.Destroy())
	assert.True(t, dev.ImageAlive(img))
	require.NoError(t, b.Destroy())
	assert.False(t, dev.ImageAlive(img))
	assert.Zero(t, dev.LiveObjects())
}

func TestShareRejections(t *testing.T) {
	a, b, _, _ := newSharedPair(t)
	tex := newSharableTexture(t, a)

	assert.ErrorIs(t, a.Share(tex), core.ErrIncompatibleShare, "creator")
	assert.ErrorIs(t, b.Unshare(tex), core.ErrIncompatibleShare, "not held")
	require.NoError(t, b.Share(tex))
	assert.ErrorIs(t, b.Share(tex), core.ErrIncompatibleShare, "held twice")

	plain := a.NewTexture(metadata.TextureConfig{Name: "plain", Width: 8, Height: 8, Format: metadata.TextureFormatRGBA8})
	require.NoError(t, plain.Build())
	assert.ErrorIs(t, b.Share(plain), core.ErrIncompatibleShare, "not sharable")

	// A shared build cannot be replaced under its other holders.
	assert.ErrorIs(t, tex.Resize(64, 64), core.ErrResourceInUse)
	assert.True(t, tex.IsBuilt())

	alone, _ := newTestRenderer(t, testConfig())
	lone := alone.NewTexture(metadata.TextureConfig{
		Name: "lonely", Width: 8, Height: 8, Format: metadata.TextureFormatRGBA8, Flags: metadata.TextureFlagSharable,
	})
	assert.ErrorIs(t, lone.Build(), core.ErrIncompatibleShare)
	assert.ErrorIs(t, alone.Share(tex), core.ErrIncompatibleShare, "other context")
}

func TestSharedContextRejectsForeignDevice(t *testing.T) {
	ctx := NewSharedContext(null.New())
	_, err := New(null.New(), Options{Config: testConfig(), Shared: ctx})
	assert.ErrorIs(t, err, core.ErrIncompatibleShare)
}

func TestInstancesOnSeparateGoroutines(t *testing.T) {
	dev := null.New()
	ctx := NewSharedContext(dev)
	creator, err := New(nil, Options{Config: testConfig(), Shared: ctx})
	require.NoError(t, err)
	tex := newSharableTexture(t, creator)

	const workers = 4
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		r, err := New(nil, Options{Config: testConfig(), Shared: ctx})
		require.NoError(t, err)
		require.NoError(t, r.Share(tex))
		wg.Add(1)
		go func(r *Renderer) {
			defer wg.Done()
			sc := r.NewSwapChain("window", null.NewSurface(64, 64))
			if err := sc.Build(); err != nil {
				errs <- err
				return
			}
			for f := 0; f < 10; f++ {
				if err := r.BeginFrame(sc); err != nil {
					errs <- err
					return
				}
				if err := r.EndFrame(sc); err != nil {
					errs <- err
					return
				}
			}
			errs <- r.Destroy()
		}(r)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	img := tex.Native()
	assert.True(t, dev.ImageAlive(img))
	require.NoError(t, creator.Destroy())
	assert.False(t, dev.ImageAlive(img))
	assert.Zero(t, dev.LiveObjects())
}
