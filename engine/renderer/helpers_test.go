package renderer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
	"github.com/alpqr/qvk6-sub001/engine/renderer/metadata"
	"github.com/alpqr/qvk6-sub001/engine/renderer/null"
	"github.com/alpqr/qvk6-sub001/engine/renderer/shader"
)

func testConfig() core.Config {
	cfg := core.DefaultConfig()
	cfg.LogLevel = "fatal"
	return cfg
}

func newTestRenderer(t *testing.T, cfg core.Config, opts ...null.Option) (*Renderer, *null.Device) {
	t.Helper()
	dev := null.New(opts...)
	r, err := New(dev, Options{Config: cfg})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Destroy() })
	return r, dev
}

func newTestSwapChain(t *testing.T, r *Renderer, width, height uint32) (*SwapChain, *null.Surface) {
	t.Helper()
	surface := null.NewSurface(width, height)
	sc := r.NewSwapChain("window", surface)
	require.NoError(t, sc.Build())
	return sc, surface
}

func newUniformBuffer(t *testing.T, r *Renderer, typ metadata.BufferType, size uint64) *Buffer {
	t.Helper()
	buf := r.NewBuffer(metadata.BufferConfig{Name: "ubuf", Type: typ, Usage: metadata.BufferUsageUniform, Size: size})
	require.NoError(t, buf.Build())
	return buf
}

func newSampledTexture(t *testing.T, r *Renderer, name string) (*Texture, *Sampler) {
	t.Helper()
	tex := r.NewTexture(metadata.TextureConfig{
		Name: name, Width: 64, Height: 64, Format: metadata.TextureFormatRGBA8,
		Flags: metadata.TextureFlagRenderTarget,
	})
	require.NoError(t, tex.Build())
	s := r.NewSampler(metadata.SamplerConfig{Name: name + " sampler", MagFilter: metadata.FilterLinear})
	require.NoError(t, s.Build())
	return tex, s
}

// testShaders returns a vertex stage reading a uniform block at binding 0
// and a fragment stage sampling a texture at binding fragBinding.
func testShaders(withSampler bool, fragBinding uint32) []ShaderStage {
	vs := shader.New(metadata.ShaderStageTypeVertex, shader.Reflection{
		Inputs:        []shader.Variable{{Name: "position", Location: 0, Type: shader.VariableTypeVec3}},
		UniformBlocks: []shader.UniformBlock{{Name: "buf", Binding: 0, Size: 68}},
	})
	vs.AddShader(shader.Key{Source: metadata.ShaderSourceGLSL, Version: 440}, shader.Code{Bytes: []byte("vs"), EntryPoint: "main"})
	refl := shader.Reflection{}
	if withSampler {
		refl.Samplers = []shader.Sampler{{Name: "tex", Type: shader.VariableTypeSampler2D, Binding: fragBinding}}
	}
	fs := shader.New(metadata.ShaderStageTypeFragment, refl)
	fs.AddShader(shader.Key{Source: metadata.ShaderSourceGLSL, Version: 440}, shader.Code{Bytes: []byte("fs"), EntryPoint: "main"})
	return []ShaderStage{{Package: vs}, {Package: fs}}
}

// drawSetup is everything needed to draw into a swapchain.
type drawSetup struct {
	sc       *SwapChain
	surface  *null.Surface
	ubuf     *Buffer
	vbuf     *Buffer
	table    *BindingTable
	pipeline *GraphicsPipeline
}

func newDrawSetup(t *testing.T, r *Renderer) *drawSetup {
	t.Helper()
	s := &drawSetup{}
	s.sc, s.surface = newTestSwapChain(t, r, 640, 480)
	s.ubuf = newUniformBuffer(t, r, metadata.BufferTypeDynamic, 68)
	s.vbuf = r.NewBuffer(metadata.BufferConfig{Name: "vbuf", Type: metadata.BufferTypeStatic, Usage: metadata.BufferUsageVertex, Size: 36})
	require.NoError(t, s.vbuf.Build())
	s.table = r.NewBindingTable("srb",
		UniformBufferBinding(0, metadata.ShaderStageVertex|metadata.ShaderStageFragment, s.ubuf, 0, 0))
	require.NoError(t, s.table.Build())

	rp, err := s.sc.NewCompatibleRenderPassDescriptor()
	require.NoError(t, err)
	s.pipeline = r.NewGraphicsPipeline(metadata.GraphicsPipelineConfig{Name: "triangle", CullMode: metadata.CullModeBack})
	s.pipeline.SetShaderStages(testShaders(false, 0)...)
	s.pipeline.SetBindingTableLayout(s.table)
	s.pipeline.SetRenderPassDescriptor(rp)
	require.NoError(t, s.pipeline.Build())
	return s
}

// drawFrame records one frame drawing a triangle to the swapchain.
func (s *drawSetup) drawFrame(t *testing.T, r *Renderer) {
	t.Helper()
	require.NoError(t, r.BeginFrame(s.sc))
	require.NoError(t, r.BeginPass(s.sc.CurrentFrameRenderTarget(), driver.ClearValue{Color: [4]float32{0, 0, 0, 1}, Depth: 1}))
	w, h := s.sc.BuiltSize()
	require.NoError(t, r.SetViewport(0, 0, float32(w), float32(h)))
	require.NoError(t, r.SetGraphicsPipeline(s.pipeline))
	require.NoError(t, r.SetBindingTable(s.table))
	require.NoError(t, r.SetVertexInput(s.vbuf, 0))
	require.NoError(t, r.Draw(3, 1))
	require.NoError(t, r.EndPass())
	require.NoError(t, r.EndFrame(s.sc))
}

// emptyFrame begins and ends a swapchain frame without recording a pass.
func emptyFrame(t *testing.T, r *Renderer, sc *SwapChain) {
	t.Helper()
	require.NoError(t, r.BeginFrame(sc))
	require.NoError(t, r.EndFrame(sc))
}

func requireNoMisuse(t *testing.T, dev *null.Device) {
	t.Helper()
	st := dev.Stats()
	require.Zero(t, st.InvalidHandles, "invalid handles")
	require.Zero(t, st.SemaphoreMisuse, "semaphore misuse")
	require.Zero(t, st.RecordingMisuse, "recording misuse")
}
