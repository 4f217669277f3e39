/*
A small demo of the renderer: a glfw window, the Vulkan device and a
triangle whose tint changes every frame. The shader packages are taken
from the configured shader directory and hot reloaded when they change.
*/
package main

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/platform"
	"github.com/alpqr/qvk6-sub001/engine/renderer"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
	"github.com/alpqr/qvk6-sub001/engine/renderer/metadata"
	"github.com/alpqr/qvk6-sub001/engine/renderer/shader"
	"github.com/alpqr/qvk6-sub001/engine/renderer/vulkan"
)

const configPath = "config.toml"

func main() {
	cfg, err := core.LoadConfig(configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			core.LogFatal("%s", err)
		}
		cfg = core.DefaultConfig()
	}
	core.SetLogLevel(cfg.LogLevel)

	if err := run(cfg); err != nil {
		core.LogFatal("%s", err)
	}
}

type scene struct {
	vertices *renderer.Buffer
	uniforms *renderer.Buffer
	table    *renderer.BindingTable
	pipeline *renderer.GraphicsPipeline
}

func run(cfg core.Config) error {
	window, err := platform.New(cfg.Window)
	if err != nil {
		return err
	}
	defer window.Destroy()

	dev, err := vulkan.New(window, cfg.Vulkan)
	if err != nil {
		return err
	}
	defer dev.Destroy()

	r, err := renderer.New(dev, renderer.Options{Config: cfg})
	if err != nil {
		return err
	}
	defer r.Destroy()

	sc := r.NewSwapChain("main", window)
	if err := sc.Build(); err != nil {
		return err
	}

	watcher, err := shader.NewWatcher(cfg.ShaderDir)
	if err != nil {
		return err
	}
	defer watcher.Close()

	s, err := newScene(r, sc, watcher, cfg.ShaderDir)
	if err != nil {
		return err
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		<-sigCh
		window.Close()
	}()

	clock := core.NewClock()
	clock.Start()
	generation := window.SizeGeneration()
	for !window.ShouldClose() {
		window.PollEvents()
		s.reload(watcher)

		if g := window.SizeGeneration(); g != generation || sc.IsOutOfDate() {
			generation = g
			if !resize(window, sc) {
				continue
			}
		}

		err := r.BeginFrame(sc)
		switch {
		case errors.Is(err, core.ErrSwapchainOutOfDate):
			resize(window, sc)
			continue
		case errors.Is(err, core.ErrFrameSkipped):
			continue
		case err != nil:
			return err
		}

		clock.Update()
		if err := s.draw(r, sc, clock.Elapsed().Seconds()); err != nil {
			return err
		}
		if err := r.EndFrame(sc); err != nil && !errors.Is(err, core.ErrSwapchainOutOfDate) {
			return err
		}
	}

	if err := r.Finish(); err != nil && !errors.Is(err, core.ErrDeviceLost) {
		return err
	}
	core.LogInfo("Average frame time %.2f ms, %.0f fps.", r.Metrics().FrameTime(), r.Metrics().FPS())
	s.release()
	return sc.Release()
}

// resize rebuilds the swapchain. It reports false while the window is
// minimized.
func resize(window *platform.Window, sc *renderer.SwapChain) bool {
	if w, h := window.PixelSize(); w == 0 || h == 0 {
		window.WaitEvents()
		return false
	}
	if err := sc.Resize(); err != nil {
		core.LogWarn("swapchain resize failed: %s", err)
		return false
	}
	return true
}

func newScene(r *renderer.Renderer, sc *renderer.SwapChain, watcher *shader.Watcher, dir string) (*scene, error) {
	s := &scene{}

	vertices := floatBytes(
		0.0, -0.5, 1, 0, 0,
		0.5, 0.5, 0, 1, 0,
		-0.5, 0.5, 0, 0, 1,
	)
	s.vertices = r.NewBuffer(metadata.BufferConfig{
		Name:  "triangle",
		Type:  metadata.BufferTypeImmutable,
		Usage: metadata.BufferUsageVertex,
		Size:  uint64(len(vertices)),
	})
	if err := s.vertices.Build(); err != nil {
		return nil, err
	}
	if err := s.vertices.Update(0, vertices); err != nil {
		return nil, err
	}

	s.uniforms = r.NewBuffer(metadata.BufferConfig{
		Name:  "tint",
		Type:  metadata.BufferTypeDynamic,
		Usage: metadata.BufferUsageUniform,
		Size:  16,
	})
	if err := s.uniforms.Build(); err != nil {
		return nil, err
	}

	s.table = r.NewBindingTable("tint",
		renderer.UniformBufferBinding(0, metadata.ShaderStageVertex|metadata.ShaderStageFragment, s.uniforms, 0, 16))
	if err := s.table.Build(); err != nil {
		return nil, err
	}

	vert, ok := watcher.Package(filepath.Join(dir, "triangle.vert"+shader.Extension))
	if !ok {
		return nil, core.ErrShaderNotFound
	}
	frag, ok := watcher.Package(filepath.Join(dir, "triangle.frag"+shader.Extension))
	if !ok {
		return nil, core.ErrShaderNotFound
	}
	s.pipeline = r.NewGraphicsPipeline(metadata.GraphicsPipelineConfig{
		Name:     "triangle",
		Topology: metadata.TopologyTriangles,
		CullMode: metadata.CullModeNone,
		VertexInput: metadata.VertexInputLayout{
			Stride: 5 * 4,
			Attributes: []metadata.VertexAttribute{
				{Location: 0, Format: metadata.VertexFormatFloat2, Offset: 0},
				{Location: 1, Format: metadata.VertexFormatFloat3, Offset: 2 * 4},
			},
		},
	})
	s.pipeline.SetShaderStages(renderer.ShaderStage{Package: vert}, renderer.ShaderStage{Package: frag})
	s.pipeline.SetBindingTableLayout(s.table)
	s.pipeline.SetRenderPassDescriptor(sc.RenderPassDescriptor())
	if err := s.pipeline.Build(); err != nil {
		return nil, err
	}
	return s, nil
}

// reload swaps in shader packages that changed on disk and rebuilds the
// pipeline with them.
func (s *scene) reload(watcher *shader.Watcher) {
	for {
		select {
		case ev, ok := <-watcher.Events():
			if !ok {
				return
			}
			if ev.Err != nil || ev.Removed {
				continue
			}
			stages := make([]renderer.ShaderStage, 0, 2)
			for _, st := range []metadata.ShaderStage{metadata.ShaderStageTypeVertex, metadata.ShaderStageTypeFragment} {
				if ev.Package.Stage == st {
					stages = append(stages, renderer.ShaderStage{Package: ev.Package})
				} else if cur := s.stage(st); cur != nil {
					stages = append(stages, renderer.ShaderStage{Package: cur})
				}
			}
			s.pipeline.SetShaderStages(stages...)
			if err := s.pipeline.Build(); err != nil {
				core.LogWarn("reload of %s failed: %s", ev.Path, err)
				continue
			}
			core.LogInfo("Reloaded %s.", ev.Path)
		default:
			return
		}
	}
}

func (s *scene) stage(st metadata.ShaderStage) *shader.Package {
	for _, p := range s.pipeline.ShaderStages() {
		if p.Package != nil && p.Package.Stage == st {
			return p.Package
		}
	}
	return nil
}

func (s *scene) draw(r *renderer.Renderer, sc *renderer.SwapChain, t float64) error {
	tint := floatBytes(
		float32(0.5+0.5*math.Sin(t)),
		float32(0.5+0.5*math.Sin(t+2.1)),
		float32(0.5+0.5*math.Sin(t+4.2)),
		1,
	)
	if err := s.uniforms.Update(0, tint); err != nil {
		return err
	}
	if err := r.BeginPass(sc.CurrentFrameRenderTarget(), driver.ClearValue{
		Color: [4]float32{0.05, 0.05, 0.08, 1},
		Depth: 1,
	}); err != nil {
		return err
	}
	w, h := sc.BuiltSize()
	for _, step := range []func() error{
		func() error { return r.SetGraphicsPipeline(s.pipeline) },
		func() error { return r.SetBindingTable(s.table) },
		func() error { return r.SetVertexInput(s.vertices, 0) },
		func() error { return r.SetViewport(0, 0, float32(w), float32(h)) },
		func() error { return r.Draw(3, 1) },
	} {
		if err := step(); err != nil {
			r.EndPass()
			return err
		}
	}
	return r.EndPass()
}

func (s *scene) release() {
	for _, res := range []renderer.Resource{s.pipeline, s.table, s.uniforms, s.vertices} {
		if err := res.Release(); err != nil {
			core.LogWarn("release failed: %s", err)
		}
	}
}

func floatBytes(values ...float32) []byte {
	out := make([]byte, 0, len(values)*4)
	for _, v := range values {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	return out
}
