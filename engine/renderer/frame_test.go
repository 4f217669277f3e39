package renderer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
	"github.com/alpqr/qvk6-sub001/engine/renderer/metadata"
	"github.com/alpqr/qvk6-sub001/engine/renderer/null"
)

func TestDrawFrames(t *testing.T) {
	r, dev := newTestRenderer(t, testConfig())
	s := newDrawSetup(t, r)
	for i := 0; i < 5; i++ {
		s.drawFrame(t, r)
	}
	st := dev.Stats()
	assert.Equal(t, 5, st.Draws)
	assert.Equal(t, 5, st.Submits)
	assert.Equal(t, 5, st.Presents)
	assert.Equal(t, uint64(5), r.FrameSerial())
	assert.Equal(t, FrameStateFrameEnded, r.State())
	assert.Equal(t, 5%r.FramesInFlight(), r.CurrentFrameSlot())
	assert.Equal(t, uint32(1), s.pipeline.Generation())
	assert.Equal(t, uint64(5), s.table.LastActiveFrame())
	assert.Equal(t, 0, s.table.LastActiveFrameSlot())
	// One set per slot, written once each.
	assert.Equal(t, 2, st.DescriptorSetsAllocated)
	assert.Equal(t, 2, st.DescriptorWrites)
	requireNoMisuse(t, dev)
}

func TestFrameStateMachine(t *testing.T) {
	r, dev := newTestRenderer(t, testConfig())
	s := newDrawSetup(t, r)
	rt := s.sc.CurrentFrameRenderTarget()

	assert.ErrorIs(t, r.EndFrame(s.sc), core.ErrInvalidState)
	assert.ErrorIs(t, r.BeginPass(rt, driver.ClearValue{}), core.ErrInvalidState)
	assert.ErrorIs(t, r.Draw(3, 1), core.ErrInvalidState)

	require.NoError(t, r.BeginFrame(s.sc))
	assert.ErrorIs(t, r.BeginFrame(s.sc), core.ErrInvalidState)
	assert.ErrorIs(t, r.BeginOffscreenFrame(), core.ErrInvalidState)
	assert.ErrorIs(t, r.EndPass(), core.ErrInvalidState)
	assert.ErrorIs(t, r.Finish(), core.ErrInvalidState)
	assert.ErrorIs(t, s.sc.Resize(), core.ErrInvalidState)

	require.NoError(t, r.BeginPass(rt, driver.ClearValue{}))
	assert.Equal(t, FrameStatePassBegun, r.State())
	assert.ErrorIs(t, r.EndFrame(s.sc), core.ErrInvalidState)
	assert.ErrorIs(t, r.Draw(3, 1), core.ErrInvalidState, "draw without pipeline")
	assert.ErrorIs(t, r.SetBindingTable(s.table), core.ErrInvalidState, "table without pipeline")
	require.NoError(t, r.EndPass())
	assert.Equal(t, FrameStatePassEnded, r.State())
	assert.ErrorIs(t, r.EndOffscreenFrame(), core.ErrInvalidState)
	require.NoError(t, r.EndFrame(s.sc))
	assert.Equal(t, FrameStateFrameEnded, r.State())
	requireNoMisuse(t, dev)
}

func TestBeginFrameBlocksOnOldestSlot(t *testing.T) {
	r, dev := newTestRenderer(t, testConfig(), null.WithManualCompletion())
	sc, _ := newTestSwapChain(t, r, 640, 480)
	n := r.FramesInFlight()
	for i := 0; i < n; i++ {
		emptyFrame(t, r, sc)
	}
	require.Equal(t, n, r.InFlightFrames())
	require.Equal(t, n, dev.Pending())
	require.Zero(t, r.CompletedFrameSerial())

	done := make(chan error, 1)
	go func() { done <- r.BeginFrame(sc) }()
	select {
	case err := <-done:
		t.Fatalf("BeginFrame returned before slot 0 completed: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	require.True(t, dev.CompleteNext())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("BeginFrame did not return after slot 0 completed")
	}
	assert.Equal(t, uint64(1), r.CompletedFrameSerial())
	assert.Equal(t, n-1, r.InFlightFrames())
	require.NoError(t, r.EndFrame(sc))
	assert.LessOrEqual(t, r.InFlightFrames(), n)
	requireNoMisuse(t, dev)
}

func TestInFlightFramesBounded(t *testing.T) {
	for _, n := range []int{1, 2, 3} {
		cfg := testConfig()
		cfg.FramesInFlight = n
		r, dev := newTestRenderer(t, cfg, null.WithManualCompletion())
		sc, _ := newTestSwapChain(t, r, 64, 64)
		for i := 0; i < 10; i++ {
			// Complete the oldest frame only when the next begin would block.
			if r.InFlightFrames() == n {
				require.True(t, dev.CompleteNext())
			}
			emptyFrame(t, r, sc)
			assert.LessOrEqual(t, dev.Pending(), n)
			assert.LessOrEqual(t, r.InFlightFrames(), n)
		}
		requireNoMisuse(t, dev)
	}
}

func TestOutOfDateSwapchain(t *testing.T) {
	r, dev := newTestRenderer(t, testConfig())
	sc, surface := newTestSwapChain(t, r, 640, 480)
	emptyFrame(t, r, sc)
	depthGen := sc.DepthStencil().Generation()

	surface.SetPixelSize(800, 600)
	assert.True(t, sc.IsOutOfDate())
	err := r.BeginFrame(sc)
	assert.ErrorIs(t, err, core.ErrSwapchainOutOfDate)
	assert.Equal(t, FrameStateFrameEnded, r.State())
	assert.Equal(t, uint64(1), r.FrameSerial())

	require.NoError(t, sc.Resize())
	w, h := sc.BuiltSize()
	assert.Equal(t, [2]uint32{800, 600}, [2]uint32{w, h})
	dw, dh := sc.DepthStencil().Size()
	assert.Equal(t, [2]uint32{800, 600}, [2]uint32{dw, dh})
	assert.Equal(t, depthGen+1, sc.DepthStencil().Generation())
	assert.Equal(t, uint32(2), sc.Generation())

	require.NoError(t, r.BeginFrame(sc))
	require.NoError(t, r.EndFrame(sc))
	st := dev.Stats()
	assert.Equal(t, 2, st.SwapchainsCreated)
	assert.Equal(t, 1, st.SwapchainsDestroyed)
	requireNoMisuse(t, dev)
}

func TestOutOfDatePresentEndsFrame(t *testing.T) {
	r, dev := newTestRenderer(t, testConfig())
	sc, surface := newTestSwapChain(t, r, 640, 480)
	require.NoError(t, r.BeginFrame(sc))
	surface.SetPixelSize(320, 240)
	err := r.EndFrame(sc)
	assert.ErrorIs(t, err, core.ErrSwapchainOutOfDate)
	assert.Equal(t, FrameStateFrameEnded, r.State())
	assert.Equal(t, 1, r.CurrentFrameSlot())

	require.NoError(t, sc.Build())
	emptyFrame(t, r, sc)
	requireNoMisuse(t, dev)
}

func TestZeroSizedSurface(t *testing.T) {
	r, _ := newTestRenderer(t, testConfig())
	sc := r.NewSwapChain("minimized", null.NewSurface(0, 0))
	assert.ErrorIs(t, sc.Build(), core.ErrSwapchainOutOfDate)
	assert.False(t, sc.IsBuilt())
	assert.ErrorIs(t, r.BeginFrame(sc), core.ErrNotBuilt)
	_, err := sc.NewCompatibleRenderPassDescriptor()
	assert.ErrorIs(t, err, core.ErrNotBuilt)
}

func TestTransientAcquireFailureSkipsFrame(t *testing.T) {
	r, dev := newTestRenderer(t, testConfig())
	sc, _ := newTestSwapChain(t, r, 640, 480)
	dev.FailNextAcquire(1)

	err := r.BeginFrame(sc)
	assert.ErrorIs(t, err, core.ErrFrameSkipped)
	assert.ErrorIs(t, err, null.ErrAcquireFailed)
	assert.Equal(t, FrameStateIdle, r.State())
	assert.Zero(t, r.FrameSerial())
	assert.False(t, r.IsDeviceLost())

	emptyFrame(t, r, sc)
	assert.Equal(t, uint64(1), r.FrameSerial())
	requireNoMisuse(t, dev)
}

func TestFailedBeginAfterAcquireRetiresImage(t *testing.T) {
	r, dev := newTestRenderer(t, testConfig())
	sc, _ := newTestSwapChain(t, r, 640, 480)
	emptyFrame(t, r, sc)
	dev.FailNextBegin(1)

	err := r.BeginFrame(sc)
	assert.ErrorIs(t, err, core.ErrFrameSkipped)
	assert.ErrorIs(t, err, null.ErrInjected)
	assert.Equal(t, FrameStateFrameEnded, r.State())
	assert.Equal(t, uint64(1), r.FrameSerial())
	assert.True(t, sc.IsOutOfDate())
	assert.ErrorIs(t, r.BeginFrame(sc), core.ErrSwapchainOutOfDate)

	require.NoError(t, sc.Resize())
	assert.False(t, sc.IsOutOfDate())
	for i := 0; i < 3; i++ {
		emptyFrame(t, r, sc)
	}
	assert.Equal(t, uint64(4), r.FrameSerial())
	requireNoMisuse(t, dev)
}

func TestFailedSwapchainBuildLeavesNothingBehind(t *testing.T) {
	r, dev := newTestRenderer(t, testConfig())
	baseline := dev.LiveObjects()
	surface := null.NewSurface(640, 480)
	sc := r.NewSwapChain("window", surface)

	dev.FailNextSwapchain(1)
	assert.ErrorIs(t, sc.Build(), null.ErrInjected)
	assert.False(t, sc.IsBuilt())
	assert.Equal(t, baseline, dev.LiveObjects())

	require.NoError(t, sc.Build())
	emptyFrame(t, r, sc)

	// The rebuild fails on its second framebuffer.
	surface.SetPixelSize(800, 600)
	dev.FailFramebufferAfter(1)
	assert.ErrorIs(t, sc.Build(), null.ErrInjected)
	assert.False(t, sc.IsBuilt())
	assert.Zero(t, r.LiveResources())
	require.NoError(t, r.Finish())
	assert.Equal(t, baseline, dev.LiveObjects())
	st := dev.Stats()
	assert.Equal(t, st.SwapchainsCreated, st.SwapchainsDestroyed)
	assert.Equal(t, st.FramebuffersCreated, st.FramebuffersDestroyed)

	require.NoError(t, sc.Build())
	emptyFrame(t, r, sc)
	w, h := sc.BuiltSize()
	assert.Equal(t, [2]uint32{800, 600}, [2]uint32{w, h})
	requireNoMisuse(t, dev)
}

func TestDeviceLostIsSticky(t *testing.T) {
	r, dev := newTestRenderer(t, testConfig())
	s := newDrawSetup(t, r)
	s.drawFrame(t, r)
	dev.LoseDevice()

	assert.ErrorIs(t, r.BeginFrame(s.sc), core.ErrDeviceLost)
	assert.True(t, r.IsDeviceLost())
	assert.ErrorIs(t, r.BeginFrame(s.sc), core.ErrDeviceLost)
	assert.ErrorIs(t, r.BeginOffscreenFrame(), core.ErrDeviceLost)
	assert.ErrorIs(t, r.Finish(), core.ErrDeviceLost)
	assert.ErrorIs(t, s.sc.Resize(), core.ErrDeviceLost)

	buf := r.NewBuffer(metadata.BufferConfig{Name: "late", Usage: metadata.BufferUsageUniform, Size: 16})
	assert.ErrorIs(t, buf.Build(), core.ErrDeviceLost)
	assert.NoError(t, r.Destroy())
}

func TestOffscreenFrameCompletesSynchronously(t *testing.T) {
	r, dev := newTestRenderer(t, testConfig(), null.WithManualCompletion())
	tex, _ := newSampledTexture(t, r, "color")
	rt := r.NewTextureRenderTarget(TextureRenderTargetConfig{Name: "offscreen", Colors: []*Texture{tex}})
	rp, err := rt.NewCompatibleRenderPassDescriptor()
	require.NoError(t, err)
	rt.SetRenderPassDescriptor(rp)
	require.NoError(t, rt.Build())

	buf := newUniformBuffer(t, r, metadata.BufferTypeStatic, 64)
	done := make(chan error, 1)
	go func() {
		if err := r.BeginOffscreenFrame(); err != nil {
			done <- err
			return
		}
		if err := r.BeginPass(rt, driver.ClearValue{}); err != nil {
			done <- err
			return
		}
		if err := r.EndPass(); err != nil {
			done <- err
			return
		}
		if err := buf.Release(); err != nil {
			done <- err
			return
		}
		done <- r.EndOffscreenFrame()
	}()
	require.Eventually(t, func() bool { return dev.Pending() == 1 }, 5*time.Second, time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("EndOffscreenFrame returned before the GPU finished: %v", err)
	default:
	}
	dev.CompleteAll()
	require.NoError(t, <-done)
	assert.Equal(t, uint64(1), r.CompletedFrameSerial())
	assert.Zero(t, r.InFlightFrames())

	// The release is reclaimed by the next frame without waiting.
	require.NoError(t, r.BeginOffscreenFrame())
	assert.Zero(t, r.PendingReleases())
	go func() { done <- r.EndOffscreenFrame() }()
	require.Eventually(t, func() bool { return dev.Pending() == 1 }, 5*time.Second, time.Millisecond)
	dev.CompleteAll()
	require.NoError(t, <-done)
	assert.Equal(t, uint64(2), r.CompletedFrameSerial())
}

func TestTextureRenderTargetRebuildsWhenStale(t *testing.T) {
	r, dev := newTestRenderer(t, testConfig())
	tex, _ := newSampledTexture(t, r, "color")
	depth := r.NewRenderBuffer(metadata.RenderBufferConfig{Name: "depth", Width: 64, Height: 64})
	require.NoError(t, depth.Build())
	rt := r.NewTextureRenderTarget(TextureRenderTargetConfig{Name: "offscreen", Colors: []*Texture{tex}, DepthStencil: depth})
	rp, err := rt.NewCompatibleRenderPassDescriptor()
	require.NoError(t, err)
	rt.SetRenderPassDescriptor(rp)
	require.NoError(t, rt.Build())
	assert.False(t, rt.IsStale())

	pass := func() {
		require.NoError(t, r.BeginOffscreenFrame())
		require.NoError(t, r.BeginPass(rt, driver.ClearValue{Depth: 1}))
		require.NoError(t, r.EndPass())
		require.NoError(t, r.EndOffscreenFrame())
	}
	pass()
	assert.Equal(t, uint32(1), rt.Generation())

	require.NoError(t, tex.Resize(32, 32))
	require.NoError(t, depth.Resize(32, 32))
	assert.True(t, rt.IsStale())
	pass()
	assert.Equal(t, uint32(2), rt.Generation())
	w, h := rt.PixelSize()
	assert.Equal(t, [2]uint32{32, 32}, [2]uint32{w, h})

	// Attachments of different sizes cannot be combined.
	require.NoError(t, depth.Resize(16, 16))
	require.NoError(t, r.BeginOffscreenFrame())
	assert.ErrorIs(t, r.BeginPass(rt, driver.ClearValue{}), core.ErrInvalidConfig)
	require.NoError(t, r.EndOffscreenFrame())
	requireNoMisuse(t, dev)
}

func TestFrameMetrics(t *testing.T) {
	r, _ := newTestRenderer(t, testConfig())
	now := time.Unix(0, 0)
	r.clock = core.NewClockWithSource(func() time.Time { return now })
	sc, _ := newTestSwapChain(t, r, 64, 64)
	for i := 0; i < core.AvgCount+1; i++ {
		emptyFrame(t, r, sc)
		now = now.Add(10 * time.Millisecond)
	}
	assert.InDelta(t, 10.0, r.Metrics().FrameTime(), 0.001)
}
