package null

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
	"github.com/alpqr/qvk6-sub001/engine/renderer/metadata"
)

func TestFenceAutoCompletion(t *testing.T) {
	d := New()
	f, err := d.CreateFence(false)
	require.NoError(t, err)
	cb, err := d.CreateCommandBuffer()
	require.NoError(t, err)

	require.NoError(t, d.BeginCommandBuffer(cb))
	require.NoError(t, d.EndCommandBuffer(cb))
	require.NoError(t, d.Submit(driver.SubmitInfo{CommandBuffer: cb, Fence: f}))

	assert.NoError(t, d.WaitFence(f, time.Millisecond))
	assert.Equal(t, 0, d.Pending())
	assert.Zero(t, d.Stats().RecordingMisuse)
}

func TestFenceManualCompletion(t *testing.T) {
	d := New(WithManualCompletion())
	f, err := d.CreateFence(false)
	require.NoError(t, err)
	cb, err := d.CreateCommandBuffer()
	require.NoError(t, err)
	require.NoError(t, d.BeginCommandBuffer(cb))
	require.NoError(t, d.EndCommandBuffer(cb))
	require.NoError(t, d.Submit(driver.SubmitInfo{CommandBuffer: cb, Fence: f}))

	assert.ErrorIs(t, d.WaitFence(f, 5*time.Millisecond), driver.ErrTimeout)
	assert.Equal(t, 1, d.Pending())

	done := make(chan error, 1)
	go func() { done <- d.WaitFence(f, 0) }()
	assert.True(t, d.CompleteNext())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter not released by CompleteNext")
	}
	assert.False(t, d.CompleteNext())
}

func TestSubmitWithSignaledFenceFails(t *testing.T) {
	d := New()
	f, err := d.CreateFence(true)
	require.NoError(t, err)
	cb, err := d.CreateCommandBuffer()
	require.NoError(t, err)
	require.NoError(t, d.BeginCommandBuffer(cb))
	require.NoError(t, d.EndCommandBuffer(cb))

	assert.Error(t, d.Submit(driver.SubmitInfo{CommandBuffer: cb, Fence: f}))
	require.NoError(t, d.ResetFence(f))
	assert.NoError(t, d.Submit(driver.SubmitInfo{CommandBuffer: cb, Fence: f}))
}

func TestLoseDeviceReleasesWaiters(t *testing.T) {
	d := New(WithManualCompletion())
	f, err := d.CreateFence(false)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- d.WaitFence(f, 0) }()
	d.LoseDevice()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, core.ErrDeviceLost)
	case <-time.After(time.Second):
		t.Fatal("waiter not released by device loss")
	}

	_, _, err = d.CreateBuffer(driver.BufferDesc{Size: 16})
	assert.ErrorIs(t, err, core.ErrDeviceLost)
	assert.ErrorIs(t, d.WaitIdle(), core.ErrDeviceLost)
}

func TestSemaphoreMisuseIsCounted(t *testing.T) {
	d := New()
	s, err := d.CreateSemaphore()
	require.NoError(t, err)
	cb, err := d.CreateCommandBuffer()
	require.NoError(t, err)
	require.NoError(t, d.BeginCommandBuffer(cb))
	require.NoError(t, d.EndCommandBuffer(cb))

	// Waiting on a semaphore nothing signaled.
	require.NoError(t, d.Submit(driver.SubmitInfo{CommandBuffer: cb, Wait: s}))
	assert.Equal(t, 1, d.Stats().SemaphoreMisuse)

	require.NoError(t, d.Submit(driver.SubmitInfo{CommandBuffer: cb, Signal: s}))
	require.NoError(t, d.Submit(driver.SubmitInfo{CommandBuffer: cb, Signal: s}))
	assert.Equal(t, 2, d.Stats().SemaphoreMisuse)
}

func TestEmptySubmitConsumesSemaphore(t *testing.T) {
	d := New()
	s, err := d.CreateSemaphore()
	require.NoError(t, err)
	sc, err := d.CreateSwapchain(driver.SwapchainDesc{Surface: NewSurface(8, 8), Width: 8, Height: 8})
	require.NoError(t, err)

	_, err = d.AcquireNextImage(sc, s)
	require.NoError(t, err)
	require.NoError(t, d.Submit(driver.SubmitInfo{Wait: s}))
	_, err = d.AcquireNextImage(sc, s)
	require.NoError(t, err)
	assert.Zero(t, d.Stats().SemaphoreMisuse)
	assert.Zero(t, d.Stats().InvalidHandles)

	assert.Error(t, d.Submit(driver.SubmitInfo{CommandBuffer: 9999}))
	assert.Equal(t, 1, d.Stats().InvalidHandles)
}

func TestInjectedFailures(t *testing.T) {
	d := New()
	cb, err := d.CreateCommandBuffer()
	require.NoError(t, err)
	d.FailNextBegin(1)
	assert.ErrorIs(t, d.BeginCommandBuffer(cb), ErrInjected)
	require.NoError(t, d.BeginCommandBuffer(cb))

	desc := driver.SwapchainDesc{Surface: NewSurface(8, 8), Width: 8, Height: 8}
	d.FailNextSwapchain(1)
	_, err = d.CreateSwapchain(desc)
	assert.ErrorIs(t, err, ErrInjected)
	sc, err := d.CreateSwapchain(desc)
	require.NoError(t, err)

	rp, err := d.CreateRenderPass(driver.RenderPassDesc{
		Colors: []driver.AttachmentDesc{{Format: metadata.TextureFormatBGRA8, SampleCount: 1}},
	})
	require.NoError(t, err)
	images := d.SwapchainImages(sc)
	d.FailFramebufferAfter(1)
	fbDesc := driver.FramebufferDesc{RenderPass: rp, Attachments: images[:1], Width: 8, Height: 8}
	_, err = d.CreateFramebuffer(fbDesc)
	require.NoError(t, err)
	_, err = d.CreateFramebuffer(fbDesc)
	assert.ErrorIs(t, err, ErrInjected)
	_, err = d.CreateFramebuffer(fbDesc)
	assert.NoError(t, err)
}

func TestRecordingMisuseIsCounted(t *testing.T) {
	d := New()
	cb, err := d.CreateCommandBuffer()
	require.NoError(t, err)

	d.CmdDraw(cb, 3, 1)
	assert.Equal(t, 1, d.Stats().RecordingMisuse)

	require.NoError(t, d.BeginCommandBuffer(cb))
	d.CmdDraw(cb, 3, 1)
	assert.Equal(t, 2, d.Stats().RecordingMisuse, "draw outside a render pass")
	assert.Equal(t, 1, d.Stats().Draws)
}

func TestAllocatorMapping(t *testing.T) {
	d := New()
	alloc := d.Allocator()

	host, err := alloc.Allocate(driver.MemoryRequirements{Size: 64}, driver.MemoryUsageCPUToGPU)
	require.NoError(t, err)
	mem, err := alloc.Map(host)
	require.NoError(t, err)
	assert.Len(t, mem, 64)
	alloc.Unmap(host)

	device, err := alloc.Allocate(driver.MemoryRequirements{Size: 64}, driver.MemoryUsageGPUOnly)
	require.NoError(t, err)
	_, err = alloc.Map(device)
	assert.Error(t, err)

	_, err = alloc.Allocate(driver.MemoryRequirements{}, driver.MemoryUsageCPUToGPU)
	assert.Error(t, err)

	alloc.Free(host)
	alloc.Free(device)
	alloc.Free(device)
	assert.Equal(t, 2, d.Stats().Frees)
	assert.Equal(t, 1, d.Stats().InvalidHandles)
}

func TestBufferLifecycle(t *testing.T) {
	d := New()
	b, req, err := d.CreateBuffer(driver.BufferDesc{Size: 100, Usage: metadata.BufferUsageUniform})
	require.NoError(t, err)
	assert.Equal(t, uint64(100), req.Size)

	small, err := d.Allocator().Allocate(driver.MemoryRequirements{Size: 10}, driver.MemoryUsageCPUToGPU)
	require.NoError(t, err)
	assert.Error(t, d.BindBufferMemory(b, small))

	a, err := d.Allocator().Allocate(req, driver.MemoryUsageCPUToGPU)
	require.NoError(t, err)
	require.NoError(t, d.BindBufferMemory(b, a))
	assert.True(t, d.BufferAlive(b))

	d.DestroyBuffer(b)
	assert.False(t, d.BufferAlive(b))
	d.DestroyBuffer(b)
	assert.Equal(t, 1, d.Stats().InvalidHandles)

	_, _, err = d.CreateBuffer(driver.BufferDesc{Size: 0})
	assert.Error(t, err)
}

func TestDescriptorPoolExhaustion(t *testing.T) {
	d := New()
	layout, err := d.CreateDescriptorSetLayout([]driver.LayoutBinding{
		{Binding: 0, Type: driver.DescriptorTypeUniformBuffer, Stages: metadata.ShaderStageVertex},
	})
	require.NoError(t, err)
	pool, err := d.CreateDescriptorPool(driver.PoolCapacity{MaxSets: 2, UniformBuffers: 2, CombinedImageSamplers: 1})
	require.NoError(t, err)

	s1, err := d.AllocateDescriptorSet(pool, layout)
	require.NoError(t, err)
	_, err = d.AllocateDescriptorSet(pool, layout)
	require.NoError(t, err)
	_, err = d.AllocateDescriptorSet(pool, layout)
	assert.ErrorIs(t, err, driver.ErrPoolExhausted)

	d.FreeDescriptorSet(pool, s1)
	_, err = d.AllocateDescriptorSet(pool, layout)
	assert.NoError(t, err)

	d.DestroyDescriptorPool(pool)
	d.DestroyDescriptorSetLayout(layout)
	assert.Zero(t, d.LiveObjects())
}

func TestDescriptorWritesAreRecorded(t *testing.T) {
	d := New()
	b, _, err := d.CreateBuffer(driver.BufferDesc{Size: 64, Usage: metadata.BufferUsageUniform})
	require.NoError(t, err)
	layout, err := d.CreateDescriptorSetLayout([]driver.LayoutBinding{{Binding: 3, Type: driver.DescriptorTypeUniformBuffer}})
	require.NoError(t, err)
	pool, err := d.CreateDescriptorPool(driver.PoolCapacity{MaxSets: 1, UniformBuffers: 1, CombinedImageSamplers: 1})
	require.NoError(t, err)
	s, err := d.AllocateDescriptorSet(pool, layout)
	require.NoError(t, err)

	d.UpdateDescriptorSet(s, []driver.DescriptorWrite{{Binding: 3, Type: driver.DescriptorTypeUniformBuffer, Buffer: b, Range: 64}})
	w, ok := d.DescriptorSetWrite(s, 3)
	require.True(t, ok)
	assert.Equal(t, b, w.Buffer)
	_, ok = d.DescriptorSetWrite(s, 0)
	assert.False(t, ok)
	assert.Equal(t, 1, d.Stats().DescriptorWrites)
	assert.Zero(t, d.Stats().InvalidHandles)
}

func TestSwapchainAcquirePresent(t *testing.T) {
	d := New()
	surface := NewSurface(320, 240)
	sc, err := d.CreateSwapchain(driver.SwapchainDesc{Surface: surface, Width: 320, Height: 240})
	require.NoError(t, err)
	images := d.SwapchainImages(sc)
	require.Len(t, images, swapchainImageCount)
	assert.Equal(t, metadata.TextureFormatBGRA8, d.SwapchainFormat(sc))

	acquired, err := d.CreateSemaphore()
	require.NoError(t, err)
	for i := 0; i < swapchainImageCount+1; i++ {
		idx, err := d.AcquireNextImage(sc, acquired)
		require.NoError(t, err)
		assert.Equal(t, uint32(i%swapchainImageCount), idx)
		require.NoError(t, d.Present(sc, idx, acquired))
	}
	assert.Zero(t, d.Stats().SemaphoreMisuse)

	d.FailNextAcquire(1)
	_, err = d.AcquireNextImage(sc, acquired)
	assert.ErrorIs(t, err, ErrAcquireFailed)

	surface.SetPixelSize(640, 480)
	_, err = d.AcquireNextImage(sc, acquired)
	assert.ErrorIs(t, err, core.ErrSwapchainOutOfDate)

	// swapchain images are owned by the swapchain
	d.DestroyImage(images[0])
	assert.True(t, d.ImageAlive(images[0]))
	d.DestroySwapchain(sc)
	assert.False(t, d.ImageAlive(images[0]))
}
