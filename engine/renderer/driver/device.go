package driver

import (
	"errors"
	"time"

	"github.com/alpqr/qvk6-sub001/engine/renderer/metadata"
)

type Backend int

const (
	BackendNull Backend = iota
	BackendVulkan
)

func (b Backend) String() string {
	switch b {
	case BackendNull:
		return "null"
	case BackendVulkan:
		return "vulkan"
	}
	return "unknown"
}

// ErrPoolExhausted is returned by AllocateDescriptorSet when the pool has no room left.
var ErrPoolExhausted = errors.New("descriptor pool exhausted")

// ErrTimeout is returned by WaitFence when the timeout elapsed first.
var ErrTimeout = errors.New("fence wait timed out")

// Device lost and out-of-date conditions are reported with the sentinels of
// package core so that callers can test for them with errors.Is regardless
// of backend.

type Limits struct {
	MaxBufferSize                   uint64
	MaxTextureSize                  uint32
	MinUniformBufferOffsetAlignment uint64
	MaxSampleCount                  uint32
}

type BufferDesc struct {
	Size  uint64
	Usage metadata.BufferUsage
	// HostVisible buffers are mapped and written by the CPU.
	HostVisible bool
}

type ImageDesc struct {
	Width, Height uint32
	Format        metadata.TextureFormat
	MipLevels     uint32
	Layers        uint32
	SampleCount   uint32
	Sampled       bool
	RenderTarget  bool
	TransferSrc   bool
}

type SamplerDesc = metadata.SamplerConfig

type MemoryRequirements struct {
	Size      uint64
	Alignment uint64
	TypeBits  uint32
}

type MemoryUsage int

const (
	MemoryUsageGPUOnly MemoryUsage = iota
	MemoryUsageCPUToGPU
	MemoryUsageGPUToCPU
)

type DescriptorType int

const (
	DescriptorTypeUniformBuffer DescriptorType = iota
	DescriptorTypeCombinedImageSampler
)

type LayoutBinding struct {
	Binding uint32
	Type    DescriptorType
	Stages  metadata.ShaderStageFlags
}

type PoolCapacity struct {
	MaxSets               uint32
	UniformBuffers        uint32
	CombinedImageSamplers uint32
}

// DescriptorWrite updates one binding of a descriptor set.
type DescriptorWrite struct {
	Binding uint32
	Type    DescriptorType
	Buffer  Buffer
	Offset  uint64
	Range   uint64
	Image   Image
	Sampler Sampler
}

type AttachmentDesc struct {
	Format      metadata.TextureFormat
	SampleCount uint32
	// Present transitions the attachment for presentation after the pass.
	Present bool
}

type RenderPassDesc struct {
	Colors []AttachmentDesc
	// Depth is ignored when its format is unknown.
	Depth AttachmentDesc
}

type FramebufferDesc struct {
	RenderPass    RenderPass
	Attachments   []Image
	Width, Height uint32
}

type ShaderModuleDesc struct {
	Stage      metadata.ShaderStage
	Code       []byte
	EntryPoint string
}

type PipelineDesc struct {
	Config     metadata.GraphicsPipelineConfig
	Stages     []ShaderModuleDesc
	Layout     DescriptorSetLayout
	RenderPass RenderPass
}

type SwapchainDesc struct {
	Surface       Surface
	Width, Height uint32
	Old           Swapchain
}

// SubmitInfo describes one queue submission. A zero CommandBuffer submits
// only the semaphore and fence operations.
type SubmitInfo struct {
	CommandBuffer CommandBuffer
	Wait          Semaphore
	Signal        Semaphore
	Fence         Fence
}

type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

type RenderPassBegin struct {
	RenderPass    RenderPass
	Framebuffer   Framebuffer
	Width, Height uint32
	Clear         ClearValue
}

// Surface is the windowing layer's drawable.
type Surface interface {
	PixelSize() (width, height uint32)
}

// Allocator hands out device memory. It is the only path through which
// buffers and images receive backing storage.
type Allocator interface {
	Allocate(req MemoryRequirements, usage MemoryUsage) (Allocation, error)
	Free(a Allocation)
	Map(a Allocation) ([]byte, error)
	Unmap(a Allocation)
}

// Device is one backend's native API surface.
type Device interface {
	Backend() Backend
	Limits() Limits
	Allocator() Allocator

	CreateBuffer(desc BufferDesc) (Buffer, MemoryRequirements, error)
	BindBufferMemory(b Buffer, a Allocation) error
	DestroyBuffer(b Buffer)

	CreateImage(desc ImageDesc) (Image, MemoryRequirements, error)
	BindImageMemory(img Image, a Allocation) error
	DestroyImage(img Image)

	CreateSampler(desc SamplerDesc) (Sampler, error)
	DestroySampler(s Sampler)

	CreateDescriptorSetLayout(bindings []LayoutBinding) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(l DescriptorSetLayout)
	CreateDescriptorPool(capacity PoolCapacity) (DescriptorPool, error)
	DestroyDescriptorPool(p DescriptorPool)
	AllocateDescriptorSet(p DescriptorPool, l DescriptorSetLayout) (DescriptorSet, error)
	FreeDescriptorSet(p DescriptorPool, s DescriptorSet)
	UpdateDescriptorSet(s DescriptorSet, writes []DescriptorWrite)

	CreateRenderPass(desc RenderPassDesc) (RenderPass, error)
	DestroyRenderPass(rp RenderPass)
	CreateFramebuffer(desc FramebufferDesc) (Framebuffer, error)
	DestroyFramebuffer(fb Framebuffer)

	CreatePipeline(desc PipelineDesc) (Pipeline, error)
	DestroyPipeline(p Pipeline)

	CreateFence(signaled bool) (Fence, error)
	DestroyFence(f Fence)
	WaitFence(f Fence, timeout time.Duration) error
	ResetFence(f Fence) error
	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)

	CreateCommandBuffer() (CommandBuffer, error)
	FreeCommandBuffer(cb CommandBuffer)
	BeginCommandBuffer(cb CommandBuffer) error
	EndCommandBuffer(cb CommandBuffer) error
	Submit(info SubmitInfo) error

	CmdBeginRenderPass(cb CommandBuffer, begin RenderPassBegin)
	CmdEndRenderPass(cb CommandBuffer)
	CmdBindPipeline(cb CommandBuffer, p Pipeline)
	CmdBindDescriptorSet(cb CommandBuffer, p Pipeline, s DescriptorSet)
	CmdBindVertexBuffer(cb CommandBuffer, b Buffer, offset uint64)
	CmdSetViewport(cb CommandBuffer, x, y, width, height float32)
	CmdDraw(cb CommandBuffer, vertexCount, instanceCount uint32)

	CreateSwapchain(desc SwapchainDesc) (Swapchain, error)
	DestroySwapchain(sc Swapchain)
	SwapchainImages(sc Swapchain) []Image
	SwapchainFormat(sc Swapchain) metadata.TextureFormat
	AcquireNextImage(sc Swapchain, signal Semaphore) (uint32, error)
	Present(sc Swapchain, index uint32, wait Semaphore) error

	WaitIdle() error
	Destroy()
}
