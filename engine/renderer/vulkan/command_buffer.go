package vulkan

import (
	"fmt"

	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
	vk "github.com/goki/vulkan"
)

func (d *Device) CreateCommandBuffer() (driver.CommandBuffer, error) {
	cbs := make([]vk.CommandBuffer, 1)
	err := d.locks.SafeCall(CommandPoolManagement, func() error {
		res := vk.AllocateCommandBuffers(d.device, &vk.CommandBufferAllocateInfo{
			SType:              vk.StructureTypeCommandBufferAllocateInfo,
			CommandPool:        d.cmdPool,
			Level:              vk.CommandBufferLevelPrimary,
			CommandBufferCount: 1,
		}, cbs)
		return d.check("vkAllocateCommandBuffers", res)
	})
	if err != nil {
		core.LogError("failed to allocate command buffer: %s", err)
		return 0, err
	}
	return d.cmdbufs.add(cbs[0]), nil
}

func (d *Device) FreeCommandBuffer(h driver.CommandBuffer) {
	cb, ok := d.cmdbufs.remove(h)
	if !ok {
		return
	}
	d.locks.SafeCall(CommandPoolManagement, func() error {
		vk.FreeCommandBuffers(d.device, d.cmdPool, 1, []vk.CommandBuffer{cb})
		return nil
	})
}

// BeginCommandBuffer starts one-time-submit recording. The pool allows
// implicit resets, so a buffer is simply re-begun every frame.
func (d *Device) BeginCommandBuffer(h driver.CommandBuffer) error {
	cb, ok := d.cmdbufs.get(h)
	if !ok {
		return fmt.Errorf("begin of unknown command buffer %d", h)
	}
	return d.check("vkBeginCommandBuffer", vk.BeginCommandBuffer(cb, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}))
}

func (d *Device) EndCommandBuffer(h driver.CommandBuffer) error {
	cb, ok := d.cmdbufs.get(h)
	if !ok {
		return fmt.Errorf("end of unknown command buffer %d", h)
	}
	return d.check("vkEndCommandBuffer", vk.EndCommandBuffer(cb))
}

func (d *Device) Submit(info driver.SubmitInfo) error {
	if d.lost.Load() {
		return fmt.Errorf("vkQueueSubmit: %w", core.ErrDeviceLost)
	}
	submit := vk.SubmitInfo{SType: vk.StructureTypeSubmitInfo}
	if info.CommandBuffer != 0 {
		cb, ok := d.cmdbufs.get(info.CommandBuffer)
		if !ok {
			return fmt.Errorf("submit of unknown command buffer %d", info.CommandBuffer)
		}
		submit.CommandBufferCount = 1
		submit.PCommandBuffers = []vk.CommandBuffer{cb}
	}
	if info.Wait != 0 {
		s, ok := d.semaphores.get(info.Wait)
		if !ok {
			return fmt.Errorf("submit waits on unknown semaphore %d", info.Wait)
		}
		submit.WaitSemaphoreCount = 1
		submit.PWaitSemaphores = []vk.Semaphore{s}
		submit.PWaitDstStageMask = []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		}
	}
	if info.Signal != 0 {
		s, ok := d.semaphores.get(info.Signal)
		if !ok {
			return fmt.Errorf("submit signals unknown semaphore %d", info.Signal)
		}
		submit.SignalSemaphoreCount = 1
		submit.PSignalSemaphores = []vk.Semaphore{s}
	}
	var fence vk.Fence
	if info.Fence != 0 {
		f, ok := d.fences.get(info.Fence)
		if !ok {
			return fmt.Errorf("submit signals unknown fence %d", info.Fence)
		}
		fence = f
	}
	return d.locks.SafeQueueCall(d.phys.graphicsFamily, func() error {
		return d.check("vkQueueSubmit", vk.QueueSubmit(d.graphics, 1, []vk.SubmitInfo{submit}, fence))
	})
}

func (d *Device) CmdBindVertexBuffer(ch driver.CommandBuffer, bh driver.Buffer, offset uint64) {
	cb, ok := d.cmdbufs.get(ch)
	if !ok {
		return
	}
	if b, ok := d.buffers.get(bh); ok {
		vk.CmdBindVertexBuffers(cb, 0, 1, []vk.Buffer{b.handle}, []vk.DeviceSize{vk.DeviceSize(offset)})
	}
}

// CmdSetViewport also sets a matching scissor rectangle.
func (d *Device) CmdSetViewport(ch driver.CommandBuffer, x, y, width, height float32) {
	cb, ok := d.cmdbufs.get(ch)
	if !ok {
		return
	}
	vk.CmdSetViewport(cb, 0, 1, []vk.Viewport{{
		X:        x,
		Y:        y,
		Width:    width,
		Height:   height,
		MinDepth: 0.0,
		MaxDepth: 1.0,
	}})
	vk.CmdSetScissor(cb, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: int32(x), Y: int32(y)},
		Extent: vk.Extent2D{Width: uint32(width), Height: uint32(height)},
	}})
}

func (d *Device) CmdDraw(ch driver.CommandBuffer, vertexCount, instanceCount uint32) {
	if cb, ok := d.cmdbufs.get(ch); ok {
		vk.CmdDraw(cb, vertexCount, instanceCount, 0, 0)
	}
}
