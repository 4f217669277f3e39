package null

import (
	"fmt"
	"time"

	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
)

func (d *Device) CreateFence(signaled bool) (driver.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return 0, core.ErrDeviceLost
	}
	h := driver.Fence(d.handle())
	d.fences[h] = signaled
	return h, nil
}

func (d *Device) DestroyFence(f driver.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.fences[f]; !ok {
		d.stats.InvalidHandles++
		return
	}
	delete(d.fences, f)
}

// WaitFence blocks until the fence is signaled, the device is lost, or the
// timeout elapses. A non-positive timeout waits forever.
func (d *Device) WaitFence(f driver.Fence, timeout time.Duration) error {
	stop := waitTimer(d, timeout)
	defer stop()
	deadline := time.Now().Add(timeout)

	d.mu.Lock()
	defer d.mu.Unlock()
	for {
		signaled, ok := d.fences[f]
		if !ok {
			d.stats.InvalidHandles++
			return fmt.Errorf("null: wait on unknown fence %d", f)
		}
		if d.lost {
			return core.ErrDeviceLost
		}
		if signaled {
			return nil
		}
		if timeout > 0 && !time.Now().Before(deadline) {
			return driver.ErrTimeout
		}
		d.cond.Wait()
	}
}

func (d *Device) ResetFence(f driver.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.fences[f]; !ok {
		d.stats.InvalidHandles++
		return fmt.Errorf("null: reset of unknown fence %d", f)
	}
	d.fences[f] = false
	return nil
}

func (d *Device) CreateSemaphore() (driver.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return 0, core.ErrDeviceLost
	}
	h := driver.Semaphore(d.handle())
	d.semaphores[h] = false
	return h, nil
}

func (d *Device) DestroySemaphore(s driver.Semaphore) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.semaphores[s]; !ok {
		d.stats.InvalidHandles++
		return
	}
	delete(d.semaphores, s)
}

// signalSemaphore flags a second signal without an intervening wait.
func (d *Device) signalSemaphore(s driver.Semaphore) {
	signaled, ok := d.semaphores[s]
	if !ok {
		d.stats.InvalidHandles++
		return
	}
	if signaled {
		d.stats.SemaphoreMisuse++
	}
	d.semaphores[s] = true
}

// waitSemaphore flags a wait on a semaphore nothing will signal.
func (d *Device) waitSemaphore(s driver.Semaphore) {
	signaled, ok := d.semaphores[s]
	if !ok {
		d.stats.InvalidHandles++
		return
	}
	if !signaled {
		d.stats.SemaphoreMisuse++
	}
	d.semaphores[s] = false
}

func (d *Device) CreateCommandBuffer() (driver.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return 0, core.ErrDeviceLost
	}
	h := driver.CommandBuffer(d.handle())
	d.cmdbufs[h] = &commandBuffer{}
	return h, nil
}

func (d *Device) FreeCommandBuffer(cb driver.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.cmdbufs[cb]; !ok {
		d.stats.InvalidHandles++
		return
	}
	delete(d.cmdbufs, cb)
}

func (d *Device) BeginCommandBuffer(cb driver.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.cmdbufs[cb]
	if !ok {
		d.stats.InvalidHandles++
		return fmt.Errorf("null: begin of unknown command buffer %d", cb)
	}
	if injected(&d.failBegin) {
		return ErrInjected
	}
	if c.recording {
		d.stats.RecordingMisuse++
	}
	c.recording = true
	return nil
}

func (d *Device) EndCommandBuffer(cb driver.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.cmdbufs[cb]
	if !ok {
		d.stats.InvalidHandles++
		return fmt.Errorf("null: end of unknown command buffer %d", cb)
	}
	if !c.recording || c.inPass {
		d.stats.RecordingMisuse++
	}
	c.recording = false
	return nil
}

func (d *Device) Submit(info driver.SubmitInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return core.ErrDeviceLost
	}
	if info.CommandBuffer != 0 {
		c, ok := d.cmdbufs[info.CommandBuffer]
		if !ok {
			d.stats.InvalidHandles++
			return fmt.Errorf("null: submit of unknown command buffer %d", info.CommandBuffer)
		}
		if c.recording {
			d.stats.RecordingMisuse++
		}
	}
	if info.Wait != 0 {
		d.waitSemaphore(info.Wait)
	}
	if info.Signal != 0 {
		d.signalSemaphore(info.Signal)
	}
	d.stats.Submits++
	if info.Fence == 0 {
		return nil
	}
	if signaled, ok := d.fences[info.Fence]; !ok || signaled {
		d.stats.InvalidHandles++
		return fmt.Errorf("null: submit with unknown or signaled fence %d", info.Fence)
	}
	if d.manual {
		d.pending = append(d.pending, info.Fence)
	} else {
		d.signal(info.Fence)
	}
	return nil
}

// recording returns the command buffer if it is recording, counting misuse otherwise.
func (d *Device) recording(cb driver.CommandBuffer) *commandBuffer {
	c, ok := d.cmdbufs[cb]
	if !ok || !c.recording {
		d.stats.RecordingMisuse++
		return nil
	}
	return c
}

func (d *Device) CmdBeginRenderPass(cb driver.CommandBuffer, begin driver.RenderPassBegin) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.recording(cb)
	if c == nil {
		return
	}
	if _, ok := d.framebuffers[begin.Framebuffer]; !ok {
		d.stats.InvalidHandles++
	}
	if c.inPass {
		d.stats.RecordingMisuse++
	}
	c.inPass = true
}

func (d *Device) CmdEndRenderPass(cb driver.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.recording(cb)
	if c == nil {
		return
	}
	if !c.inPass {
		d.stats.RecordingMisuse++
	}
	c.inPass = false
}

func (d *Device) CmdBindPipeline(cb driver.CommandBuffer, p driver.Pipeline) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.recording(cb) == nil {
		return
	}
	if _, ok := d.pipelines[p]; !ok {
		d.stats.InvalidHandles++
	}
}

func (d *Device) CmdBindDescriptorSet(cb driver.CommandBuffer, p driver.Pipeline, s driver.DescriptorSet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.recording(cb) == nil {
		return
	}
	_, pok := d.pipelines[p]
	_, sok := d.sets[s]
	if !pok || !sok {
		d.stats.InvalidHandles++
	}
}

func (d *Device) CmdBindVertexBuffer(cb driver.CommandBuffer, b driver.Buffer, offset uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.recording(cb) == nil {
		return
	}
	if buf, ok := d.buffers[b]; !ok || offset >= buf.desc.Size {
		d.stats.InvalidHandles++
	}
}

func (d *Device) CmdSetViewport(cb driver.CommandBuffer, x, y, width, height float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recording(cb)
}

func (d *Device) CmdDraw(cb driver.CommandBuffer, vertexCount, instanceCount uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.recording(cb)
	if c == nil {
		return
	}
	if !c.inPass {
		d.stats.RecordingMisuse++
	}
	d.stats.Draws++
}
