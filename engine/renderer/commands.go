package renderer

import (
	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
	"github.com/alpqr/qvk6-sub001/engine/renderer/metadata"
)

func (r *Renderer) cmd() driver.CommandBuffer { return r.slots[r.currentSlot].cmd }

func (r *Renderer) checkPass(op string) error {
	if r.deviceLost {
		return core.ErrDeviceLost
	}
	if r.state != FrameStatePassBegun {
		return r.callerError(core.ErrInvalidState, "%s in state %s", op, r.state)
	}
	return nil
}

// BeginPass starts rendering into rt. Texture render targets whose
// attachments were rebuilt are rebuilt first.
func (r *Renderer) BeginPass(rt RenderTarget, clear driver.ClearValue) error {
	if r.deviceLost {
		return core.ErrDeviceLost
	}
	if r.state != FrameStateFrameBegun && r.state != FrameStatePassEnded {
		return r.callerError(core.ErrInvalidState, "begin pass in state %s", r.state)
	}
	begin, err := rt.renderPassBegin(r)
	if err != nil {
		return err
	}
	begin.Clear = clear
	r.dev.CmdBeginRenderPass(r.cmd(), begin)
	r.state = FrameStatePassBegun
	r.passTarget = rt
	return nil
}

func (r *Renderer) EndPass() error {
	if err := r.checkPass("end pass"); err != nil {
		return err
	}
	r.dev.CmdEndRenderPass(r.cmd())
	r.state = FrameStatePassEnded
	r.pipeline = nil
	r.passTarget = nil
	return nil
}

// SetGraphicsPipeline binds p. Its render pass descriptor must be
// compatible with the one of the current pass.
func (r *Renderer) SetGraphicsPipeline(p *GraphicsPipeline) error {
	if err := r.checkPass("set pipeline"); err != nil {
		return err
	}
	if !p.IsBuilt() {
		return r.callerError(core.ErrNotBuilt, "bind of pipeline %q", p.name)
	}
	if rp := r.passTarget.RenderPassDescriptor(); rp == nil || !p.rp.IsCompatible(rp) {
		return r.callerError(core.ErrLayoutMismatch, "pipeline %q used with an incompatible render pass", p.name)
	}
	r.dev.CmdBindPipeline(r.cmd(), p.native)
	p.touch(r)
	r.pipeline = p
	return nil
}

// SetBindingTable makes t current for the bound pipeline. The descriptor
// set of the current slot is rewritten first if anything it references
// was rebuilt.
func (r *Renderer) SetBindingTable(t *BindingTable) error {
	if err := r.checkPass("set binding table"); err != nil {
		return err
	}
	if r.pipeline == nil {
		return r.callerError(core.ErrInvalidState, "binding table %q set without a pipeline", t.name)
	}
	if !t.IsBuilt() {
		return r.callerError(core.ErrNotBuilt, "bind of binding table %q", t.name)
	}
	if !t.IsLayoutCompatible(r.pipeline.layout) {
		return r.callerError(core.ErrLayoutMismatch, "binding table %q with pipeline %q", t.name, r.pipeline.name)
	}
	if err := t.prepare(r); err != nil {
		return err
	}
	r.dev.CmdBindDescriptorSet(r.cmd(), r.pipeline.native, t.NativeSet(r.currentSlot))
	return nil
}

func (r *Renderer) SetVertexInput(buf *Buffer, offset uint64) error {
	if err := r.checkPass("set vertex input"); err != nil {
		return err
	}
	if !buf.IsBuilt() {
		return r.callerError(core.ErrNotBuilt, "vertex input %q", buf.name)
	}
	if buf.cfg.Usage&metadata.BufferUsageVertex == 0 {
		return r.callerError(core.ErrInvalidConfig, "buffer %q is not a vertex buffer", buf.name)
	}
	if err := buf.prepare(r, r.currentSlot); err != nil {
		return err
	}
	r.dev.CmdBindVertexBuffer(r.cmd(), buf.Native(r.currentSlot), offset)
	return nil
}

func (r *Renderer) SetViewport(x, y, width, height float32) error {
	if err := r.checkPass("set viewport"); err != nil {
		return err
	}
	r.dev.CmdSetViewport(r.cmd(), x, y, width, height)
	return nil
}

func (r *Renderer) Draw(vertexCount, instanceCount uint32) error {
	if err := r.checkPass("draw"); err != nil {
		return err
	}
	if r.pipeline == nil {
		return r.callerError(core.ErrInvalidState, "draw without a pipeline")
	}
	if instanceCount == 0 {
		instanceCount = 1
	}
	r.dev.CmdDraw(r.cmd(), vertexCount, instanceCount)
	return nil
}
