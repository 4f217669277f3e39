package vulkan

import (
	"fmt"

	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
	"github.com/alpqr/qvk6-sub001/engine/renderer/metadata"
	vk "github.com/goki/vulkan"
)

// CreateRenderPass builds a single-subpass pass. Colors are cleared and
// stored; non-presentable colors end up ready for sampling.
func (d *Device) CreateRenderPass(desc driver.RenderPassDesc) (driver.RenderPass, error) {
	attachments := make([]vk.AttachmentDescription, 0, len(desc.Colors)+1)
	colorRefs := make([]vk.AttachmentReference, 0, len(desc.Colors))

	for _, c := range desc.Colors {
		finalLayout := vk.ImageLayoutShaderReadOnlyOptimal
		if c.Present {
			finalLayout = vk.ImageLayoutPresentSrc
		}
		colorRefs = append(colorRefs, vk.AttachmentReference{
			Attachment: uint32(len(attachments)),
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		})
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         toVkFormat(c.Format),
			Samples:        sampleCount(c.SampleCount),
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    finalLayout,
		})
	}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(len(colorRefs)),
		PColorAttachments:    colorRefs,
	}

	if desc.Depth.Format != metadata.TextureFormatUnknown {
		depthRef := vk.AttachmentReference{
			Attachment: uint32(len(attachments)),
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         d.depthFormatFor(desc.Depth.Format),
			Samples:        sampleCount(desc.Depth.SampleCount),
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpClear,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &depthRef
	}

	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit | vk.PipelineStageEarlyFragmentTestsBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit | vk.AccessColorAttachmentWriteBit | vk.AccessDepthStencilAttachmentWriteBit),
	}

	var rp vk.RenderPass
	res := vk.CreateRenderPass(d.device, &vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}, nil, &rp)
	if err := d.check("vkCreateRenderPass", res); err != nil {
		return 0, err
	}
	return d.renderPasses.add(&renderPass{
		handle: rp,
		colors: len(desc.Colors),
		depth:  desc.Depth.Format != metadata.TextureFormatUnknown,
	}), nil
}

func (d *Device) DestroyRenderPass(h driver.RenderPass) {
	if rp, ok := d.renderPasses.remove(h); ok {
		vk.DestroyRenderPass(d.device, rp.handle, nil)
	}
}

func (d *Device) CreateFramebuffer(desc driver.FramebufferDesc) (driver.Framebuffer, error) {
	rp, ok := d.renderPasses.get(desc.RenderPass)
	if !ok {
		return 0, fmt.Errorf("framebuffer for unknown render pass %d", desc.RenderPass)
	}
	views := make([]vk.ImageView, len(desc.Attachments))
	for i, a := range desc.Attachments {
		img, ok := d.images.get(a)
		if !ok || img.view == nil {
			return 0, fmt.Errorf("framebuffer attachment %d has no view", a)
		}
		views[i] = img.view
	}
	var fb vk.Framebuffer
	res := vk.CreateFramebuffer(d.device, &vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      rp.handle,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           desc.Width,
		Height:          desc.Height,
		Layers:          1,
	}, nil, &fb)
	if err := d.check("vkCreateFramebuffer", res); err != nil {
		return 0, err
	}
	return d.framebuffers.add(fb), nil
}

func (d *Device) DestroyFramebuffer(h driver.Framebuffer) {
	if fb, ok := d.framebuffers.remove(h); ok {
		vk.DestroyFramebuffer(d.device, fb, nil)
	}
}

func (d *Device) CmdBeginRenderPass(ch driver.CommandBuffer, begin driver.RenderPassBegin) {
	cb, ok := d.cmdbufs.get(ch)
	if !ok {
		return
	}
	rp, ok := d.renderPasses.get(begin.RenderPass)
	if !ok {
		return
	}
	fb, ok := d.framebuffers.get(begin.Framebuffer)
	if !ok {
		return
	}

	clearValues := make([]vk.ClearValue, rp.colors, rp.colors+1)
	for i := range clearValues {
		clearValues[i].SetColor(begin.Clear.Color[:])
	}
	if rp.depth {
		var ds vk.ClearValue
		ds.SetDepthStencil(begin.Clear.Depth, begin.Clear.Stencil)
		clearValues = append(clearValues, ds)
	}

	vk.CmdBeginRenderPass(cb, &vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp.handle,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: vk.Extent2D{Width: begin.Width, Height: begin.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}, vk.SubpassContentsInline)
}

func (d *Device) CmdEndRenderPass(ch driver.CommandBuffer) {
	if cb, ok := d.cmdbufs.get(ch); ok {
		vk.CmdEndRenderPass(cb)
	}
}
