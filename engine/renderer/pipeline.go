package renderer

import (
	"fmt"

	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
	"github.com/alpqr/qvk6-sub001/engine/renderer/metadata"
	"github.com/alpqr/qvk6-sub001/engine/renderer/shader"
)

type ShaderStage struct {
	Package *shader.Package
	Variant metadata.ShaderVariant
}

type GraphicsPipeline struct {
	resourceBase
	cfg    metadata.GraphicsPipelineConfig
	stages []ShaderStage
	table  *BindingTable
	rp     *RenderPassDescriptor
	layout []driver.LayoutBinding
	native driver.Pipeline
}

func (r *Renderer) NewGraphicsPipeline(cfg metadata.GraphicsPipelineConfig) *GraphicsPipeline {
	if cfg.SampleCount == 0 {
		cfg.SampleCount = 1
	}
	p := &GraphicsPipeline{cfg: cfg}
	p.init(r, metadata.ResourceKindGraphicsPipeline, cfg.Name)
	return p
}

func (p *GraphicsPipeline) Config() metadata.GraphicsPipelineConfig { return p.cfg }

func (p *GraphicsPipeline) SetShaderStages(stages ...ShaderStage) {
	p.stages = append([]ShaderStage(nil), stages...)
}

func (p *GraphicsPipeline) ShaderStages() []ShaderStage {
	return append([]ShaderStage(nil), p.stages...)
}

// SetBindingTableLayout sets the table whose layout the pipeline is built
// against. Any table with a compatible layout can be used with the pipeline.
func (p *GraphicsPipeline) SetBindingTableLayout(t *BindingTable) { p.table = t }

func (p *GraphicsPipeline) SetRenderPassDescriptor(rp *RenderPassDescriptor) { p.rp = rp }

// Layout is the binding layout the pipeline was built with.
func (p *GraphicsPipeline) Layout() []driver.LayoutBinding { return p.layout }

func (p *GraphicsPipeline) Native() driver.Pipeline { return p.native }

func sourceKind(b driver.Backend) (metadata.ShaderSourceKind, bool) {
	switch b {
	case driver.BackendVulkan:
		return metadata.ShaderSourceSPIRV, true
	}
	return 0, false
}

func (p *GraphicsPipeline) Build() error {
	if err := p.rebuildable(p); err != nil {
		return err
	}
	r := p.r
	if len(p.stages) == 0 {
		return r.callerError(core.ErrInvalidConfig, "pipeline %q has no shader stages", p.name)
	}
	if p.table == nil || !p.table.IsBuilt() {
		return r.callerError(core.ErrNotBuilt, "binding table layout of pipeline %q", p.name)
	}
	if p.rp == nil || !p.rp.IsBuilt() {
		return r.callerError(core.ErrNotBuilt, "render pass descriptor of pipeline %q", p.name)
	}

	layout := append([]driver.LayoutBinding(nil), p.table.entries...)
	modules := make([]driver.ShaderModuleDesc, 0, len(p.stages))
	hasVertex := false
	for _, st := range p.stages {
		if st.Package == nil {
			return r.callerError(core.ErrInvalidConfig, "pipeline %q has a stage without package", p.name)
		}
		hasVertex = hasVertex || st.Package.Stage == metadata.ShaderStageTypeVertex
		code, err := p.selectCode(st)
		if err != nil {
			return err
		}
		if err := p.checkReflection(st.Package, layout); err != nil {
			return err
		}
		modules = append(modules, driver.ShaderModuleDesc{Stage: st.Package.Stage, Code: code.Bytes, EntryPoint: code.EntryPoint})
	}
	if !hasVertex {
		return r.callerError(core.ErrInvalidConfig, "pipeline %q has no vertex stage", p.name)
	}

	h, err := r.dev.CreatePipeline(driver.PipelineDesc{
		Config:     p.cfg,
		Stages:     modules,
		Layout:     p.table.layout,
		RenderPass: p.rp.native,
	})
	if err != nil {
		return r.checkDevice(fmt.Errorf("failed to create pipeline %q: %w", p.name, err))
	}
	p.native = h
	p.layout = layout
	p.markBuilt(p)
	return nil
}

func (p *GraphicsPipeline) selectCode(st ShaderStage) (shader.Code, error) {
	r := p.r
	kind, strict := sourceKind(r.dev.Backend())
	if strict {
		code, ok := st.Package.Shader(shader.Key{Source: kind, Variant: st.Variant})
		if !ok {
			return shader.Code{}, r.callerError(core.ErrShaderNotFound, "%s stage of pipeline %q has no %s code",
				st.Package.Stage, p.name, kind)
		}
		return code, nil
	}
	for _, k := range st.Package.Keys() {
		if code, ok := st.Package.Shader(shader.Key{Source: k.Source, Version: k.Version, Variant: st.Variant}); ok {
			return code, nil
		}
	}
	return shader.Code{}, r.callerError(core.ErrShaderNotFound, "%s stage of pipeline %q is empty", st.Package.Stage, p.name)
}

// checkReflection verifies every resource the stage declares is present in
// the layout with the right type and visible to the stage.
func (p *GraphicsPipeline) checkReflection(pkg *shader.Package, layout []driver.LayoutBinding) error {
	stage := pkg.Stage.Flag()
	find := func(binding uint32, typ driver.DescriptorType) bool {
		for _, e := range layout {
			if e.Binding == binding && e.Type == typ && e.Stages&stage != 0 {
				return true
			}
		}
		return false
	}
	for _, ub := range pkg.Reflection.UniformBlocks {
		if !find(ub.Binding, driver.DescriptorTypeUniformBuffer) {
			return p.r.callerError(core.ErrLayoutMismatch, "uniform block %q at binding %d of the %s stage of %q",
				ub.Name, ub.Binding, pkg.Stage, p.name)
		}
	}
	for _, s := range pkg.Reflection.Samplers {
		if !find(s.Binding, driver.DescriptorTypeCombinedImageSampler) {
			return p.r.callerError(core.ErrLayoutMismatch, "sampler %q at binding %d of the %s stage of %q",
				s.Name, s.Binding, pkg.Stage, p.name)
		}
	}
	return nil
}

func (p *GraphicsPipeline) Release() error {
	proceed, err := p.beginRelease(p)
	if !proceed {
		return err
	}
	pr := &pipelineRelease{pipeline: p.native}
	p.native = 0
	return p.r.queueOwned(&p.resourceBase, pr)
}
