package renderer

import (
	"fmt"

	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
	"github.com/alpqr/qvk6-sub001/engine/renderer/metadata"
)

type Sampler struct {
	resourceBase
	cfg    metadata.SamplerConfig
	native driver.Sampler
}

func (r *Renderer) NewSampler(cfg metadata.SamplerConfig) *Sampler {
	s := &Sampler{cfg: cfg}
	s.init(r, metadata.ResourceKindSampler, cfg.Name)
	return s
}

func (s *Sampler) Config() metadata.SamplerConfig { return s.cfg }

func (s *Sampler) Native() driver.Sampler { return s.native }

func (s *Sampler) Build() error {
	if err := s.rebuildable(s); err != nil {
		return err
	}
	h, err := s.r.dev.CreateSampler(s.cfg)
	if err != nil {
		return s.r.checkDevice(fmt.Errorf("failed to create sampler %q: %w", s.name, err))
	}
	s.native = h
	s.markBuilt(s)
	return nil
}

func (s *Sampler) Release() error {
	proceed, err := s.beginRelease(s)
	if !proceed {
		return err
	}
	p := &samplerRelease{sampler: s.native}
	s.native = 0
	return s.r.queueOwned(&s.resourceBase, p)
}
