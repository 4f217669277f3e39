package renderer

import (
	"errors"
	"fmt"

	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
)

type descriptorPool struct {
	handle     driver.DescriptorPool
	activeSets uint32
	ubos       uint32
	samplers   uint32
}

// descriptorPoolRegistry only grows. Pools are destroyed at teardown.
type descriptorPoolRegistry struct {
	capacity driver.PoolCapacity
	pools    []*descriptorPool
}

// pooledSet is a descriptor set together with the pool it came from.
type pooledSet struct {
	pool int
	set  driver.DescriptorSet
}

func (reg *descriptorPoolRegistry) fits(p *descriptorPool, ubos, samplers uint32) bool {
	return p.activeSets+1 <= reg.capacity.MaxSets &&
		p.ubos+ubos <= reg.capacity.UniformBuffers &&
		p.samplers+samplers <= reg.capacity.CombinedImageSamplers
}

// allocate takes a set from the first pool with room, appending a new pool
// when every existing one is exhausted.
func (reg *descriptorPoolRegistry) allocate(dev driver.Device, layout driver.DescriptorSetLayout, ubos, samplers uint32) (pooledSet, error) {
	if ubos > reg.capacity.UniformBuffers || samplers > reg.capacity.CombinedImageSamplers {
		return pooledSet{}, fmt.Errorf("%w: set needs %d uniform buffers and %d samplers, pools hold %d and %d",
			core.ErrResourceLimit, ubos, samplers, reg.capacity.UniformBuffers, reg.capacity.CombinedImageSamplers)
	}
	for i, p := range reg.pools {
		if !reg.fits(p, ubos, samplers) {
			continue
		}
		set, err := dev.AllocateDescriptorSet(p.handle, layout)
		if errors.Is(err, driver.ErrPoolExhausted) {
			continue
		}
		if err != nil {
			return pooledSet{}, err
		}
		reg.account(p, ubos, samplers)
		return pooledSet{pool: i, set: set}, nil
	}

	handle, err := dev.CreateDescriptorPool(reg.capacity)
	if err != nil {
		return pooledSet{}, fmt.Errorf("failed to create descriptor pool: %w", err)
	}
	p := &descriptorPool{handle: handle}
	reg.pools = append(reg.pools, p)
	core.LogDebug("descriptor pool %d created", len(reg.pools)-1)

	set, err := dev.AllocateDescriptorSet(handle, layout)
	if errors.Is(err, driver.ErrPoolExhausted) {
		return pooledSet{}, fmt.Errorf("%w: set does not fit an empty descriptor pool", core.ErrResourceLimit)
	}
	if err != nil {
		return pooledSet{}, err
	}
	reg.account(p, ubos, samplers)
	return pooledSet{pool: len(reg.pools) - 1, set: set}, nil
}

func (reg *descriptorPoolRegistry) account(p *descriptorPool, ubos, samplers uint32) {
	p.activeSets++
	p.ubos += ubos
	p.samplers += samplers
}

func (reg *descriptorPoolRegistry) free(dev driver.Device, s pooledSet, ubos, samplers uint32) {
	if s.pool >= len(reg.pools) {
		return
	}
	p := reg.pools[s.pool]
	dev.FreeDescriptorSet(p.handle, s.set)
	p.activeSets--
	p.ubos -= ubos
	p.samplers -= samplers
}

func (reg *descriptorPoolRegistry) destroy(dev driver.Device) {
	for _, p := range reg.pools {
		dev.DestroyDescriptorPool(p.handle)
	}
	reg.pools = nil
}
