package null

import (
	"fmt"

	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
)

func (d *Device) CreateDescriptorSetLayout(bindings []driver.LayoutBinding) (driver.DescriptorSetLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return 0, core.ErrDeviceLost
	}
	h := driver.DescriptorSetLayout(d.handle())
	d.layouts[h] = append([]driver.LayoutBinding(nil), bindings...)
	d.stats.LayoutsCreated++
	return h, nil
}

func (d *Device) DestroyDescriptorSetLayout(l driver.DescriptorSetLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.layouts[l]; !ok {
		d.stats.InvalidHandles++
		return
	}
	delete(d.layouts, l)
	d.stats.LayoutsDestroyed++
}

func (d *Device) CreateDescriptorPool(capacity driver.PoolCapacity) (driver.DescriptorPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return 0, core.ErrDeviceLost
	}
	h := driver.DescriptorPool(d.handle())
	d.pools[h] = &pool{capacity: capacity}
	d.stats.DescriptorPoolsCreated++
	return h, nil
}

// DestroyDescriptorPool also frees every set still allocated from the pool.
func (d *Device) DestroyDescriptorPool(p driver.DescriptorPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pools[p]; !ok {
		d.stats.InvalidHandles++
		return
	}
	for h, s := range d.sets {
		if s.pool == p {
			delete(d.sets, h)
		}
	}
	delete(d.pools, p)
	d.stats.DescriptorPoolsDestroyed++
}

func (d *Device) AllocateDescriptorSet(p driver.DescriptorPool, l driver.DescriptorSetLayout) (driver.DescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return 0, core.ErrDeviceLost
	}
	pl, ok := d.pools[p]
	bindings, lok := d.layouts[l]
	if !ok || !lok {
		d.stats.InvalidHandles++
		return 0, fmt.Errorf("null: allocate from unknown pool %d or layout %d", p, l)
	}
	ubos, samplers := countBindings(bindings)
	if pl.sets+1 > pl.capacity.MaxSets ||
		pl.ubos+ubos > pl.capacity.UniformBuffers ||
		pl.samplers+samplers > pl.capacity.CombinedImageSamplers {
		return 0, driver.ErrPoolExhausted
	}
	pl.sets++
	pl.ubos += ubos
	pl.samplers += samplers
	h := driver.DescriptorSet(d.handle())
	d.sets[h] = &set{pool: p, layout: l, writes: make(map[uint32]driver.DescriptorWrite)}
	d.stats.DescriptorSetsAllocated++
	return h, nil
}

func (d *Device) FreeDescriptorSet(p driver.DescriptorPool, s driver.DescriptorSet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.sets[s]
	if !ok || st.pool != p {
		d.stats.InvalidHandles++
		return
	}
	if pl, ok := d.pools[p]; ok {
		ubos, samplers := countBindings(d.layouts[st.layout])
		pl.sets--
		pl.ubos -= ubos
		pl.samplers -= samplers
	}
	delete(d.sets, s)
	d.stats.DescriptorSetsFreed++
}

func (d *Device) UpdateDescriptorSet(s driver.DescriptorSet, writes []driver.DescriptorWrite) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.sets[s]
	if !ok {
		d.stats.InvalidHandles++
		return
	}
	for _, w := range writes {
		switch w.Type {
		case driver.DescriptorTypeUniformBuffer:
			if _, ok := d.buffers[w.Buffer]; !ok {
				d.stats.InvalidHandles++
			}
		case driver.DescriptorTypeCombinedImageSampler:
			_, iok := d.images[w.Image]
			_, sok := d.samplers[w.Sampler]
			if !iok || !sok {
				d.stats.InvalidHandles++
			}
		}
		st.writes[w.Binding] = w
	}
	d.stats.DescriptorWrites += len(writes)
}

func countBindings(bindings []driver.LayoutBinding) (ubos, samplers uint32) {
	for _, b := range bindings {
		switch b.Type {
		case driver.DescriptorTypeUniformBuffer:
			ubos++
		case driver.DescriptorTypeCombinedImageSampler:
			samplers++
		}
	}
	return ubos, samplers
}
