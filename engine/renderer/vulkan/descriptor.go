package vulkan

import (
	"fmt"

	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
	vk "github.com/goki/vulkan"
)

func (d *Device) CreateDescriptorSetLayout(bindings []driver.LayoutBinding) (driver.DescriptorSetLayout, error) {
	binds := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	for i, b := range bindings {
		binds[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  descriptorType(b.Type),
			DescriptorCount: 1,
			StageFlags:      stageFlags(b.Stages),
		}
	}
	var layout vk.DescriptorSetLayout
	res := vk.CreateDescriptorSetLayout(d.device, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(binds)),
		PBindings:    binds,
	}, nil, &layout)
	if err := d.check("vkCreateDescriptorSetLayout", res); err != nil {
		return 0, err
	}
	return d.layouts.add(layout), nil
}

func (d *Device) DestroyDescriptorSetLayout(h driver.DescriptorSetLayout) {
	if l, ok := d.layouts.remove(h); ok {
		vk.DestroyDescriptorSetLayout(d.device, l, nil)
	}
}

func (d *Device) CreateDescriptorPool(capacity driver.PoolCapacity) (driver.DescriptorPool, error) {
	sizes := []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: capacity.UniformBuffers},
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: capacity.CombinedImageSamplers},
	}
	var p vk.DescriptorPool
	res := vk.CreateDescriptorPool(d.device, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       capacity.MaxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}, nil, &p)
	if err := d.check("vkCreateDescriptorPool", res); err != nil {
		return 0, err
	}
	return d.pools.add(p), nil
}

func (d *Device) DestroyDescriptorPool(h driver.DescriptorPool) {
	p, ok := d.pools.remove(h)
	if !ok {
		return
	}
	// Sets die with their pool.
	d.sets.removeFunc(func(s *set) bool { return s.pool == h })
	vk.DestroyDescriptorPool(d.device, p, nil)
}

// AllocateDescriptorSet returns driver.ErrPoolExhausted when the pool is out of
// sets or descriptors.
func (d *Device) AllocateDescriptorSet(ph driver.DescriptorPool, lh driver.DescriptorSetLayout) (driver.DescriptorSet, error) {
	p, ok := d.pools.get(ph)
	if !ok {
		return 0, fmt.Errorf("allocate from unknown pool %d", ph)
	}
	l, ok := d.layouts.get(lh)
	if !ok {
		return 0, fmt.Errorf("allocate with unknown layout %d", lh)
	}
	var s vk.DescriptorSet
	err := d.locks.SafeCall(DescriptorManagement, func() error {
		res := vk.AllocateDescriptorSets(d.device, &vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     p,
			DescriptorSetCount: 1,
			PSetLayouts:        []vk.DescriptorSetLayout{l},
		}, &s)
		return d.check("vkAllocateDescriptorSets", res)
	})
	if err != nil {
		return 0, err
	}
	return d.sets.add(&set{handle: s, pool: ph}), nil
}

func (d *Device) FreeDescriptorSet(ph driver.DescriptorPool, sh driver.DescriptorSet) {
	s, ok := d.sets.remove(sh)
	if !ok {
		return
	}
	p, ok := d.pools.get(ph)
	if !ok {
		return
	}
	d.locks.SafeCall(DescriptorManagement, func() error {
		return d.check("vkFreeDescriptorSets", vk.FreeDescriptorSets(d.device, p, 1, &s.handle))
	})
}

func (d *Device) UpdateDescriptorSet(sh driver.DescriptorSet, writes []driver.DescriptorWrite) {
	s, ok := d.sets.get(sh)
	if !ok {
		return
	}
	vkWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		write := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          s.handle,
			DstBinding:      w.Binding,
			DescriptorCount: 1,
			DescriptorType:  descriptorType(w.Type),
		}
		switch w.Type {
		case driver.DescriptorTypeUniformBuffer:
			buf, ok := d.buffers.get(w.Buffer)
			if !ok {
				continue
			}
			write.PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: buf.handle,
				Offset: vk.DeviceSize(w.Offset),
				Range:  vk.DeviceSize(w.Range),
			}}
		case driver.DescriptorTypeCombinedImageSampler:
			img, ok := d.images.get(w.Image)
			if !ok {
				continue
			}
			smp, ok := d.samplers.get(w.Sampler)
			if !ok {
				continue
			}
			write.PImageInfo = []vk.DescriptorImageInfo{{
				Sampler:     smp,
				ImageView:   img.view,
				ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			}}
		}
		vkWrites = append(vkWrites, write)
	}
	if len(vkWrites) > 0 {
		vk.UpdateDescriptorSets(d.device, uint32(len(vkWrites)), vkWrites, 0, nil)
	}
}
