package renderer

import (
	"fmt"
	"sort"

	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/math"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
	"github.com/alpqr/qvk6-sub001/engine/renderer/metadata"
)

type BindingType int

const (
	BindingUniformBuffer BindingType = iota
	BindingSampledTexture
)

// Binding references its resources without owning them. A zero Size binds
// the buffer from Offset to its end.
type Binding struct {
	Binding uint32
	Stages  metadata.ShaderStageFlags
	Type    BindingType
	Buffer  *Buffer
	Offset  uint64
	Size    uint64
	Texture *Texture
	Sampler *Sampler
}

func UniformBufferBinding(binding uint32, stages metadata.ShaderStageFlags, buf *Buffer, offset, size uint64) Binding {
	return Binding{Binding: binding, Stages: stages, Type: BindingUniformBuffer, Buffer: buf, Offset: offset, Size: size}
}

func SampledTextureBinding(binding uint32, stages metadata.ShaderStageFlags, tex *Texture, sampler *Sampler) Binding {
	return Binding{Binding: binding, Stages: stages, Type: BindingSampledTexture, Texture: tex, Sampler: sampler}
}

// generationSnapshot is what a slot's descriptor data was written against.
type generationSnapshot struct {
	primary   core.ResourceID
	gen       uint32
	secondary core.ResourceID
	gen2      uint32
}

func (b *Binding) snapshot() generationSnapshot {
	switch b.Type {
	case BindingUniformBuffer:
		return generationSnapshot{primary: b.Buffer.id, gen: b.Buffer.generation}
	default:
		return generationSnapshot{
			primary: b.Texture.id, gen: b.Texture.generation,
			secondary: b.Sampler.id, gen2: b.Sampler.generation,
		}
	}
}

type slotDescriptors struct {
	set       pooledSet
	allocated bool
	snapshots []generationSnapshot
}

// BindingTable is a set of shader resource bindings. Each frame slot owns
// its own native descriptor set, rewritten lazily when a referenced
// resource has been rebuilt since the set was last written.
type BindingTable struct {
	resourceBase
	bindings []Binding
	layout   driver.DescriptorSetLayout
	entries  []driver.LayoutBinding
	ubos     uint32
	samplers uint32
	slots    [core.MaxFramesInFlight]slotDescriptors
}

func (r *Renderer) NewBindingTable(name string, bindings ...Binding) *BindingTable {
	t := &BindingTable{}
	t.init(r, metadata.ResourceKindBindingTable, name)
	t.SetBindings(bindings...)
	return t
}

// SetBindings replaces the bindings. It takes effect at the next Build.
func (t *BindingTable) SetBindings(bindings ...Binding) {
	t.bindings = append([]Binding(nil), bindings...)
	sort.Slice(t.bindings, func(i, j int) bool { return t.bindings[i].Binding < t.bindings[j].Binding })
}

func (t *BindingTable) Bindings() []Binding { return t.bindings }

// Layout is the layout description the table was built with.
func (t *BindingTable) Layout() []driver.LayoutBinding { return t.entries }

func (t *BindingTable) Build() error {
	if err := t.rebuildable(t); err != nil {
		return err
	}
	r := t.r
	entries := make([]driver.LayoutBinding, 0, len(t.bindings))
	var ubos, samplers uint32
	for i := range t.bindings {
		b := &t.bindings[i]
		if i > 0 && t.bindings[i-1].Binding == b.Binding {
			return r.callerError(core.ErrInvalidBinding, "binding table %q has binding %d twice", t.name, b.Binding)
		}
		if b.Stages == 0 {
			return r.callerError(core.ErrInvalidBinding, "binding %d of %q is visible to no stage", b.Binding, t.name)
		}
		e := driver.LayoutBinding{Binding: b.Binding, Stages: b.Stages}
		switch b.Type {
		case BindingUniformBuffer:
			if b.Buffer == nil {
				return r.callerError(core.ErrInvalidBinding, "binding %d of %q has no buffer", b.Binding, t.name)
			}
			if b.Buffer.cfg.Usage&metadata.BufferUsageUniform == 0 {
				return r.callerError(core.ErrInvalidBinding, "binding %d of %q: buffer %q lacks uniform usage", b.Binding, t.name, b.Buffer.name)
			}
			if !math.IsAligned(b.Offset, r.limits.MinUniformBufferOffsetAlignment) {
				return r.callerError(core.ErrInvalidBinding, "binding %d of %q: offset %d not aligned to %d",
					b.Binding, t.name, b.Offset, r.limits.MinUniformBufferOffsetAlignment)
			}
			e.Type = driver.DescriptorTypeUniformBuffer
			ubos++
		case BindingSampledTexture:
			if b.Texture == nil || b.Sampler == nil {
				return r.callerError(core.ErrInvalidBinding, "binding %d of %q needs a texture and a sampler", b.Binding, t.name)
			}
			e.Type = driver.DescriptorTypeCombinedImageSampler
			samplers++
		default:
			return r.callerError(core.ErrInvalidBinding, "binding %d of %q has unknown type %d", b.Binding, t.name, b.Type)
		}
		entries = append(entries, e)
	}

	layout, err := r.dev.CreateDescriptorSetLayout(entries)
	if err != nil {
		return r.checkDevice(fmt.Errorf("failed to create layout for binding table %q: %w", t.name, err))
	}
	t.layout = layout
	t.entries = entries
	t.ubos, t.samplers = ubos, samplers
	t.slots = [core.MaxFramesInFlight]slotDescriptors{}
	t.markBuilt(t)
	return nil
}

// IsLayoutCompatible reports whether sets of t can be used with a pipeline
// built against other: same bindings, types and stage visibility.
func (t *BindingTable) IsLayoutCompatible(other []driver.LayoutBinding) bool {
	if len(t.entries) != len(other) {
		return false
	}
	for i := range t.entries {
		if t.entries[i] != other[i] {
			return false
		}
	}
	return true
}

// Materialize makes the native descriptor set of slot match the live
// generations of every bound resource and returns the number of
// descriptors written. Up-to-date sets cost nothing. A set whose slot
// still has a frame executing is not rewritten.
func (t *BindingTable) Materialize(slot int) (int, error) {
	r := t.r
	if !t.IsBuilt() {
		return 0, r.callerError(core.ErrNotBuilt, "materialize of binding table %q", t.name)
	}
	if slot < 0 || slot >= r.framesInFlight {
		return 0, r.callerError(core.ErrInvalidState, "materialize of %q for slot %d of %d", t.name, slot, r.framesInFlight)
	}
	live := make([]generationSnapshot, len(t.bindings))
	for i := range t.bindings {
		b := &t.bindings[i]
		if err := t.checkBinding(b); err != nil {
			return 0, err
		}
		live[i] = b.snapshot()
	}

	sd := &t.slots[slot]
	if !sd.allocated {
		set, err := r.pools.allocate(r.dev, t.layout, t.ubos, t.samplers)
		if err != nil {
			return 0, r.checkDevice(fmt.Errorf("failed to allocate descriptor set for %q: %w", t.name, err))
		}
		sd.set = set
		sd.allocated = true
		sd.snapshots = make([]generationSnapshot, len(t.bindings))
	}

	var writes []driver.DescriptorWrite
	for i := range t.bindings {
		if sd.snapshots[i] == live[i] {
			continue
		}
		writes = append(writes, t.descriptorWrite(&t.bindings[i], slot))
	}
	if len(writes) == 0 {
		return 0, nil
	}
	if r.slotInFlight(slot) {
		return 0, r.callerError(core.ErrResourceInUse, "materialize of %q for slot %d while its frame executes", t.name, slot)
	}
	r.dev.UpdateDescriptorSet(sd.set.set, writes)
	copy(sd.snapshots, live)
	return len(writes), nil
}

func (t *BindingTable) checkBinding(b *Binding) error {
	r := t.r
	switch b.Type {
	case BindingUniformBuffer:
		if !b.Buffer.IsBuilt() {
			return r.callerError(core.ErrNotBuilt, "buffer %q at binding %d of %q", b.Buffer.name, b.Binding, t.name)
		}
		if b.Offset+b.rangeSize() > b.Buffer.cfg.Size || b.Offset >= b.Buffer.cfg.Size {
			return r.callerError(core.ErrResourceLimit, "binding %d of %q: range %d+%d exceeds buffer %q of %d",
				b.Binding, t.name, b.Offset, b.rangeSize(), b.Buffer.name, b.Buffer.cfg.Size)
		}
	case BindingSampledTexture:
		if !b.Texture.IsBuilt() {
			return r.callerError(core.ErrNotBuilt, "texture %q at binding %d of %q", b.Texture.name, b.Binding, t.name)
		}
		if !b.Sampler.IsBuilt() {
			return r.callerError(core.ErrNotBuilt, "sampler %q at binding %d of %q", b.Sampler.name, b.Binding, t.name)
		}
	}
	return nil
}

func (b *Binding) rangeSize() uint64 {
	if b.Size != 0 {
		return b.Size
	}
	if b.Offset >= b.Buffer.cfg.Size {
		return 0
	}
	return b.Buffer.cfg.Size - b.Offset
}

func (t *BindingTable) descriptorWrite(b *Binding, slot int) driver.DescriptorWrite {
	if b.Type == BindingUniformBuffer {
		return driver.DescriptorWrite{
			Binding: b.Binding,
			Type:    driver.DescriptorTypeUniformBuffer,
			Buffer:  b.Buffer.Native(slot),
			Offset:  b.Offset,
			Range:   b.rangeSize(),
		}
	}
	return driver.DescriptorWrite{
		Binding: b.Binding,
		Type:    driver.DescriptorTypeCombinedImageSampler,
		Image:   b.Texture.image,
		Sampler: b.Sampler.native,
	}
}

// NativeSet returns the descriptor set of a slot, 0 until the slot was materialized.
func (t *BindingTable) NativeSet(slot int) driver.DescriptorSet {
	return t.slots[slot].set.set
}

// prepare materializes the current slot and marks everything bound as used
// by the current frame.
func (t *BindingTable) prepare(r *Renderer) error {
	slot := r.currentSlot
	if _, err := t.Materialize(slot); err != nil {
		return err
	}
	for i := range t.bindings {
		b := &t.bindings[i]
		switch b.Type {
		case BindingUniformBuffer:
			if err := b.Buffer.prepare(r, slot); err != nil {
				return err
			}
		case BindingSampledTexture:
			b.Texture.touch(r)
			b.Sampler.touch(r)
		}
	}
	t.touch(r)
	return nil
}

func (t *BindingTable) Release() error {
	proceed, err := t.beginRelease(t)
	if !proceed {
		return err
	}
	p := &bindingTableRelease{layout: t.layout, ubos: t.ubos, samplers: t.samplers}
	for i := range t.slots {
		if t.slots[i].allocated {
			p.sets = append(p.sets, t.slots[i].set)
		}
	}
	t.layout = 0
	t.slots = [core.MaxFramesInFlight]slotDescriptors{}
	return t.r.queueOwned(&t.resourceBase, p)
}
