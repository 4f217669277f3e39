package renderer

import (
	"fmt"

	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
	"github.com/alpqr/qvk6-sub001/engine/renderer/metadata"
)

// Buffer is a vertex, index, uniform or storage buffer. Dynamic buffers own
// one native buffer per frame slot and apply updates to a slot the first
// time that slot uses the buffer.
type Buffer struct {
	resourceBase
	cfg     metadata.BufferConfig
	count   int
	native  [core.MaxFramesInFlight]driver.Buffer
	allocs  [core.MaxFramesInFlight]driver.Allocation
	shadow  []byte
	pending [core.MaxFramesInFlight]bool
}

func (r *Renderer) NewBuffer(cfg metadata.BufferConfig) *Buffer {
	b := &Buffer{cfg: cfg}
	b.init(r, metadata.ResourceKindBuffer, cfg.Name)
	return b
}

func (b *Buffer) Config() metadata.BufferConfig { return b.cfg }

func (b *Buffer) Size() uint64 { return b.cfg.Size }

// SetSize changes the logical size. It takes effect at the next Build.
func (b *Buffer) SetSize(size uint64) { b.cfg.Size = size }

func (b *Buffer) Build() error {
	if err := b.rebuildable(b); err != nil {
		return err
	}
	r := b.r
	if b.cfg.Size == 0 {
		return r.callerError(core.ErrInvalidConfig, "buffer %q has zero size", b.name)
	}
	if b.cfg.Size > r.limits.MaxBufferSize {
		return r.callerError(core.ErrResourceLimit, "buffer %q size %d exceeds %d", b.name, b.cfg.Size, r.limits.MaxBufferSize)
	}

	count := 1
	if b.cfg.Type == metadata.BufferTypeDynamic {
		count = r.framesInFlight
	}
	for i := 0; i < count; i++ {
		buf, alloc, err := r.createNativeBuffer(b.cfg)
		if err != nil {
			for j := 0; j < i; j++ {
				r.dev.DestroyBuffer(b.native[j])
				r.alloc.Free(b.allocs[j])
			}
			b.native, b.allocs = [core.MaxFramesInFlight]driver.Buffer{}, [core.MaxFramesInFlight]driver.Allocation{}
			return r.checkDevice(fmt.Errorf("failed to create buffer %q: %w", b.name, err))
		}
		b.native[i], b.allocs[i] = buf, alloc
	}
	b.count = count
	if b.cfg.Type == metadata.BufferTypeDynamic {
		shadow := make([]byte, b.cfg.Size)
		copy(shadow, b.shadow)
		b.shadow = shadow
		for i := 0; i < count; i++ {
			b.pending[i] = true
		}
	}
	b.markBuilt(b)
	return nil
}

func (r *Renderer) createNativeBuffer(cfg metadata.BufferConfig) (driver.Buffer, driver.Allocation, error) {
	buf, req, err := r.dev.CreateBuffer(driver.BufferDesc{Size: cfg.Size, Usage: cfg.Usage, HostVisible: true})
	if err != nil {
		return 0, 0, err
	}
	alloc, err := r.alloc.Allocate(req, driver.MemoryUsageCPUToGPU)
	if err != nil {
		r.dev.DestroyBuffer(buf)
		return 0, 0, err
	}
	if err := r.dev.BindBufferMemory(buf, alloc); err != nil {
		r.dev.DestroyBuffer(buf)
		r.alloc.Free(alloc)
		return 0, 0, err
	}
	return buf, alloc, nil
}

// Update writes data at offset. Immutable buffers accept updates only before
// their first use, static buffers only while no in-flight frame references them.
func (b *Buffer) Update(offset uint64, data []byte) error {
	r := b.r
	if !b.IsBuilt() {
		return r.callerError(core.ErrNotBuilt, "update of buffer %q", b.name)
	}
	if offset+uint64(len(data)) > b.cfg.Size {
		return r.callerError(core.ErrResourceLimit, "update of %d bytes at %d overflows buffer %q of %d",
			len(data), offset, b.name, b.cfg.Size)
	}
	switch b.cfg.Type {
	case metadata.BufferTypeDynamic:
		copy(b.shadow[offset:], data)
		for i := 0; i < b.count; i++ {
			b.pending[i] = true
		}
		return nil
	case metadata.BufferTypeImmutable:
		if b.lastActiveFrame != 0 {
			return r.callerError(core.ErrImmutable, "update of buffer %q", b.name)
		}
	case metadata.BufferTypeStatic:
		if b.lastActiveFrame > r.completedSerial {
			return r.callerError(core.ErrResourceInUse, "update of static buffer %q", b.name)
		}
	}
	return b.write(0, offset, data)
}

func (b *Buffer) write(i int, offset uint64, data []byte) error {
	mem, err := b.r.alloc.Map(b.allocs[i])
	if err != nil {
		return fmt.Errorf("failed to map buffer %q: %w", b.name, err)
	}
	copy(mem[offset:], data)
	b.r.alloc.Unmap(b.allocs[i])
	return nil
}

// prepare applies pending dynamic updates for the slot and marks the buffer used by the current frame.
func (b *Buffer) prepare(r *Renderer, slot int) error {
	b.touch(r)
	if b.cfg.Type != metadata.BufferTypeDynamic || !b.pending[slot] {
		return nil
	}
	if err := b.write(slot, 0, b.shadow); err != nil {
		return err
	}
	b.pending[slot] = false
	return nil
}

func (b *Buffer) slotIndex(slot int) int {
	if b.count == 1 {
		return 0
	}
	return slot
}

// Native returns the native buffer a frame slot uses.
func (b *Buffer) Native(slot int) driver.Buffer {
	return b.native[b.slotIndex(slot)]
}

func (b *Buffer) Release() error {
	proceed, err := b.beginRelease(b)
	if !proceed {
		return err
	}
	p := &bufferRelease{
		buffers: append([]driver.Buffer(nil), b.native[:b.count]...),
		allocs:  append([]driver.Allocation(nil), b.allocs[:b.count]...),
	}
	b.native, b.allocs = [core.MaxFramesInFlight]driver.Buffer{}, [core.MaxFramesInFlight]driver.Allocation{}
	b.count = 0
	return b.r.queueOwned(&b.resourceBase, p)
}
