package renderer

import (
	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
	"github.com/alpqr/qvk6-sub001/engine/renderer/metadata"
)

type readback struct {
	// frame must be complete before the memory reflects what the GPU saw.
	frame  uint64
	alloc  driver.Allocation
	name   string
	offset uint64
	size   uint64
	// data, when set, is the result: host updates no frame has applied yet.
	data []byte
	done func([]byte, error)
}

// ReadBuffer copies size bytes at offset out of buf once the frame that
// last used it has finished. done runs on the renderer's goroutine from
// BeginFrame, EndOffscreenFrame, Finish or Destroy. Outside a frame a
// dynamic buffer is read from the copy of the most recent frame, or from
// its host data when updates were made since.
func (r *Renderer) ReadBuffer(buf *Buffer, offset, size uint64, done func([]byte, error)) error {
	if r.deviceLost {
		return core.ErrDeviceLost
	}
	if !buf.IsBuilt() {
		return r.callerError(core.ErrNotBuilt, "readback of buffer %q", buf.name)
	}
	if size == 0 && offset < buf.cfg.Size {
		size = buf.cfg.Size - offset
	}
	if offset >= buf.cfg.Size || offset+size > buf.cfg.Size {
		return r.callerError(core.ErrResourceLimit, "readback of %d bytes at %d from buffer %q of %d",
			size, offset, buf.name, buf.cfg.Size)
	}
	if r.readbacks.IsFull() {
		return r.callerError(core.ErrResourceLimit, "%d readbacks already pending", r.readbacks.Len())
	}

	rb := &readback{frame: r.frameSerial, name: buf.name, offset: offset, size: size, done: done}
	slot := r.currentSlot
	if buf.cfg.Type == metadata.BufferTypeDynamic {
		if r.inFrame() {
			if err := buf.prepare(r, slot); err != nil {
				return err
			}
		} else {
			slot = (slot + r.framesInFlight - 1) % r.framesInFlight
			if buf.pending[slot] {
				rb.data = make([]byte, size)
				copy(rb.data, buf.shadow[offset:offset+size])
			}
		}
	} else {
		buf.touch(r)
	}
	rb.alloc = buf.allocs[buf.slotIndex(slot)]
	return r.readbacks.Enqueue(rb)
}

// ReadBufferSync reads outside a frame and blocks until the data is available.
func (r *Renderer) ReadBufferSync(buf *Buffer, offset, size uint64) ([]byte, error) {
	if r.inFrame() {
		return nil, r.callerError(core.ErrInvalidState, "synchronous readback inside a frame")
	}
	var (
		data    []byte
		readErr error
	)
	if err := r.ReadBuffer(buf, offset, size, func(b []byte, err error) { data, readErr = b, err }); err != nil {
		return nil, err
	}
	if err := r.Finish(); err != nil {
		return nil, err
	}
	return data, readErr
}

// PendingReadbacks is the number of readbacks waiting for their frame.
func (r *Renderer) PendingReadbacks() int { return r.readbacks.Len() }

// completeReadbacks runs before deferred releases so that the memory of a
// buffer released in the same frame is still alive.
func (r *Renderer) completeReadbacks() {
	for {
		rb, err := r.readbacks.Peek()
		if err != nil || rb.frame > r.completedSerial {
			return
		}
		_, _ = r.readbacks.Dequeue()
		if rb.data != nil {
			rb.done(rb.data, nil)
			continue
		}
		mem, err := r.alloc.Map(rb.alloc)
		if err != nil {
			core.LogError("failed to map buffer %q for readback: %s", rb.name, err.Error())
			rb.done(nil, err)
			continue
		}
		data := make([]byte, rb.size)
		copy(data, mem[rb.offset:rb.offset+rb.size])
		r.alloc.Unmap(rb.alloc)
		rb.done(data, nil)
	}
}

// failReadbacks completes every pending readback with err.
func (r *Renderer) failReadbacks(err error) {
	for !r.readbacks.IsEmpty() {
		rb, _ := r.readbacks.Dequeue()
		rb.done(nil, err)
	}
}
