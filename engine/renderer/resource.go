package renderer

import (
	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/renderer/metadata"
)

// Resource is implemented by every object the renderer builds natively.
type Resource interface {
	ID() core.ResourceID
	Name() string
	Kind() metadata.ResourceKind
	// Generation is bumped by every successful build. 0 means never built.
	Generation() uint32
	// LastActiveFrameSlot is the frame slot that last referenced the
	// resource, -1 if no command referenced it since it was built.
	LastActiveFrameSlot() int
	// LastActiveFrame is the serial of the frame that last referenced the resource.
	LastActiveFrame() uint64
	IsBuilt() bool
	Build() error
	Release() error

	base() *resourceBase
}

type resourceState int

const (
	stateUnbuilt resourceState = iota
	stateBuilt
	// stateReleasePending means the native handles sit in the release
	// queue and the resource has not been rebuilt since.
	stateReleasePending
)

type resourceBase struct {
	r               *Renderer
	id              core.ResourceID
	name            string
	kind            metadata.ResourceKind
	generation      uint32
	lastActiveSlot  int
	lastActiveFrame uint64
	state           resourceState
	// pending counts this resource's entries still in the release queue.
	pending int
	shared  *sharedRecord
}

func (b *resourceBase) init(r *Renderer, kind metadata.ResourceKind, name string) {
	b.r = r
	b.id = core.IdentifierAcquireNewID()
	b.kind = kind
	b.name = name
	b.lastActiveSlot = -1
}

func (b *resourceBase) ID() core.ResourceID         { return b.id }
func (b *resourceBase) Name() string                { return b.name }
func (b *resourceBase) Kind() metadata.ResourceKind { return b.kind }
func (b *resourceBase) Generation() uint32          { return b.generation }
func (b *resourceBase) LastActiveFrameSlot() int    { return b.lastActiveSlot }
func (b *resourceBase) LastActiveFrame() uint64     { return b.lastActiveFrame }
func (b *resourceBase) IsBuilt() bool               { return b.state == stateBuilt }
func (b *resourceBase) base() *resourceBase         { return b }

func (b *resourceBase) SetName(name string) { b.name = name }

// markBuilt records a successful build.
func (b *resourceBase) markBuilt(res Resource) {
	b.generation++
	b.state = stateBuilt
	b.lastActiveSlot = -1
	b.lastActiveFrame = 0
	b.r.track(res)
}

// beginRelease decides whether a release proceeds. It returns false for a
// resource that was never built and an error when the handles are already queued.
func (b *resourceBase) beginRelease(res Resource) (bool, error) {
	switch b.state {
	case stateUnbuilt:
		return false, nil
	case stateReleasePending:
		return false, b.r.callerError(core.ErrAlreadyReleased, "release of %s %q", b.kind, b.name)
	}
	b.state = stateReleasePending
	b.r.untrack(res)
	return true, nil
}

// reclaimed is called once one queued entry was destroyed. A resource that
// was rebuilt and released again stays pending until its last entry goes.
func (b *resourceBase) reclaimed() {
	b.pending--
	if b.pending == 0 && b.state == stateReleasePending {
		b.state = stateUnbuilt
	}
}

// touch records that the current frame of r references the resource.
// Frames of other instances sharing the resource are covered by their own
// unref entries and are not recorded here.
func (b *resourceBase) touch(r *Renderer) {
	if r != b.r || !r.inFrame() {
		return
	}
	b.lastActiveSlot = r.currentSlot
	b.lastActiveFrame = r.frameSerial
}

// rebuildable releases a built resource before it is built again.
func (b *resourceBase) rebuildable(res Resource) error {
	if b.state != stateBuilt {
		return nil
	}
	if b.shared != nil && b.r.shared.refCount(b.shared) > 1 {
		return b.r.callerError(core.ErrResourceInUse, "rebuild of %s %q while shared", b.kind, b.name)
	}
	return res.Release()
}
