package renderer

import (
	"sync"

	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
)

// SharedContext lets several Renderers on one device use the same sharable
// resources. It must be created before the instances and passed to each of
// them. It is safe for concurrent use.
type SharedContext struct {
	mu  sync.Mutex
	dev driver.Device
}

// sharedRecord counts the holders of one build of a sharable resource. The
// creator's release parks the native payload here; whoever drops the last
// reference destroys it.
type sharedRecord struct {
	id      core.ResourceID
	refs    int
	payload releasePayload
	// destroyed runs after the payload of the last reference was destroyed.
	destroyed func(*sharedRecord)
}

func NewSharedContext(dev driver.Device) *SharedContext {
	return &SharedContext{dev: dev}
}

func (s *SharedContext) Device() driver.Device { return s.dev }

// register starts counting a fresh build on behalf of its creator.
func (s *SharedContext) register(id core.ResourceID, destroyed func(*sharedRecord)) *sharedRecord {
	return &sharedRecord{id: id, refs: 1, destroyed: destroyed}
}

func (s *SharedContext) retain(rec *sharedRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.refs++
}

func (s *SharedContext) park(rec *sharedRecord, p releasePayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.payload = p
}

// unref drops one reference and returns the payload to destroy when it was the last one.
func (s *SharedContext) unref(rec *sharedRecord) releasePayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.refs--
	if rec.refs > 0 {
		return nil
	}
	p := rec.payload
	rec.payload = nil
	return p
}

func (s *SharedContext) refCount(rec *sharedRecord) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return rec.refs
}

// RefCount is the number of holders of the current build of res, 0 when
// the resource is not shared.
func (s *SharedContext) RefCount(res Resource) int {
	rec := res.base().shared
	if rec == nil {
		return 0
	}
	return s.refCount(rec)
}

// sharedRelease is one holder's reference, dropped once that holder's frames are done.
type sharedRelease struct {
	rec *sharedRecord
	ctx *SharedContext
}

func (p *sharedRelease) destroy(r *Renderer) {
	payload := p.ctx.unref(p.rec)
	if payload == nil {
		return
	}
	payload.destroy(r)
	if p.rec.destroyed != nil {
		p.rec.destroyed(p.rec)
	}
}

// keys returns nothing: every holder queues its own entry for the same handles.
func (p *sharedRelease) keys() []releaseKey { return nil }

// queueOwned queues the native payload of a resource, or its creator's
// reference when the resource is shared.
func (r *Renderer) queueOwned(owner *resourceBase, p releasePayload) error {
	if owner.shared == nil {
		return r.queueRelease(owner, p)
	}
	rec := owner.shared
	owner.shared = nil
	r.shared.park(rec, p)
	return r.queueRelease(owner, &sharedRelease{rec: rec, ctx: r.shared})
}

// Share makes res, created by another instance of the same shared context,
// usable by r until Unshare.
func (r *Renderer) Share(res Resource) error {
	b := res.base()
	if r.shared == nil || b.r.shared != r.shared || b.r == r {
		return r.callerError(core.ErrIncompatibleShare, "share of %s %q", b.kind, b.name)
	}
	if b.shared == nil || !b.IsBuilt() {
		return r.callerError(core.ErrIncompatibleShare, "%s %q is not a built sharable resource", b.kind, b.name)
	}
	if _, held := r.sharedHeld[b.id]; held {
		return r.callerError(core.ErrIncompatibleShare, "%s %q already held by this instance", b.kind, b.name)
	}
	r.shared.retain(b.shared)
	r.sharedHeld[b.id] = b.shared
	return nil
}

// Unshare drops r's reference once r's in-flight frames are done with res.
func (r *Renderer) Unshare(res Resource) error {
	b := res.base()
	rec, held := r.sharedHeld[b.id]
	if !held {
		return r.callerError(core.ErrIncompatibleShare, "unshare of %s %q not held by this instance", b.kind, b.name)
	}
	delete(r.sharedHeld, b.id)
	r.queueSharedUnref(rec)
	return nil
}

// dropShared gives up the creator's reference to a build other instances
// still hold. The resource stays built for them and is no longer tracked by
// its creator; the last holder's reclaim destroys the payload.
func (r *Renderer) dropShared(owner *resourceBase, res Resource, p releasePayload) {
	r.untrack(res)
	r.shared.park(owner.shared, p)
	r.queueSharedUnref(owner.shared)
}

func (r *Renderer) queueSharedUnref(rec *sharedRecord) {
	r.releases.entries = append(r.releases.entries, releaseEntry{
		frame:   r.frameSerial,
		payload: &sharedRelease{rec: rec, ctx: r.shared},
	})
}
