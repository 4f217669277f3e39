package vulkan

import "sync"

// LockGroup names a set of Vulkan objects that require external synchronization.
type LockGroup string

const (
	QueueManagement       LockGroup = "queue_management"
	CommandPoolManagement LockGroup = "command_pool_management"
	DescriptorManagement  LockGroup = "descriptor_management"
	PipelineManagement    LockGroup = "pipeline_management"
	SwapchainManagement   LockGroup = "swapchain_management"
)

// lockPool hands out one mutex per lock group. Queue submission and
// presentation lock per queue family, since graphics and present may share one.
type lockPool struct {
	mu     sync.Mutex
	locks  map[LockGroup]*sync.Mutex
	queues map[uint32]*sync.Mutex
}

func newLockPool() *lockPool {
	return &lockPool{
		locks:  make(map[LockGroup]*sync.Mutex),
		queues: make(map[uint32]*sync.Mutex),
	}
}

func (p *lockPool) lock(group LockGroup) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[group]
	if !ok {
		l = &sync.Mutex{}
		p.locks[group] = l
	}
	return l
}

func (p *lockPool) SafeCall(group LockGroup, fn func() error) error {
	l := p.lock(group)
	l.Lock()
	defer l.Unlock()
	return fn()
}

func (p *lockPool) SetQueueFamily(index uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.queues[index]; !ok {
		p.queues[index] = &sync.Mutex{}
	}
}

func (p *lockPool) SafeQueueCall(family uint32, fn func() error) error {
	p.mu.Lock()
	l, ok := p.queues[family]
	p.mu.Unlock()
	if !ok {
		return p.SafeCall(QueueManagement, fn)
	}
	l.Lock()
	defer l.Unlock()
	return fn()
}
