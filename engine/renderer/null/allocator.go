package null

import (
	"fmt"

	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
)

// allocator is the Device seen through the driver.Allocator interface.
type allocator Device

func (a *allocator) Allocate(req driver.MemoryRequirements, usage driver.MemoryUsage) (driver.Allocation, error) {
	d := (*Device)(a)
	d.mu.Lock()
	defer d.mu.Unlock()
	if req.Size == 0 {
		return 0, fmt.Errorf("null: zero-sized allocation")
	}
	h := driver.Allocation(d.handle())
	d.allocs[h] = &allocation{data: make([]byte, req.Size), usage: usage}
	d.stats.Allocations++
	return h, nil
}

func (a *allocator) Free(al driver.Allocation) {
	d := (*Device)(a)
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.allocs[al]; !ok {
		d.stats.InvalidHandles++
		return
	}
	delete(d.allocs, al)
	d.stats.Frees++
}

func (a *allocator) Map(al driver.Allocation) ([]byte, error) {
	d := (*Device)(a)
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.allocs[al]
	if !ok {
		d.stats.InvalidHandles++
		return nil, fmt.Errorf("null: map of unknown allocation %d", al)
	}
	if m.usage == driver.MemoryUsageGPUOnly {
		return nil, fmt.Errorf("null: allocation %d is not host visible", al)
	}
	m.mapped = true
	return m.data, nil
}

func (a *allocator) Unmap(al driver.Allocation) {
	d := (*Device)(a)
	d.mu.Lock()
	defer d.mu.Unlock()
	if m, ok := d.allocs[al]; ok {
		m.mapped = false
	}
}
