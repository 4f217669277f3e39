package vulkan

import (
	"sync"

	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
	vk "github.com/goki/vulkan"
)

// table maps driver handles to native objects. Handles start at 1 and are
// never reused within a device.
type table[H ~uint64, V any] struct {
	mu    sync.Mutex
	next  H
	items map[H]V
}

func newTable[H ~uint64, V any]() *table[H, V] {
	return &table[H, V]{items: make(map[H]V)}
}

func (t *table[H, V]) add(v V) H {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.items[t.next] = v
	return t.next
}

func (t *table[H, V]) get(h H) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.items[h]
	return v, ok
}

func (t *table[H, V]) remove(h H) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.items[h]
	if ok {
		delete(t.items, h)
	}
	return v, ok
}

func (t *table[H, V]) removeFunc(match func(V) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for h, v := range t.items {
		if match(v) {
			delete(t.items, h)
		}
	}
}

func (t *table[H, V]) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// drain removes and returns every entry, for teardown.
func (t *table[H, V]) drain() []V {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]V, 0, len(t.items))
	for h, v := range t.items {
		out = append(out, v)
		delete(t.items, h)
	}
	return out
}

type buffer struct {
	handle vk.Buffer
	desc   driver.BufferDesc
}

type image struct {
	handle vk.Image
	view   vk.ImageView
	format vk.Format
	aspect vk.ImageAspectFlags
	desc   driver.ImageDesc
	// Swapchain images are owned by their swapchain; only the view is ours.
	swapchain bool
}

type set struct {
	handle vk.DescriptorSet
	pool   driver.DescriptorPool
}

type renderPass struct {
	handle vk.RenderPass
	colors int
	depth  bool
}

type pipeline struct {
	handle vk.Pipeline
	layout vk.PipelineLayout
}

type swapchain struct {
	handle  vk.Swapchain
	surface vk.Surface
	format  vk.Format
	images  []driver.Image
	width   uint32
	height  uint32
}
