package vulkan

import (
	"fmt"
	"unsafe"

	"github.com/alpqr/qvk6-sub001/engine/core"
	emath "github.com/alpqr/qvk6-sub001/engine/math"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
	vk "github.com/goki/vulkan"
)

type allocation struct {
	memory vk.DeviceMemory
	size   uint64
	usage  driver.MemoryUsage
	mapped []byte
}

// Allocator gives every buffer and image its own VkDeviceMemory.
// Host-visible allocations are mapped once and stay mapped until freed.
type Allocator struct {
	device vk.Device
	memory vk.PhysicalDeviceMemoryProperties
	allocs *table[driver.Allocation, *allocation]
}

func NewAllocator(device vk.Device, memory vk.PhysicalDeviceMemoryProperties) *Allocator {
	return &Allocator{
		device: device,
		memory: memory,
		allocs: newTable[driver.Allocation, *allocation](),
	}
}

func usageFlags(usage driver.MemoryUsage) vk.MemoryPropertyFlags {
	switch usage {
	case driver.MemoryUsageCPUToGPU:
		return vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	case driver.MemoryUsageGPUToCPU:
		return vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit | vk.MemoryPropertyHostCachedBit)
	}
	return vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
}

// findMemoryIndex returns the first memory type allowed by typeFilter that has all of flags.
func (a *Allocator) findMemoryIndex(typeFilter uint32, flags vk.MemoryPropertyFlags) int32 {
	for i := uint32(0); i < a.memory.MemoryTypeCount; i++ {
		t := a.memory.MemoryTypes[i]
		t.Deref()
		if typeFilter&(1<<i) != 0 && t.PropertyFlags&flags == flags {
			return int32(i)
		}
	}
	return -1
}

func (a *Allocator) Allocate(req driver.MemoryRequirements, usage driver.MemoryUsage) (driver.Allocation, error) {
	flags := usageFlags(usage)
	index := a.findMemoryIndex(req.TypeBits, flags)
	if index < 0 && usage == driver.MemoryUsageGPUToCPU {
		// Cached host memory is optional.
		flags = usageFlags(driver.MemoryUsageCPUToGPU)
		index = a.findMemoryIndex(req.TypeBits, flags)
	}
	if index < 0 {
		err := fmt.Errorf("unable to find suitable memory type for usage %d", usage)
		core.LogWarn(err.Error())
		return 0, err
	}

	size := emath.AlignUp(req.Size, req.Alignment)
	var memory vk.DeviceMemory
	res := vk.AllocateMemory(a.device, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: uint32(index),
	}, nil, &memory)
	if err := resultError("vkAllocateMemory", res); err != nil {
		return 0, err
	}

	al := &allocation{memory: memory, size: size, usage: usage}
	if usage != driver.MemoryUsageGPUOnly {
		var ptr unsafe.Pointer
		if res := vk.MapMemory(a.device, memory, 0, vk.DeviceSize(vk.WholeSize), 0, &ptr); res != vk.Success {
			vk.FreeMemory(a.device, memory, nil)
			return 0, resultError("vkMapMemory", res)
		}
		al.mapped = unsafe.Slice((*byte)(ptr), req.Size)
	}
	return a.allocs.add(al), nil
}

func (a *Allocator) Free(h driver.Allocation) {
	al, ok := a.allocs.remove(h)
	if !ok {
		return
	}
	a.free(al)
}

func (a *Allocator) free(al *allocation) {
	if al.mapped != nil {
		vk.UnmapMemory(a.device, al.memory)
		al.mapped = nil
	}
	vk.FreeMemory(a.device, al.memory, nil)
}

func (a *Allocator) freeAll() {
	for _, al := range a.allocs.drain() {
		a.free(al)
	}
}

func (a *Allocator) Map(h driver.Allocation) ([]byte, error) {
	al, ok := a.allocs.get(h)
	if !ok {
		return nil, fmt.Errorf("map of unknown allocation %d", h)
	}
	if al.mapped == nil {
		return nil, fmt.Errorf("allocation %d is not host visible", h)
	}
	return al.mapped, nil
}

// Unmap is a no-op: host-visible memory stays persistently mapped.
func (a *Allocator) Unmap(driver.Allocation) {}

func (a *Allocator) memoryOf(h driver.Allocation) (vk.DeviceMemory, bool) {
	al, ok := a.allocs.get(h)
	if !ok {
		return nil, false
	}
	return al.memory, true
}
