package vulkan

import (
	"fmt"
	"math"
	"time"

	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
	vk "github.com/goki/vulkan"
)

func (d *Device) CreateFence(signaled bool) (driver.Fence, error) {
	info := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var f vk.Fence
	if err := d.check("vkCreateFence", vk.CreateFence(d.device, &info, nil, &f)); err != nil {
		core.LogError(err.Error())
		return 0, err
	}
	return d.fences.add(f), nil
}

func (d *Device) DestroyFence(h driver.Fence) {
	if f, ok := d.fences.remove(h); ok {
		vk.DestroyFence(d.device, f, nil)
	}
}

// WaitFence blocks until the fence signals. A zero timeout waits forever.
func (d *Device) WaitFence(h driver.Fence, timeout time.Duration) error {
	f, ok := d.fences.get(h)
	if !ok {
		return fmt.Errorf("wait on unknown fence %d", h)
	}
	if d.lost.Load() {
		return fmt.Errorf("vkWaitForFences: %w", core.ErrDeviceLost)
	}
	ns := uint64(math.MaxUint64)
	if timeout > 0 {
		ns = uint64(timeout.Nanoseconds())
	}
	result := vk.WaitForFences(d.device, 1, []vk.Fence{f}, vk.True, ns)
	switch result {
	case vk.Success:
		return nil
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out")
	case vk.ErrorDeviceLost:
		core.LogError("vk_fence_wait - VK_ERROR_DEVICE_LOST.")
	default:
		core.LogError("vk_fence_wait - %s", resultString(result, false))
	}
	return d.check("vkWaitForFences", result)
}

func (d *Device) ResetFence(h driver.Fence) error {
	f, ok := d.fences.get(h)
	if !ok {
		return fmt.Errorf("reset of unknown fence %d", h)
	}
	return d.check("vkResetFences", vk.ResetFences(d.device, 1, []vk.Fence{f}))
}

func (d *Device) CreateSemaphore() (driver.Semaphore, error) {
	var s vk.Semaphore
	res := vk.CreateSemaphore(d.device, &vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}, nil, &s)
	if err := d.check("vkCreateSemaphore", res); err != nil {
		return 0, err
	}
	return d.semaphores.add(s), nil
}

func (d *Device) DestroySemaphore(h driver.Semaphore) {
	if s, ok := d.semaphores.remove(h); ok {
		vk.DestroySemaphore(d.device, s, nil)
	}
}
