package vulkan

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
	vk "github.com/goki/vulkan"
)

// resultString returns the VkResult name, with its meaning when extended is set.
// From: https://www.khronos.org/registry/vulkan/specs/1.3-extensions/man/html/VkResult.html
func resultString(result vk.Result, extended bool) string {
	name, meaning := "VK_ERROR_UNKNOWN", "An unknown error has occurred."
	switch result {
	case vk.Success:
		name, meaning = "VK_SUCCESS", "Command successfully completed"
	case vk.NotReady:
		name, meaning = "VK_NOT_READY", "A fence or query has not yet completed"
	case vk.Timeout:
		name, meaning = "VK_TIMEOUT", "A wait operation has not completed in the specified time"
	case vk.Incomplete:
		name, meaning = "VK_INCOMPLETE", "A return array was too small for the result"
	case vk.Suboptimal:
		name, meaning = "VK_SUBOPTIMAL_KHR", "A swapchain no longer matches the surface properties exactly, but can still be used to present to the surface successfully."
	case vk.ErrorOutOfHostMemory:
		name, meaning = "VK_ERROR_OUT_OF_HOST_MEMORY", "A host memory allocation has failed."
	case vk.ErrorOutOfDeviceMemory:
		name, meaning = "VK_ERROR_OUT_OF_DEVICE_MEMORY", "A device memory allocation has failed."
	case vk.ErrorInitializationFailed:
		name, meaning = "VK_ERROR_INITIALIZATION_FAILED", "Initialization of an object could not be completed for implementation-specific reasons."
	case vk.ErrorDeviceLost:
		name, meaning = "VK_ERROR_DEVICE_LOST", "The logical or physical device has been lost."
	case vk.ErrorMemoryMapFailed:
		name, meaning = "VK_ERROR_MEMORY_MAP_FAILED", "Mapping of a memory object has failed."
	case vk.ErrorLayerNotPresent:
		name, meaning = "VK_ERROR_LAYER_NOT_PRESENT", "A requested layer is not present or could not be loaded."
	case vk.ErrorExtensionNotPresent:
		name, meaning = "VK_ERROR_EXTENSION_NOT_PRESENT", "A requested extension is not supported."
	case vk.ErrorFeatureNotPresent:
		name, meaning = "VK_ERROR_FEATURE_NOT_PRESENT", "A requested feature is not supported."
	case vk.ErrorIncompatibleDriver:
		name, meaning = "VK_ERROR_INCOMPATIBLE_DRIVER", "The requested version of Vulkan is not supported by the driver."
	case vk.ErrorTooManyObjects:
		name, meaning = "VK_ERROR_TOO_MANY_OBJECTS", "Too many objects of the type have already been created."
	case vk.ErrorFormatNotSupported:
		name, meaning = "VK_ERROR_FORMAT_NOT_SUPPORTED", "A requested format is not supported on this device."
	case vk.ErrorFragmentedPool:
		name, meaning = "VK_ERROR_FRAGMENTED_POOL", "A pool allocation has failed due to fragmentation of the pool's memory."
	case vk.ErrorSurfaceLost:
		name, meaning = "VK_ERROR_SURFACE_LOST_KHR", "A surface is no longer available."
	case vk.ErrorNativeWindowInUse:
		name, meaning = "VK_ERROR_NATIVE_WINDOW_IN_USE_KHR", "The requested window is already in use by Vulkan or another API."
	case vk.ErrorOutOfDate:
		name, meaning = "VK_ERROR_OUT_OF_DATE_KHR", "A surface has changed in such a way that it is no longer compatible with the swapchain."
	case vk.ErrorOutOfPoolMemory:
		name, meaning = "VK_ERROR_OUT_OF_POOL_MEMORY", "A pool memory allocation has failed."
	case vk.ErrorFragmentation:
		name, meaning = "VK_ERROR_FRAGMENTATION", "A descriptor pool creation has failed due to fragmentation."
	}
	if extended {
		return name + " " + meaning
	}
	return name
}

// resultError maps a failed VkResult to an error. Out-of-date, device loss
// and pool exhaustion wrap the sentinels the renderer tests for.
func resultError(op string, result vk.Result) error {
	switch result {
	case vk.Success, vk.Suboptimal:
		return nil
	case vk.ErrorOutOfDate:
		return fmt.Errorf("%s: %w", op, core.ErrSwapchainOutOfDate)
	case vk.ErrorDeviceLost:
		return fmt.Errorf("%s: %w", op, core.ErrDeviceLost)
	case vk.ErrorOutOfPoolMemory, vk.ErrorFragmentedPool:
		return fmt.Errorf("%s: %w", op, driver.ErrPoolExhausted)
	case vk.Timeout:
		return fmt.Errorf("%s: %w", op, driver.ErrTimeout)
	}
	return fmt.Errorf("%s failed with %s", op, resultString(result, true))
}

// check runs resultError and latches device loss.
func (d *Device) check(op string, result vk.Result) error {
	err := resultError(op, result)
	if err != nil && errors.Is(err, core.ErrDeviceLost) {
		d.lost.Store(true)
	}
	return err
}

var end = "\x00"
var endChar byte = '\x00'

func safeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i := range list {
		out[i] = safeString(list[i])
	}
	return out
}

func trimNul(s string) string {
	return strings.TrimSuffix(s, end)
}

// cString trims a fixed-size, NUL-terminated name array.
func cString(arr []byte) string {
	for i, b := range arr {
		if b == 0 {
			return string(arr[:i])
		}
	}
	return string(arr)
}

// codeWords reinterprets SPIR-V bytes as the word slice vkCreateShaderModule expects.
func codeWords(code []byte) []uint32 {
	if len(code) < 4 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&code[0])), len(code)/4)
}
