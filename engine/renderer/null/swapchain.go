package null

import (
	"fmt"
	"sync"

	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/alpqr/qvk6-sub001/engine/renderer/driver"
	"github.com/alpqr/qvk6-sub001/engine/renderer/metadata"
)

// Surface is a window whose drawable size the test controls.
type Surface struct {
	mu            sync.Mutex
	width, height uint32
}

func NewSurface(width, height uint32) *Surface {
	return &Surface{width: width, height: height}
}

func (s *Surface) PixelSize() (uint32, uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

func (s *Surface) SetPixelSize(width, height uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width, s.height = width, height
}

func (sc *swapchain) outOfDate() bool {
	w, h := sc.surface.PixelSize()
	return w != sc.width || h != sc.height
}

func (d *Device) CreateSwapchain(desc driver.SwapchainDesc) (driver.Swapchain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return 0, core.ErrDeviceLost
	}
	if desc.Surface == nil || desc.Width == 0 || desc.Height == 0 {
		return 0, fmt.Errorf("null: invalid swapchain %dx%d", desc.Width, desc.Height)
	}
	if injected(&d.failSwapchain) {
		return 0, ErrInjected
	}
	sc := &swapchain{surface: desc.Surface, width: desc.Width, height: desc.Height}
	for i := 0; i < swapchainImageCount; i++ {
		h := driver.Image(d.handle())
		d.images[h] = &image{
			desc: driver.ImageDesc{
				Width: desc.Width, Height: desc.Height, Format: metadata.TextureFormatBGRA8,
				MipLevels: 1, Layers: 1, SampleCount: 1, RenderTarget: true,
			},
			swapchain: true,
		}
		sc.images = append(sc.images, h)
	}
	h := driver.Swapchain(d.handle())
	d.swapchains[h] = sc
	d.stats.SwapchainsCreated++
	return h, nil
}

func (d *Device) DestroySwapchain(h driver.Swapchain) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sc, ok := d.swapchains[h]
	if !ok {
		d.stats.InvalidHandles++
		return
	}
	for _, img := range sc.images {
		delete(d.images, img)
	}
	delete(d.swapchains, h)
	d.stats.SwapchainsDestroyed++
}

func (d *Device) SwapchainImages(h driver.Swapchain) []driver.Image {
	d.mu.Lock()
	defer d.mu.Unlock()
	sc, ok := d.swapchains[h]
	if !ok {
		d.stats.InvalidHandles++
		return nil
	}
	return append([]driver.Image(nil), sc.images...)
}

func (d *Device) SwapchainFormat(driver.Swapchain) metadata.TextureFormat {
	return metadata.TextureFormatBGRA8
}

func (d *Device) AcquireNextImage(h driver.Swapchain, signal driver.Semaphore) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return 0, core.ErrDeviceLost
	}
	sc, ok := d.swapchains[h]
	if !ok {
		d.stats.InvalidHandles++
		return 0, fmt.Errorf("null: acquire from unknown swapchain %d", h)
	}
	if d.failing > 0 {
		d.failing--
		return 0, ErrAcquireFailed
	}
	if sc.outOfDate() {
		return 0, core.ErrSwapchainOutOfDate
	}
	idx := sc.next
	sc.next = (sc.next + 1) % uint32(len(sc.images))
	d.signalSemaphore(signal)
	return idx, nil
}

func (d *Device) Present(h driver.Swapchain, index uint32, wait driver.Semaphore) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return core.ErrDeviceLost
	}
	sc, ok := d.swapchains[h]
	if !ok || int(index) >= len(sc.images) {
		d.stats.InvalidHandles++
		return fmt.Errorf("null: present of unknown swapchain %d image %d", h, index)
	}
	d.waitSemaphore(wait)
	d.stats.Presents++
	if sc.outOfDate() {
		return core.ErrSwapchainOutOfDate
	}
	return nil
}
