package platform

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/alpqr/qvk6-sub001/engine/core"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// Window is a glfw window without a client API, ready to back a Vulkan
// surface.
type Window struct {
	handle *glfw.Window
	// bumped by the framebuffer size callback
	sizeGeneration atomic.Uint64
}

// New initializes glfw and opens a resizable window. It must be called on
// the main thread.
func New(cfg core.WindowConfig) (*Window, error) {
	if err := glfw.Init(); err != nil {
		err = fmt.Errorf("failed to initialize glfw: %w", err)
		core.LogError(err.Error())
		return nil, err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	handle, err := glfw.CreateWindow(int(cfg.Width), int(cfg.Height), cfg.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		err = fmt.Errorf("failed to create window: %w", err)
		core.LogError(err.Error())
		return nil, err
	}
	w := &Window{handle: handle}
	handle.SetKeyCallback(w.keyCallback)
	handle.SetFramebufferSizeCallback(w.framebufferSizeCallback)
	handle.Show()

	core.LogInfo("Window %q opened (%dx%d).", cfg.Title, cfg.Width, cfg.Height)
	return w, nil
}

// PixelSize is the framebuffer size, which differs from the window size on
// high-density displays.
func (w *Window) PixelSize() (width, height uint32) {
	fw, fh := w.handle.GetFramebufferSize()
	if fw < 0 || fh < 0 {
		return 0, 0
	}
	return uint32(fw), uint32(fh)
}

// SizeGeneration changes every time the framebuffer is resized.
func (w *Window) SizeGeneration() uint64 {
	return w.sizeGeneration.Load()
}

func (w *Window) RequiredInstanceExtensions() []string {
	return w.handle.GetRequiredInstanceExtensions()
}

func (w *Window) CreateWindowSurface(instance vk.Instance) (vk.Surface, error) {
	ptr, err := w.handle.CreateWindowSurface(instance, nil)
	if err != nil {
		return vk.NullSurface, err
	}
	return vk.SurfaceFromPointer(ptr), nil
}

func (w *Window) ShouldClose() bool {
	return w.handle.ShouldClose()
}

func (w *Window) Close() {
	w.handle.SetShouldClose(true)
}

func (w *Window) PollEvents() {
	glfw.PollEvents()
}

// WaitEvents blocks until the window gets an event. Used while minimized.
func (w *Window) WaitEvents() {
	glfw.WaitEvents()
}

// Destroy closes the window and shuts glfw down.
func (w *Window) Destroy() {
	if w.handle != nil {
		w.handle.Destroy()
		w.handle = nil
	}
	glfw.Terminate()
}

func (w *Window) keyCallback(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
	if key == glfw.KeyEscape && action == glfw.Press {
		w.Close()
	}
}

func (w *Window) framebufferSizeCallback(_ *glfw.Window, width, height int) {
	w.sizeGeneration.Add(1)
	core.LogDebug("Framebuffer resized to %dx%d.", width, height)
}
