package window

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

var errNotOpen = errors.New("window is not open")

// glfwWindow is the platform half of an engineWindow.
type glfwWindow struct {
	handle  *glfw.Window
	running bool
}

func platform(w *engineWindow) *glfwWindow {
	gw, _ := w.internalWindow.(*glfwWindow)
	return gw
}

// newPlatformWindow opens a GLFW window without a client API, since the WebGPU surface is created from the
// native handle, and wires its key and framebuffer callbacks into w.
func newPlatformWindow(w *engineWindow) error {
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return fmt.Errorf("glfw init: %w", err)
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)

	handle, err := glfw.CreateWindow(w.width, w.height, w.title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return fmt.Errorf("glfw create window: %w", err)
	}
	handle.SetSizeLimits(w.minWidth, w.minHeight, w.maxWidth, w.maxHeight)

	gw := &glfwWindow{handle: handle, running: true}
	w.internalWindow = gw

	handle.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		switch {
		case key == glfw.KeyEscape && action == glfw.Press:
			gw.running = false
			handle.SetShouldClose(true)
		case action == glfw.Press, action == glfw.Repeat:
			if w.onKeyDown != nil {
				w.onKeyDown(uint32(key))
			}
		}
	})

	// framebuffer pixels, not screen coordinates: they differ on high-DPI displays
	handle.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.resized(width, height)
	})
	w.width, w.height = handle.GetFramebufferSize()
	return nil
}

func platformGetSurfaceDescriptor(w *engineWindow) *wgpu.SurfaceDescriptor {
	gw := platform(w)
	if gw == nil {
		return nil
	}
	return wgpuglfw.GetSurfaceDescriptor(gw.handle)
}

func platformIsRunningCheck(w *engineWindow) bool {
	gw := platform(w)
	return gw != nil && gw.running && !gw.handle.ShouldClose()
}

func platformCloseWindow(w *engineWindow) error {
	gw := platform(w)
	if gw == nil {
		return errNotOpen
	}
	gw.running = false
	gw.handle.Destroy()
	glfw.Terminate()
	w.internalWindow = nil
	w.logger.Info("window closed", "title", w.title)
	return nil
}

// platformProcessMessages polls pending events without blocking and reports whether the window is still open.
func platformProcessMessages(w *engineWindow) bool {
	glfw.PollEvents()
	return platformIsRunningCheck(w)
}
