package renderer

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/device"
	"github.com/cogentcore/webgpu/wgpu"
)

var errNoRenderTarget = errors.New("invalid command: no render target is active")

// wgpuCommandContext records one frame's commands into a single command encoder. Recording
// methods have no error return, so the first failure is kept and reported by Submit.
type wgpuCommandContext struct {
	backend *wgpuRendererBackendImpl
	label   string
	encoder *wgpu.CommandEncoder
	pass    *wgpu.RenderPassEncoder

	submitted bool
	err       error
}

var _ device.CommandContext = &wgpuCommandContext{}

func (c *wgpuCommandContext) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *wgpuCommandContext) BeginRenderTarget(fb device.Framebuffer, clears []device.ClearValue) {
	if c.pass != nil {
		c.fail(fmt.Errorf("invalid command: render target begun inside %q", c.label))
		return
	}
	f, err := native[*wgpuFramebuffer](device.OpSubmit, fb)
	if err != nil {
		c.fail(err)
		return
	}
	desc, err := renderPassDescriptor(f, clears)
	if err != nil {
		c.fail(err)
		return
	}
	c.pass = c.encoder.BeginRenderPass(desc)
}

func renderPassDescriptor(f *wgpuFramebuffer, clears []device.ClearValue) (*wgpu.RenderPassDescriptor, error) {
	atts := f.target.attachments
	layout := f.target.layout
	clearOf := func(i int) device.ClearValue {
		if i < len(clears) {
			return clears[i]
		}
		return device.ClearValue{}
	}
	view := func(i int) (*wgpu.TextureView, error) {
		v := f.attachments[i].view
		if v == nil {
			return nil, fmt.Errorf("invalid framebuffer %q: attachment %d (%s) has no view", f.label, i, f.attachments[i].label)
		}
		return v, nil
	}

	desc := &wgpu.RenderPassDescriptor{}
	for _, slot := range layout.colors {
		v, err := view(slot.attachment)
		if err != nil {
			return nil, err
		}
		a := atts[slot.attachment]
		color := wgpu.RenderPassColorAttachment{
			View:       v,
			LoadOp:     a.LoadOp,
			StoreOp:    a.StoreOp,
			ClearValue: clearOf(slot.attachment).Color,
		}
		if slot.resolve >= 0 {
			if color.ResolveTarget, err = view(slot.resolve); err != nil {
				return nil, err
			}
		}
		desc.ColorAttachments = append(desc.ColorAttachments, color)
	}

	if layout.depth >= 0 {
		v, err := view(layout.depth)
		if err != nil {
			return nil, err
		}
		a := atts[layout.depth]
		cv := clearOf(layout.depth)
		depth := &wgpu.RenderPassDepthStencilAttachment{
			View:            v,
			DepthLoadOp:     a.LoadOp,
			DepthStoreOp:    a.StoreOp,
			DepthClearValue: cv.Depth,
		}
		if hasStencil(a.Format) {
			depth.StencilLoadOp = a.LoadOp
			depth.StencilStoreOp = a.StoreOp
			depth.StencilClearValue = cv.Stencil
		}
		desc.DepthStencilAttachment = depth
	}
	return desc, nil
}

func hasStencil(f wgpu.TextureFormat) bool {
	switch f {
	case wgpu.TextureFormatStencil8, wgpu.TextureFormatDepth24PlusStencil8, wgpu.TextureFormatDepth32FloatStencil8:
		return true
	}
	return false
}

func (c *wgpuCommandContext) EndRenderTarget() {
	if c.pass == nil {
		c.fail(errNoRenderTarget)
		return
	}
	c.pass.End()
	c.pass.Release()
	c.pass = nil
}

func (c *wgpuCommandContext) BindPipeline(p device.Pipeline) {
	if c.pass == nil {
		c.fail(errNoRenderTarget)
		return
	}
	pl, err := native[*wgpuPipeline](device.OpSubmit, p)
	if err != nil {
		c.fail(err)
		return
	}
	c.pass.SetPipeline(pl.pipeline)
}

// BindVertexBuffers outside a render target is dropped: WebGPU binds buffers per pass.
func (c *wgpuCommandContext) BindVertexBuffers(first uint32, bufs []device.Buffer) {
	if c.pass == nil {
		c.backend.logger.Debug("vertex buffers bound outside a render target", "commands", c.label)
		return
	}
	for i, b := range bufs {
		buf, err := native[*wgpuBuffer](device.OpSubmit, b)
		if err != nil {
			c.fail(err)
			return
		}
		c.pass.SetVertexBuffer(first+uint32(i), buf.buffer, 0, wgpu.WholeSize)
	}
}

func (c *wgpuCommandContext) BindIndexBuffer(b device.Buffer, format wgpu.IndexFormat) {
	if c.pass == nil {
		c.backend.logger.Debug("index buffer bound outside a render target", "commands", c.label)
		return
	}
	buf, err := native[*wgpuBuffer](device.OpSubmit, b)
	if err != nil {
		c.fail(err)
		return
	}
	c.pass.SetIndexBuffer(buf.buffer, format, 0, wgpu.WholeSize)
}

func (c *wgpuCommandContext) BindGroup(index uint32, g device.BindGroup) {
	if c.pass == nil {
		c.fail(errNoRenderTarget)
		return
	}
	bg, err := native[*wgpuBindGroup](device.OpSubmit, g)
	if err != nil {
		c.fail(err)
		return
	}
	c.pass.SetBindGroup(index, bg.group, nil)
}

func (c *wgpuCommandContext) PushConstants(stages wgpu.ShaderStage, offset uint32, data []byte) {
	if c.pass == nil {
		c.fail(errNoRenderTarget)
		return
	}
	if !c.backend.pushConstants {
		c.fail(errors.New("invalid command: push constants are not supported by this adapter"))
		return
	}
	c.pass.SetPushConstants(stages, offset, data)
}

func (c *wgpuCommandContext) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if c.pass == nil {
		c.fail(errNoRenderTarget)
		return
	}
	c.pass.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

func (c *wgpuCommandContext) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	if c.pass == nil {
		c.fail(errNoRenderTarget)
		return
	}
	c.pass.DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
}

// Barrier is a no-op: WebGPU synchronises resource usage between passes itself.
func (c *wgpuCommandContext) Barrier() {}

func (c *wgpuCommandContext) Submit() error {
	if c.submitted {
		return device.NewError(device.OpSubmit, fmt.Errorf("invalid command: %q already submitted", c.label))
	}
	c.submitted = true
	defer c.encoder.Release()

	if c.pass != nil {
		c.pass.End()
		c.pass.Release()
		c.pass = nil
		c.fail(fmt.Errorf("invalid command: render target left open in %q", c.label))
	}
	if c.err != nil {
		return device.NewError(device.OpSubmit, c.err)
	}

	commandBuffer, err := c.encoder.Finish(nil)
	if err != nil {
		return device.NewError(device.OpSubmit, err)
	}
	defer commandBuffer.Release()

	c.backend.mu.Lock()
	defer c.backend.mu.Unlock()
	c.backend.queue.Submit(commandBuffer)
	return nil
}
