// Package devicetest provides an in-memory device.Device, device.Swapchain and device.CommandContext
// that record every call, so graph compilation and frame recording can be tested without a GPU.
package devicetest

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-rendergraph/common"
	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/device"
	"github.com/cogentcore/webgpu/wgpu"
)

// Command operation names recorded alongside the device.Op* names.
const (
	OpBeginRenderTarget = "begin_render_target"
	OpEndRenderTarget   = "end_render_target"
	OpBindPipeline      = "bind_pipeline"
	OpBindVertexBuffers = "bind_vertex_buffers"
	OpBindIndexBuffer   = "bind_index_buffer"
	OpBindGroup         = "bind_group"
	OpPushConstants     = "push_constants"
	OpDraw              = "draw"
	OpDrawIndexed       = "draw_indexed"
	OpBarrier           = "barrier"
	OpRelease           = "release"
	OpAcquireOutOfDate  = "acquire_out_of_date"
	OpPresentOutOfDate  = "present_out_of_date"
)

// injectedFailure is the message used by FailOn when no error is given.
const injectedFailure = "injected failure"

// Call is one recorded operation. Labels names the handles involved, in argument order.
type Call struct {
	Op     string
	Labels []string
}

func (c Call) String() string {
	if len(c.Labels) == 0 {
		return c.Op
	}
	return c.Op + ":" + strings.Join(c.Labels, ",")
}

// Device is a recording device.Device.
type Device struct {
	calls []Call
	fail  map[string]error
	live  map[device.Handle]struct{}
}

var _ device.Device = &Device{}

// NewDevice returns an empty recording device.
func NewDevice() *Device {
	return &Device{
		fail: make(map[string]error),
		live: make(map[device.Handle]struct{}),
	}
}

// FailOn makes the next call to op fail with err wrapped in a *device.Error. A nil err uses a generic failure.
func (d *Device) FailOn(op string, err error) {
	if err == nil {
		err = errors.New(injectedFailure)
	}
	d.fail[op] = err
}

// Calls returns every recorded call in order.
func (d *Device) Calls() []Call {
	return d.calls
}

// Ops returns the recorded calls rendered as "op:label,label" strings.
func (d *Device) Ops() []string {
	out := make([]string, len(d.calls))
	for i, c := range d.calls {
		out[i] = c.String()
	}
	return out
}

// CallsOf returns the recorded calls with the given op.
func (d *Device) CallsOf(op string) []Call {
	var out []Call
	for _, c := range d.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Count returns the number of recorded calls with the given op.
func (d *Device) Count(op string) int {
	return len(d.CallsOf(op))
}

// Reset forgets every recorded call. Live handles stay live.
func (d *Device) Reset() {
	d.calls = nil
}

// Live returns the number of created handles that have not been released.
func (d *Device) Live() int {
	return len(d.live)
}

func (d *Device) record(op string, labels ...string) {
	d.calls = append(d.calls, Call{Op: op, Labels: labels})
}

func (d *Device) check(op string) error {
	if err, ok := d.fail[op]; ok {
		delete(d.fail, op)
		return device.NewError(op, err)
	}
	return nil
}

func (d *Device) track(h device.Handle) {
	d.live[h] = struct{}{}
}

func (d *Device) untrack(h device.Handle) {
	if _, ok := d.live[h]; ok {
		delete(d.live, h)
		d.record(OpRelease, h.Label())
	}
}

func (d *Device) CreateBuffer(desc device.BufferDescriptor) (device.Buffer, error) {
	d.record(device.OpCreateBuffer, desc.Label)
	if err := d.check(device.OpCreateBuffer); err != nil {
		return nil, err
	}
	b := &Buffer{handle: handle{d: d, label: desc.Label}, size: desc.Size, usage: desc.Usage, Data: make([]byte, desc.Size)}
	b.self = b
	d.track(b)
	return b, nil
}

func (d *Device) WriteBuffer(buf device.Buffer, offset uint64, data []byte) error {
	d.record(device.OpWriteBuffer, buf.Label())
	if err := d.check(device.OpWriteBuffer); err != nil {
		return err
	}
	b, ok := buf.(*Buffer)
	if !ok {
		return device.NewError(device.OpWriteBuffer, fmt.Errorf("foreign buffer %q", buf.Label()))
	}
	if offset+uint64(len(data)) > b.size {
		return device.NewError(device.OpWriteBuffer, fmt.Errorf("validation: write of %d bytes at %d overflows buffer %q of %d bytes", len(data), offset, b.label, b.size))
	}
	copy(b.Data[offset:], data)
	return nil
}

func (d *Device) CreateTexture(desc device.TextureDescriptor) (device.Texture, error) {
	d.record(device.OpCreateTexture, desc.Label)
	if err := d.check(device.OpCreateTexture); err != nil {
		return nil, err
	}
	t := &Texture{handle: handle{d: d, label: desc.Label}, Desc: desc}
	t.self = t
	d.track(t)
	return t, nil
}

func (d *Device) CreateSampler(desc device.SamplerDescriptor) (device.Sampler, error) {
	d.record(device.OpCreateSampler, desc.Label)
	if err := d.check(device.OpCreateSampler); err != nil {
		return nil, err
	}
	s := &Sampler{handle: handle{d: d, label: desc.Label}, Desc: desc}
	s.self = s
	d.track(s)
	return s, nil
}

func (d *Device) CreateRenderTarget(desc device.RenderTargetDescriptor) (device.RenderTarget, error) {
	d.record(device.OpCreateRenderTarget, desc.Label)
	if err := d.check(device.OpCreateRenderTarget); err != nil {
		return nil, err
	}
	rt := &RenderTarget{handle: handle{d: d, label: desc.Label}, Desc: desc}
	rt.self = rt
	d.track(rt)
	return rt, nil
}

func (d *Device) CreatePipelineLayout(desc device.PipelineLayoutDescriptor) (device.PipelineLayout, error) {
	d.record(device.OpCreatePipelineLayout, desc.Label)
	if err := d.check(device.OpCreatePipelineLayout); err != nil {
		return nil, err
	}
	l := &PipelineLayout{handle: handle{d: d, label: desc.Label}, Desc: desc}
	l.self = l
	d.track(l)
	return l, nil
}

func (d *Device) CreatePipeline(desc device.PipelineDescriptor) (device.Pipeline, error) {
	d.record(device.OpCreatePipeline, desc.Label)
	if err := d.check(device.OpCreatePipeline); err != nil {
		return nil, err
	}
	p := &Pipeline{handle: handle{d: d, label: desc.Label}, Desc: desc}
	p.self = p
	d.track(p)
	return p, nil
}

func (d *Device) CreateFramebuffer(desc device.FramebufferDescriptor) (device.Framebuffer, error) {
	d.record(device.OpCreateFramebuffer, desc.Label)
	if err := d.check(device.OpCreateFramebuffer); err != nil {
		return nil, err
	}
	if desc.RenderTarget != nil && len(desc.Attachments) != len(desc.RenderTarget.Attachments()) {
		return nil, device.NewError(device.OpCreateFramebuffer, fmt.Errorf("validation: %d textures for %d attachments", len(desc.Attachments), len(desc.RenderTarget.Attachments())))
	}
	fb := &Framebuffer{handle: handle{d: d, label: desc.Label}, Desc: desc}
	fb.self = fb
	d.track(fb)
	return fb, nil
}

func (d *Device) CreateBindGroup(desc device.BindGroupDescriptor) (device.BindGroup, error) {
	d.record(device.OpCreateBindGroup, desc.Label)
	if err := d.check(device.OpCreateBindGroup); err != nil {
		return nil, err
	}
	g := &BindGroup{handle: handle{d: d, label: desc.Label}, Desc: desc}
	g.self = g
	d.track(g)
	return g, nil
}

func (d *Device) BeginCommands(label string) (device.CommandContext, error) {
	d.record(device.OpBeginCommands, label)
	if err := d.check(device.OpBeginCommands); err != nil {
		return nil, err
	}
	return &CommandContext{d: d}, nil
}

// CommandContext records command calls into its Device's call log.
type CommandContext struct {
	d         *Device
	submitted bool
}

var _ device.CommandContext = &CommandContext{}

func (c *CommandContext) BeginRenderTarget(fb device.Framebuffer, clears []device.ClearValue) {
	c.d.record(OpBeginRenderTarget, fb.Label())
}

func (c *CommandContext) EndRenderTarget() {
	c.d.record(OpEndRenderTarget)
}

func (c *CommandContext) BindPipeline(p device.Pipeline) {
	c.d.record(OpBindPipeline, p.Label())
}

func (c *CommandContext) BindVertexBuffers(first uint32, bufs []device.Buffer) {
	labels := make([]string, len(bufs))
	for i, b := range bufs {
		labels[i] = b.Label()
	}
	c.d.record(OpBindVertexBuffers, labels...)
}

func (c *CommandContext) BindIndexBuffer(buf device.Buffer, format wgpu.IndexFormat) {
	c.d.record(OpBindIndexBuffer, buf.Label())
}

func (c *CommandContext) BindGroup(index uint32, g device.BindGroup) {
	c.d.record(OpBindGroup, g.Label())
}

func (c *CommandContext) PushConstants(stages wgpu.ShaderStage, offset uint32, data []byte) {
	c.d.record(OpPushConstants)
}

func (c *CommandContext) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	c.d.record(OpDraw)
}

func (c *CommandContext) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	c.d.record(OpDrawIndexed)
}

func (c *CommandContext) Barrier() {
	c.d.record(OpBarrier)
}

func (c *CommandContext) Submit() error {
	c.d.record(device.OpSubmit)
	if c.submitted {
		return device.NewError(device.OpSubmit, errors.New("validation: context already submitted"))
	}
	c.submitted = true
	return c.d.check(device.OpSubmit)
}

// Swapchain is a recording device.Swapchain with a fixed number of images.
type Swapchain struct {
	d       *Device
	extent  common.Extent2D
	format  wgpu.TextureFormat
	images  []*Texture
	next    int
	acquire bool
	present bool
}

var _ device.Swapchain = &Swapchain{}

// NewSwapchain returns a swap chain of imageCount images recording into d's call log.
func NewSwapchain(d *Device, extent common.Extent2D, format wgpu.TextureFormat, imageCount int) *Swapchain {
	s := &Swapchain{d: d, extent: extent, format: format}
	s.images = make([]*Texture, imageCount)
	s.createImages()
	return s
}

func (s *Swapchain) createImages() {
	for i := range s.images {
		t := &Texture{
			handle: handle{label: fmt.Sprintf("swapchain[%d]", i)},
			Desc: device.TextureDescriptor{
				Label:       fmt.Sprintf("swapchain[%d]", i),
				Extent:      s.extent,
				Format:      s.format,
				SampleCount: 1,
				Usage:       wgpu.TextureUsageRenderAttachment,
			},
		}
		t.self = t
		s.images[i] = t
	}
}

// OutOfDateOnAcquire makes the next AcquireNextImage report an out-of-date chain.
func (s *Swapchain) OutOfDateOnAcquire() {
	s.acquire = true
}

// OutOfDateOnPresent makes the next Present report an out-of-date chain.
func (s *Swapchain) OutOfDateOnPresent() {
	s.present = true
}

func (s *Swapchain) Extent() common.Extent2D {
	return s.extent
}

func (s *Swapchain) Format() wgpu.TextureFormat {
	return s.format
}

func (s *Swapchain) ImageCount() int {
	return len(s.images)
}

func (s *Swapchain) Image(i int) device.Texture {
	return s.images[i]
}

func (s *Swapchain) AcquireNextImage() (int, bool, error) {
	if s.acquire {
		s.acquire = false
		s.d.record(OpAcquireOutOfDate)
		return 0, true, nil
	}
	i := s.next
	s.next = (s.next + 1) % len(s.images)
	s.d.record(device.OpAcquire, s.images[i].Label())
	if err := s.d.check(device.OpAcquire); err != nil {
		return 0, false, err
	}
	return i, false, nil
}

func (s *Swapchain) Present(i int) (bool, error) {
	if s.present {
		s.present = false
		s.d.record(OpPresentOutOfDate)
		return true, nil
	}
	s.d.record(device.OpPresent, s.images[i].Label())
	if err := s.d.check(device.OpPresent); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Swapchain) Configure(extent common.Extent2D) error {
	s.d.record(device.OpConfigure, extent.String())
	if err := s.d.check(device.OpConfigure); err != nil {
		return err
	}
	s.extent = extent
	s.next = 0
	s.createImages()
	return nil
}

// handle implements device.Handle. d is nil for swap chain images, which are never tracked.
type handle struct {
	d     *Device
	label string
	self  device.Handle
}

func (h *handle) Label() string {
	return h.label
}

func (h *handle) Release() {
	if h.d != nil {
		h.d.untrack(h.self)
	}
}

// Released reports whether Release has been called on a tracked handle.
func (h *handle) Released() bool {
	if h.d == nil {
		return false
	}
	_, ok := h.d.live[h.self]
	return !ok
}

// Buffer is a recording device.Buffer whose contents live in Data.
type Buffer struct {
	handle
	size  uint64
	usage wgpu.BufferUsage
	Data  []byte
}

func (b *Buffer) Size() uint64            { return b.size }
func (b *Buffer) Usage() wgpu.BufferUsage { return b.usage }

// Texture is a recording device.Texture.
type Texture struct {
	handle
	Desc device.TextureDescriptor
}

func (t *Texture) Format() wgpu.TextureFormat { return t.Desc.Format }
func (t *Texture) SampleCount() uint32        { return t.Desc.SampleCount }
func (t *Texture) Extent() common.Extent2D    { return t.Desc.Extent }

// Sampler is a recording device.Sampler.
type Sampler struct {
	handle
	Desc device.SamplerDescriptor
}

// RenderTarget is a recording device.RenderTarget.
type RenderTarget struct {
	handle
	Desc device.RenderTargetDescriptor
}

func (rt *RenderTarget) Attachments() []device.AttachmentDescriptor { return rt.Desc.Attachments }

// PipelineLayout is a recording device.PipelineLayout.
type PipelineLayout struct {
	handle
	Desc device.PipelineLayoutDescriptor
}

// Pipeline is a recording device.Pipeline.
type Pipeline struct {
	handle
	Desc device.PipelineDescriptor
}

func (p *Pipeline) Layout() device.PipelineLayout { return p.Desc.Layout }

// Framebuffer is a recording device.Framebuffer.
type Framebuffer struct {
	handle
	Desc device.FramebufferDescriptor
}

func (fb *Framebuffer) Extent() common.Extent2D { return fb.Desc.Extent }

// BindGroup is a recording device.BindGroup.
type BindGroup struct {
	handle
	Desc device.BindGroupDescriptor
}
