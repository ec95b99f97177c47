package render_graph

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-rendergraph/engine/renderer/device"
)

func (g *renderGraph) Render() (bool, error) {
	if !g.compiled {
		return false, ErrNotCompiled
	}
	g.stats = FrameStats{}

	image, outdated, err := g.swapchain.AcquireNextImage()
	if err != nil {
		return false, fmt.Errorf("render graph: acquire swap chain image: %w", err)
	}
	if outdated {
		g.logger.Warn("swap chain out of date on acquire", "graph", g.name)
		return true, nil
	}
	g.stats.ImageIndex = image

	if err := g.Upload(); err != nil {
		return false, err
	}
	cmd, err := g.device.BeginCommands(g.name)
	if err != nil {
		return false, fmt.Errorf("render graph: begin commands: %w", err)
	}
	if err := g.Record(cmd, image); err != nil {
		return false, err
	}
	if err := cmd.Submit(); err != nil {
		return false, fmt.Errorf("render graph: submit: %w", err)
	}

	outdated, err = g.swapchain.Present(image)
	if err != nil {
		return false, fmt.Errorf("render graph: present: %w", err)
	}
	if outdated {
		g.logger.Warn("swap chain out of date on present", "graph", g.name)
	}
	return outdated, nil
}

func (g *renderGraph) Upload() error {
	if !g.compiled {
		return ErrNotCompiled
	}
	for _, b := range g.buffers {
		switch b.policy {
		case UploadCreate:
			if len(b.data) == 0 {
				g.dropBuffer(b)
				b.policy = UploadSkip
				continue
			}
			if err := g.createBuffer(b); err != nil {
				return err
			}
		case UploadOnly:
			pr := g.physicalOf(b)
			if pr == nil || pr.buffer == nil {
				if err := g.createBuffer(b); err != nil {
					return err
				}
				break
			}
			if err := g.device.WriteBuffer(pr.buffer, 0, b.data); err != nil {
				return &AllocationError{Resource: b.name, Op: device.OpWriteBuffer, Err: err}
			}
			b.policy = UploadSkip
		default:
			continue
		}
		g.stats.BuffersUploaded++
		g.stats.BytesUploaded += uint64(len(b.data))
	}
	return nil
}

// dropBuffer releases b's physical buffer once its data has been cleared.
func (g *renderGraph) dropBuffer(b *BufferResource) {
	pr := g.physicalOf(b)
	if pr == nil || pr.buffer == nil {
		return
	}
	pr.release()
	pr.size = 0
	g.logger.Debug("buffer released", "graph", g.name, "buffer", b.name, "reason", "no data")
}

func (g *renderGraph) Record(cmd device.CommandContext, imageIndex int) error {
	if !g.compiled {
		return ErrNotCompiled
	}
	g.stats.Groups = len(g.groups)
	for _, group := range g.groups {
		for _, s := range group {
			if err := g.recordStage(cmd, s, imageIndex); err != nil {
				return err
			}
		}
	}
	return nil
}

// recordStage records one stage: begin its render target, bind its index buffers one by one and its vertex buffers
// in a single call, bind its pipeline, hand over to the stage's callback, end the render target, then place a full
// barrier so the next stage sees every write. Vertex buffers bind to the slots the pipeline laid out for them, so a
// stage with a read buffer that is not allocated yet gets no binds and no callback.
func (g *renderGraph) recordStage(cmd device.CommandContext, s *GraphicsStage, imageIndex int) error {
	ps := g.physicalStages[s.physical]

	fb := ps.Framebuffer(imageIndex)
	if fb == nil && ps.renderTarget != nil {
		return fmt.Errorf("render graph: stage %q image %d of %d: %w", s.name, imageIndex, len(ps.framebuffers), ErrNoFramebuffer)
	}
	if fb != nil {
		cmd.BeginRenderTarget(fb, ps.clears)
	}

	var (
		vertexBuffers []device.Buffer
		indexBuffer   *BufferResource
		missing       string
	)
	for _, r := range s.reads {
		b, ok := r.(*BufferResource)
		if !ok {
			continue
		}
		pr := g.physicalOf(b)
		if pr == nil || pr.buffer == nil {
			missing = b.name
			break
		}
		if b.usage == BufferUsageIndex {
			indexBuffer = b
		} else {
			vertexBuffers = append(vertexBuffers, pr.buffer)
		}
	}

	if missing != "" {
		g.logger.Debug("stage skipped, buffer has no data", "graph", g.name, "stage", s.name, "buffer", missing)
		g.stats.StagesSkipped++
	} else {
		if indexBuffer != nil {
			cmd.BindIndexBuffer(g.physicalOf(indexBuffer).buffer, indexBuffer.indexFormat)
		}
		if len(vertexBuffers) > 0 {
			cmd.BindVertexBuffers(0, vertexBuffers)
		}
		if ps.pipeline != nil {
			cmd.BindPipeline(ps.pipeline)
		}
		s.onRecord(ps, cmd)
		g.stats.StagesRecorded++
	}

	if fb != nil {
		cmd.EndRenderTarget()
	}
	cmd.Barrier()
	g.stats.Barriers++
	return nil
}
