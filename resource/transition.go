package resource

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// Transitions batches the barriers produced by a frame's Images.Transition
// and Buffers.Transition calls so they can be issued as a single
// vkCmdPipelineBarrier, rather than one call per resource.
type Transitions struct {
	srcStage vk.PipelineStageFlags
	dstStage vk.PipelineStageFlags

	imageBarriers  []vk.ImageMemoryBarrier
	bufferBarriers []vk.BufferMemoryBarrier

	seenImages  map[vk.Image]bool
	seenBuffers map[vk.Buffer]bool
}

// NewTransitions returns an empty barrier batch.
func NewTransitions() *Transitions {
	return &Transitions{
		seenImages:  make(map[vk.Image]bool),
		seenBuffers: make(map[vk.Buffer]bool),
	}
}

func (t *Transitions) appendImage(src, dst vk.PipelineStageFlags, b vk.ImageMemoryBarrier) {
	if DebugChecks && t.seenImages[b.Image] {
		panic(fmt.Sprintf("resource: image %v transitioned twice in the same batch", b.Image))
	}
	t.seenImages[b.Image] = true
	t.srcStage |= src
	t.dstStage |= dst
	t.imageBarriers = append(t.imageBarriers, b)
}

func (t *Transitions) appendBuffer(src, dst vk.PipelineStageFlags, b vk.BufferMemoryBarrier) {
	if DebugChecks && t.seenBuffers[b.Buffer] {
		panic(fmt.Sprintf("resource: buffer %v transitioned twice in the same batch", b.Buffer))
	}
	t.seenBuffers[b.Buffer] = true
	t.srcStage |= src
	t.dstStage |= dst
	t.bufferBarriers = append(t.bufferBarriers, b)
}

// Empty reports whether the batch has no barriers to issue.
func (t *Transitions) Empty() bool {
	return len(t.imageBarriers) == 0 && len(t.bufferBarriers) == 0
}

// Flush issues every batched barrier as a single vkCmdPipelineBarrier
// call and resets the batch so it can be reused for the next group of
// transitions.
func (t *Transitions) Flush(cb vk.CommandBuffer) {
	if t.Empty() {
		return
	}
	srcStage := t.srcStage
	if srcStage == 0 {
		srcStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	vk.CmdPipelineBarrier(cb, srcStage, t.dstStage, 0,
		0, nil,
		uint32(len(t.bufferBarriers)), t.bufferBarriers,
		uint32(len(t.imageBarriers)), t.imageBarriers,
	)
	t.reset()
}

func (t *Transitions) reset() {
	t.srcStage = 0
	t.dstStage = 0
	t.imageBarriers = t.imageBarriers[:0]
	t.bufferBarriers = t.bufferBarriers[:0]
	t.seenImages = make(map[vk.Image]bool)
	t.seenBuffers = make(map[vk.Buffer]bool)
}
