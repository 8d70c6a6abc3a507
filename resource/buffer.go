package resource

import (
	"fmt"

	"github.com/vkforge/prosper/gpu"
	vk "github.com/vulkan-go/vulkan"
)

// BufferKind tags Handle[BufferKind] values returned by Buffers.
type BufferKind struct{}

// BufferHandle addresses a slot in a Buffers collection.
type BufferHandle = Handle[BufferKind]

// BufferState is the pipeline stage a buffer's contents are currently
// visible to.
type BufferState struct {
	Access vk.AccessFlags
	Stage  vk.PipelineStageFlags
}

type bufferSlot struct {
	buf   gpu.Buffer
	state BufferState
}

// Buffers is a pool of transiently-aliased GPU buffers addressed by
// BufferHandle.
type Buffers struct {
	core *Collection[BufferKind, gpu.BufferDesc, bufferSlot]
}

// NewBuffers creates an empty buffer collection against dev.
func NewBuffers(dev gpu.Device) *Buffers {
	core := NewCollection[BufferKind, gpu.BufferDesc, bufferSlot](dev,
		func(dev gpu.Device, desc gpu.BufferDesc, name string) bufferSlot {
			b, err := dev.CreateBuffer(desc, name)
			if err != nil {
				panic(fmt.Sprintf("resource: CreateBuffer(%q): %v", name, err))
			}
			return bufferSlot{buf: b}
		},
		func(dev gpu.Device, r bufferSlot) {
			dev.DestroyBuffer(r.buf)
		},
	)
	return &Buffers{core: core}
}

func (bs *Buffers) Create(desc gpu.BufferDesc, debugName string) BufferHandle {
	return bs.core.Create(desc, debugName)
}

func (bs *Buffers) IsValidHandle(h BufferHandle) bool          { return bs.core.IsValidHandle(h) }
func (bs *Buffers) Release(h BufferHandle)                     { bs.core.Release(h) }
func (bs *Buffers) Preserve(h BufferHandle)                    { bs.core.Preserve(h) }
func (bs *Buffers) AppendDebugName(h BufferHandle, n string)    { bs.core.AppendDebugName(h, n) }
func (bs *Buffers) StartFrame()                                { bs.core.StartFrame() }
func (bs *Buffers) DestroyResources()                          { bs.core.DestroyResources() }
func (bs *Buffers) MarkForDebug(name string)                   { bs.core.MarkForDebug(name) }
func (bs *Buffers) ClearDebug()                                { bs.core.ClearDebug() }
func (bs *Buffers) DebugNames() []string                       { return bs.core.DebugNames() }
func (bs *Buffers) ActiveDebugHandle() (BufferHandle, bool)    { return bs.core.ActiveDebugHandle() }
func (bs *Buffers) ActiveDebugName() (string, bool)             { return bs.core.ActiveDebugName() }

// Native returns the created buffer referred to by h.
func (bs *Buffers) Native(h BufferHandle) gpu.Buffer {
	return bs.core.Resource(h).buf
}

// Description returns the description of h's slot.
func (bs *Buffers) Description(h BufferHandle) gpu.BufferDesc {
	return bs.core.Description(h)
}

// Transition batches the barrier, if any, needed to move h's buffer
// into newState. Returns false when no barrier was needed.
func (bs *Buffers) Transition(batch *Transitions, h BufferHandle, newState BufferState) bool {
	return bs.transition(batch, h, newState, false)
}

// TransitionBarrier is Transition with an explicit force flag: when
// force is set, the barrier is appended even if the buffer is already
// in newState.
func (bs *Buffers) TransitionBarrier(batch *Transitions, h BufferHandle, newState BufferState, force bool) bool {
	return bs.transition(batch, h, newState, force)
}

func (bs *Buffers) transition(batch *Transitions, h BufferHandle, newState BufferState, force bool) bool {
	slot := bs.core.MutResource(h)
	if slot.state == newState && !force {
		return false
	}
	barrier := vk.BufferMemoryBarrier{
		SType:               vk.StructureTypeBufferMemoryBarrier,
		SrcAccessMask:       slot.state.Access,
		DstAccessMask:       newState.Access,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Buffer:              slot.buf.Handle,
		Offset:              0,
		Size:                vk.DeviceSize(vk.WholeSize),
	}
	batch.appendBuffer(slot.state.Stage, newState.Stage, barrier)
	slot.state = newState
	return true
}
