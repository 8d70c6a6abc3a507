package resource

import (
	"fmt"

	"github.com/vkforge/prosper/gpu"
	vk "github.com/vulkan-go/vulkan"
)

// TexelBufferKind tags Handle[TexelBufferKind] values returned by
// TexelBuffers.
type TexelBufferKind struct{}

// TexelBufferHandle addresses a slot in a TexelBuffers collection.
type TexelBufferHandle = Handle[TexelBufferKind]

// TexelBufferDesc describes a texel buffer: a buffer plus the format
// its view interprets it as.
type TexelBufferDesc struct {
	gpu.BufferDesc
	Format vk.Format
}

// Matches reports whether d and other could share the same
// allocation: texel-buffer aliasing additionally requires the view
// format to match.
func (d TexelBufferDesc) Matches(other TexelBufferDesc) bool {
	return d.BufferDesc.Matches(other.BufferDesc) && d.Format == other.Format
}

// TexelBuffer is a created buffer together with the view a compute
// pass binds.
type TexelBuffer struct {
	gpu.Buffer
	View vk.BufferView
}

type texelBufferSlot struct {
	tb    TexelBuffer
	state BufferState
}

// TexelBuffers is a pool of transiently-aliased texel buffers
// addressed by TexelBufferHandle. Its barrier state is a plain
// BufferState: the view shares the underlying buffer's memory and
// needs no separate barrier.
type TexelBuffers struct {
	core *Collection[TexelBufferKind, TexelBufferDesc, texelBufferSlot]
}

// NewTexelBuffers creates an empty texel buffer collection against dev.
func NewTexelBuffers(dev gpu.Device) *TexelBuffers {
	core := NewCollection[TexelBufferKind, TexelBufferDesc, texelBufferSlot](dev,
		func(dev gpu.Device, desc TexelBufferDesc, name string) texelBufferSlot {
			b, err := dev.CreateBuffer(desc.BufferDesc, name)
			if err != nil {
				panic(fmt.Sprintf("resource: CreateBuffer(%q): %v", name, err))
			}
			view, err := createBufferView(dev, b.Handle, desc.Format, desc.ByteSize)
			if err != nil {
				dev.DestroyBuffer(b)
				panic(fmt.Sprintf("resource: CreateBufferView(%q): %v", name, err))
			}
			return texelBufferSlot{tb: TexelBuffer{Buffer: b, View: view}}
		},
		func(dev gpu.Device, r texelBufferSlot) {
			vk.DestroyBufferView(dev.Handle(), r.tb.View, nil)
			dev.DestroyBuffer(r.tb.Buffer)
		},
	)
	return &TexelBuffers{core: core}
}

func createBufferView(dev gpu.Device, buf vk.Buffer, format vk.Format, byteSize uint64) (vk.BufferView, error) {
	info := vk.BufferViewCreateInfo{
		SType:  vk.StructureTypeBufferViewCreateInfo,
		Buffer: buf,
		Format: format,
		Offset: 0,
		Range:  vk.DeviceSize(byteSize),
	}
	var view vk.BufferView
	if res := vk.CreateBufferView(dev.Handle(), &info, nil, &view); res != vk.Success {
		return vk.NullBufferView, fmt.Errorf("vk.CreateBufferView failed: %v", res)
	}
	return view, nil
}

func (tb *TexelBuffers) Create(desc TexelBufferDesc, debugName string) TexelBufferHandle {
	return tb.core.Create(desc, debugName)
}

func (tb *TexelBuffers) IsValidHandle(h TexelBufferHandle) bool       { return tb.core.IsValidHandle(h) }
func (tb *TexelBuffers) Release(h TexelBufferHandle)                  { tb.core.Release(h) }
func (tb *TexelBuffers) Preserve(h TexelBufferHandle)                 { tb.core.Preserve(h) }
func (tb *TexelBuffers) AppendDebugName(h TexelBufferHandle, n string) { tb.core.AppendDebugName(h, n) }
func (tb *TexelBuffers) StartFrame()                                  { tb.core.StartFrame() }
func (tb *TexelBuffers) DestroyResources()                            { tb.core.DestroyResources() }
func (tb *TexelBuffers) MarkForDebug(name string)                     { tb.core.MarkForDebug(name) }
func (tb *TexelBuffers) ClearDebug()                                  { tb.core.ClearDebug() }
func (tb *TexelBuffers) DebugNames() []string                         { return tb.core.DebugNames() }
func (tb *TexelBuffers) ActiveDebugHandle() (TexelBufferHandle, bool) { return tb.core.ActiveDebugHandle() }
func (tb *TexelBuffers) ActiveDebugName() (string, bool)              { return tb.core.ActiveDebugName() }

// Native returns the created texel buffer referred to by h.
func (tb *TexelBuffers) Native(h TexelBufferHandle) TexelBuffer {
	return tb.core.Resource(h).tb
}

// Transition batches the barrier, if any, needed to move h's
// underlying buffer into newState.
func (tb *TexelBuffers) Transition(batch *Transitions, h TexelBufferHandle, newState BufferState) bool {
	return tb.transition(batch, h, newState, false)
}

// TransitionBarrier is Transition with an explicit force flag: when
// force is set, the barrier is appended even if the buffer is already
// in newState.
func (tb *TexelBuffers) TransitionBarrier(batch *Transitions, h TexelBufferHandle, newState BufferState, force bool) bool {
	return tb.transition(batch, h, newState, force)
}

func (tb *TexelBuffers) transition(batch *Transitions, h TexelBufferHandle, newState BufferState, force bool) bool {
	slot := tb.core.MutResource(h)
	if slot.state == newState && !force {
		return false
	}
	barrier := vk.BufferMemoryBarrier{
		SType:               vk.StructureTypeBufferMemoryBarrier,
		SrcAccessMask:       slot.state.Access,
		DstAccessMask:       newState.Access,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Buffer:              slot.tb.Handle,
		Offset:              0,
		Size:                vk.DeviceSize(vk.WholeSize),
	}
	batch.appendBuffer(slot.state.Stage, newState.Stage, barrier)
	slot.state = newState
	return true
}
