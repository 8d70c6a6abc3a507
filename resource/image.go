package resource

import (
	"fmt"

	"github.com/vkforge/prosper/gpu"
	vk "github.com/vulkan-go/vulkan"
)

// ImageKind tags Handle[ImageKind] values returned by Images.
type ImageKind struct{}

// ImageHandle addresses a slot in an Images collection.
type ImageHandle = Handle[ImageKind]

// ImageState is the pipeline stage an image's contents are currently
// visible to, used to compute the barrier for a requested transition.
type ImageState struct {
	Layout vk.ImageLayout
	Access vk.AccessFlags
	Stage  vk.PipelineStageFlags
}

// imageSlot is the native resource paired with a description in an
// Images collection: the created image plus its current barrier
// state, which persists across aliasing since the physical image is
// reused, not recreated.
type imageSlot struct {
	img      gpu.Image
	state    ImageState
	mipViews map[uint32]vk.ImageView
}

// Images is a pool of transiently-aliased GPU images addressed by
// ImageHandle.
type Images struct {
	core *Collection[ImageKind, gpu.ImageDesc, imageSlot]
	dev  gpu.Device
}

// NewImages creates an empty image collection against dev.
func NewImages(dev gpu.Device) *Images {
	core := NewCollection[ImageKind, gpu.ImageDesc, imageSlot](dev,
		func(dev gpu.Device, desc gpu.ImageDesc, name string) imageSlot {
			img, err := dev.CreateImage(desc, name)
			if err != nil {
				panic(fmt.Sprintf("resource: CreateImage(%q): %v", name, err))
			}
			return imageSlot{img: img, state: ImageState{Layout: vk.ImageLayoutUndefined}}
		},
		func(dev gpu.Device, r imageSlot) {
			for _, v := range r.mipViews {
				dev.DestroyView(v)
			}
			dev.DestroyImage(r.img)
		},
	)
	return &Images{core: core, dev: dev}
}

// Create allocates or aliases an image matching desc, tagged with
// debugName.
func (im *Images) Create(desc gpu.ImageDesc, debugName string) ImageHandle {
	return im.core.Create(desc, debugName)
}

func (im *Images) IsValidHandle(h ImageHandle) bool   { return im.core.IsValidHandle(h) }
func (im *Images) Release(h ImageHandle)              { im.core.Release(h) }
func (im *Images) Preserve(h ImageHandle)             { im.core.Preserve(h) }
func (im *Images) AppendDebugName(h ImageHandle, n string) { im.core.AppendDebugName(h, n) }
func (im *Images) StartFrame()                        { im.core.StartFrame() }
func (im *Images) DestroyResources()                  { im.core.DestroyResources() }
func (im *Images) MarkForDebug(name string)            { im.core.MarkForDebug(name) }
func (im *Images) ClearDebug()                         { im.core.ClearDebug() }
func (im *Images) DebugNames() []string                { return im.core.DebugNames() }

func (im *Images) ActiveDebugHandle() (ImageHandle, bool) { return im.core.ActiveDebugHandle() }
func (im *Images) ActiveDebugName() (string, bool)        { return im.core.ActiveDebugName() }

// Native returns the created image referred to by h.
func (im *Images) Native(h ImageHandle) gpu.Image {
	return im.core.Resource(h).img
}

// Description returns the description of h's slot.
func (im *Images) Description(h ImageHandle) gpu.ImageDesc {
	return im.core.Description(h)
}

// MipView returns the view onto a single mip level of h's image,
// creating and caching it on first request. Destroyed alongside the
// slot by DestroyResources.
func (im *Images) MipView(h ImageHandle, level uint32) vk.ImageView {
	slot := im.core.MutResource(h)
	if slot.mipViews == nil {
		slot.mipViews = make(map[uint32]vk.ImageView)
	}
	if v, ok := slot.mipViews[level]; ok {
		return v
	}
	v, err := im.dev.CreateMipView(slot.img, level)
	if err != nil {
		panic(fmt.Sprintf("resource: CreateMipView(level %d): %v", level, err))
	}
	slot.mipViews[level] = v
	return v
}

// Transition computes and, if a barrier is needed, appends it to
// batch the barrier for moving h's image into newState. Returns false
// when the image was already in newState and no barrier was issued.
func (im *Images) Transition(batch *Transitions, h ImageHandle, newState ImageState) bool {
	return im.transition(batch, h, newState, false)
}

// TransitionBarrier is Transition with an explicit force flag: when
// force is set, the barrier is appended even if the image is already
// in newState, for call sites that need the barrier's execution-order
// effect (e.g. a write-after-write hazard the state machine alone
// can't see) rather than a layout/access change.
func (im *Images) TransitionBarrier(batch *Transitions, h ImageHandle, newState ImageState, force bool) bool {
	return im.transition(batch, h, newState, force)
}

func (im *Images) transition(batch *Transitions, h ImageHandle, newState ImageState, force bool) bool {
	slot := im.core.MutResource(h)
	if slot.state == newState && !force {
		return false
	}
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       slot.state.Access,
		DstAccessMask:       newState.Access,
		OldLayout:           slot.state.Layout,
		NewLayout:           newState.Layout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               slot.img.Handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspectMaskFor(slot.img.Desc),
			LevelCount: maxu32v(slot.img.Desc.Levels, 1),
			LayerCount: maxu32v(slot.img.Desc.Layers, 1),
		},
	}
	batch.appendImage(slot.state.Stage, newState.Stage, barrier)
	slot.state = newState
	return true
}

func maxu32v(v, min uint32) uint32 {
	if v < min {
		return min
	}
	return v
}

func aspectMaskFor(desc gpu.ImageDesc) vk.ImageAspectFlags {
	switch desc.Format {
	case vk.FormatD16Unorm, vk.FormatD32Sfloat:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	case vk.FormatD24UnormS8Uint, vk.FormatD32SfloatS8Uint:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	default:
		return vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
}
