package gpu

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"
)

// VkDevice implements Device directly against vulkan-go/vulkan. It
// assumes the instance, physical device and logical device have
// already been brought up by the owning application (queue family
// selection and surface/swapchain creation are out of scope for this
// module, per spec.md §1).
type VkDevice struct {
	instance vk.Instance
	physical vk.PhysicalDevice
	device   vk.Device
	queue    vk.Queue
	pool     vk.CommandPool
	props    vk.PhysicalDeviceProperties

	compile func(ShaderCompileRequest) (CompiledShader, bool)
}

// NewVkDevice wraps already-opened Vulkan objects. compile is the
// user-supplied shader-compilation callback (spec.md §4.4); it is
// also used for the Device's own CompileShaderModule.
func NewVkDevice(instance vk.Instance, physical vk.PhysicalDevice, device vk.Device, queue vk.Queue, commandPool vk.CommandPool, compile func(ShaderCompileRequest) (CompiledShader, bool)) *VkDevice {
	d := &VkDevice{
		instance: instance,
		physical: physical,
		device:   device,
		queue:    queue,
		pool:     commandPool,
		compile:  compile,
	}
	vk.GetPhysicalDeviceProperties(physical, &d.props)
	d.props.Deref()
	d.props.Limits.Deref()
	return d
}

func (d *VkDevice) Handle() vk.Device                 { return d.device }
func (d *VkDevice) PhysicalDevice() vk.PhysicalDevice { return d.physical }
func (d *VkDevice) TimestampPeriod() float32          { return d.props.Limits.TimestampPeriod }

func (d *VkDevice) CreateBuffer(desc BufferDesc, debugName string) (Buffer, error) {
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(desc.ByteSize),
		Usage:       desc.Usage,
		SharingMode: vk.SharingModeExclusive,
	}
	var buf vk.Buffer
	if res := vk.CreateBuffer(d.device, &info, nil, &buf); res != vk.Success {
		return Buffer{}, fmt.Errorf("gpu: CreateBuffer failed: %v", res)
	}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.device, buf, &req)
	req.Deref()

	mem, err := d.allocate(req, desc.HostMapped)
	if err != nil {
		vk.DestroyBuffer(d.device, buf, nil)
		return Buffer{}, err
	}
	if res := vk.BindBufferMemory(d.device, buf, mem, 0); res != vk.Success {
		vk.FreeMemory(d.device, mem, nil)
		vk.DestroyBuffer(d.device, buf, nil)
		return Buffer{}, fmt.Errorf("gpu: BindBufferMemory failed: %v", res)
	}

	b := Buffer{Handle: buf, Memory: mem}
	if desc.HostMapped {
		var p unsafe.Pointer
		if res := vk.MapMemory(d.device, mem, 0, vk.DeviceSize(desc.ByteSize), 0, &p); res != vk.Success {
			vk.FreeMemory(d.device, mem, nil)
			vk.DestroyBuffer(d.device, buf, nil)
			return Buffer{}, fmt.Errorf("gpu: MapMemory failed: %v", res)
		}
		b.Mapped = unsafe.Slice((*byte)(p), desc.ByteSize)
	}
	if debugName != "" {
		d.SetDebugName(vk.ObjectTypeBuffer, uint64(buf), debugName)
	}
	return b, nil
}

func (d *VkDevice) CreateImage(desc ImageDesc, debugName string) (Image, error) {
	imgType := vk.ImageType2d
	if desc.Depth > 1 {
		imgType = vk.ImageType3d
	}
	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: imgType,
		Format:    desc.Format,
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  maxu32(desc.Depth, 1),
		},
		MipLevels:     maxu32(desc.Levels, 1),
		ArrayLayers:   maxu32(desc.Layers, 1),
		Samples:       desc.Samples,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         desc.Usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var img vk.Image
	if res := vk.CreateImage(d.device, &info, nil, &img); res != vk.Success {
		return Image{}, fmt.Errorf("gpu: CreateImage failed: %v", res)
	}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.device, img, &req)
	req.Deref()

	mem, err := d.allocate(req, false)
	if err != nil {
		vk.DestroyImage(d.device, img, nil)
		return Image{}, err
	}
	if res := vk.BindImageMemory(d.device, img, mem, 0); res != vk.Success {
		vk.FreeMemory(d.device, mem, nil)
		vk.DestroyImage(d.device, img, nil)
		return Image{}, fmt.Errorf("gpu: BindImageMemory failed: %v", res)
	}

	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img,
		ViewType: viewTypeFor(desc),
		Format:   desc.Format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspectFor(desc.Format),
			LevelCount:     maxu32(desc.Levels, 1),
			LayerCount:     maxu32(desc.Layers, 1),
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(d.device, &viewInfo, nil, &view); res != vk.Success {
		vk.FreeMemory(d.device, mem, nil)
		vk.DestroyImage(d.device, img, nil)
		return Image{}, fmt.Errorf("gpu: CreateImageView failed: %v", res)
	}

	if debugName != "" {
		d.SetDebugName(vk.ObjectTypeImage, uint64(img), debugName)
	}
	return Image{Handle: img, Memory: mem, View: view, Desc: desc}, nil
}

func (d *VkDevice) DestroyBuffer(b Buffer) {
	if b.Handle == vk.NullBuffer {
		return
	}
	if b.Mapped != nil {
		vk.UnmapMemory(d.device, b.Memory)
	}
	vk.DestroyBuffer(d.device, b.Handle, nil)
	vk.FreeMemory(d.device, b.Memory, nil)
}

func (d *VkDevice) DestroyImage(i Image) {
	if i.Handle == vk.NullImage {
		return
	}
	vk.DestroyImageView(d.device, i.View, nil)
	vk.DestroyImage(d.device, i.Handle, nil)
	vk.FreeMemory(d.device, i.Memory, nil)
}

func (d *VkDevice) CreateMipView(i Image, level uint32) (vk.ImageView, error) {
	info := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    i.Handle,
		ViewType: viewTypeFor(i.Desc),
		Format:   i.Desc.Format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     aspectFor(i.Desc.Format),
			BaseMipLevel:   level,
			LevelCount:     1,
			LayerCount:     maxu32(i.Desc.Layers, 1),
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(d.device, &info, nil, &view); res != vk.Success {
		return vk.NullImageView, fmt.Errorf("gpu: CreateImageView (mip %d) failed: %v", level, res)
	}
	return view, nil
}

func (d *VkDevice) DestroyView(v vk.ImageView) {
	if v == vk.NullImageView {
		return
	}
	vk.DestroyImageView(d.device, v, nil)
}

func (d *VkDevice) SetDebugName(objectType vk.ObjectType, h uint64, name string) {
	info := vk.DebugUtilsObjectNameInfoEXT{
		SType:        vk.StructureTypeDebugUtilsObjectNameInfoExt,
		ObjectType:   objectType,
		ObjectHandle: h,
		PObjectName:  name,
	}
	vk.SetDebugUtilsObjectNameEXT(d.device, &info)
}

func (d *VkDevice) CompileShaderModule(req ShaderCompileRequest) (CompiledShader, bool) {
	if d.compile == nil {
		return CompiledShader{}, false
	}
	return d.compile(req)
}

func (d *VkDevice) BeginGraphicsCommands() (vk.CommandBuffer, error) {
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	cbs := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(d.device, &info, cbs); res != vk.Success {
		return nil, fmt.Errorf("gpu: AllocateCommandBuffers failed: %v", res)
	}
	begin := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(cbs[0], &begin); res != vk.Success {
		return nil, fmt.Errorf("gpu: BeginCommandBuffer failed: %v", res)
	}
	return cbs[0], nil
}

func (d *VkDevice) EndGraphicsCommands(cb vk.CommandBuffer) error {
	if res := vk.EndCommandBuffer(cb); res != vk.Success {
		return fmt.Errorf("gpu: EndCommandBuffer failed: %v", res)
	}
	submit := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cb},
	}
	if res := vk.QueueSubmit(d.queue, 1, []vk.SubmitInfo{submit}, vk.NullFence); res != vk.Success {
		return fmt.Errorf("gpu: QueueSubmit failed: %v", res)
	}
	return nil
}

func (d *VkDevice) allocate(req vk.MemoryRequirements, hostVisible bool) (vk.DeviceMemory, error) {
	var memProps vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(d.physical, &memProps)
	memProps.Deref()

	want := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	if hostVisible {
		want = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	}
	typeIndex := uint32(0xFFFFFFFF)
	for i := uint32(0); i < memProps.MemoryTypeCount; i++ {
		if req.MemoryTypeBits&(1<<i) == 0 {
			continue
		}
		memProps.MemoryTypes[i].Deref()
		if memProps.MemoryTypes[i].PropertyFlags&want == want {
			typeIndex = i
			break
		}
	}
	if typeIndex == 0xFFFFFFFF {
		return vk.NullDeviceMemory, fmt.Errorf("gpu: no suitable memory type for requirements %+v", req)
	}

	info := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: typeIndex,
	}
	var mem vk.DeviceMemory
	if res := vk.AllocateMemory(d.device, &info, nil, &mem); res != vk.Success {
		return vk.NullDeviceMemory, fmt.Errorf("gpu: AllocateMemory failed: %v", res)
	}
	return mem, nil
}

func viewTypeFor(desc ImageDesc) vk.ImageViewType {
	switch {
	case desc.Depth > 1:
		return vk.ImageViewType3d
	case desc.Layers > 1:
		return vk.ImageViewType2dArray
	default:
		return vk.ImageViewType2d
	}
}

func aspectFor(format vk.Format) vk.ImageAspectFlags {
	switch format {
	case vk.FormatD16Unorm, vk.FormatD32Sfloat:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	case vk.FormatD24UnormS8Uint, vk.FormatD32SfloatS8Uint:
		return vk.ImageAspectFlags(vk.ImageAspectDepthBit | vk.ImageAspectStencilBit)
	default:
		return vk.ImageAspectFlags(vk.ImageAspectColorBit)
	}
}

func maxu32(v, min uint32) uint32 {
	if v < min {
		return min
	}
	return v
}
