// Package gpu defines the external façades the render-resource core
// consumes: the graphics device, the swapchain, and the descriptor
// pool allocator. Bringing up a vk.Instance/vk.Device, choosing queue
// families and creating the swapchain itself are the responsibility
// of the owning application; this package only describes the surface
// the core needs from them, plus a vulkan-go/vulkan-backed
// implementation of the pieces the core exercises directly (resource
// creation, shader module compilation, descriptor-pool rolling).
package gpu

import (
	vk "github.com/vulkan-go/vulkan"
)

// BufferDesc describes a buffer to be created by a Device.
type BufferDesc struct {
	ByteSize uint64
	Usage    vk.BufferUsageFlags
	// HostMapped requests a persistently host-visible, host-coherent
	// allocation (used by the ring buffer and profiler readback
	// buffers); otherwise the buffer gets device-local memory.
	HostMapped bool
}

// Matches reports whether d and other describe buffers that could
// share the same underlying allocation.
func (d BufferDesc) Matches(other BufferDesc) bool {
	return d.ByteSize == other.ByteSize &&
		d.Usage == other.Usage &&
		d.HostMapped == other.HostMapped
}

// ImageDesc describes an image to be created by a Device.
type ImageDesc struct {
	Format   vk.Format
	Width    uint32
	Height   uint32
	Depth    uint32
	Layers   uint32
	Levels   uint32
	Samples  vk.SampleCountFlagBits
	Usage    vk.ImageUsageFlags
}

// Matches reports whether d and other describe images that could
// share the same underlying allocation.
func (d ImageDesc) Matches(other ImageDesc) bool { return d == other }

// Buffer is a created buffer together with its mapped pointer, if any
// (non-nil only when the originating BufferDesc.HostMapped was true).
type Buffer struct {
	Handle  vk.Buffer
	Memory  vk.DeviceMemory
	Mapped  []byte
}

// Image is a created image and its default full-resource view.
type Image struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Desc   ImageDesc
}

// CompiledShader is the result of compiling a shader module: the
// native module plus the raw SPIR-V reflected by the reflect package,
// plus the set of source files the compiler consumed (used to decide
// whether a later edit should trigger recompilation).
type CompiledShader struct {
	Module      vk.ShaderModule
	SpirV       []uint32
	SourceFiles []string
}

// ShaderCompileRequest carries what a Device needs to (re)compile a
// shader module.
type ShaderCompileRequest struct {
	RelPath   string
	DebugName string
	Defines   []string
}

// Device is the graphics device façade the core requires.
type Device interface {
	// CreateBuffer creates a new buffer. For host-mapped buffers the
	// returned Buffer.Mapped slice aliases the buffer's memory for
	// its entire lifetime.
	CreateBuffer(desc BufferDesc, debugName string) (Buffer, error)
	CreateImage(desc ImageDesc, debugName string) (Image, error)
	DestroyBuffer(b Buffer)
	DestroyImage(i Image)

	// CreateMipView creates a view onto a single mip level of an
	// already-created image, for per-mip subresource access (e.g. a
	// compute pass writing one mip of a mip chain).
	CreateMipView(i Image, level uint32) (vk.ImageView, error)
	DestroyView(v vk.ImageView)

	// SetDebugName attaches a debug-utils object label to a native
	// handle (any of vk.Buffer, vk.Image, vk.DescriptorSet, ...).
	SetDebugName(objectType vk.ObjectType, handle uint64, name string)

	// CompileShaderModule compiles a shader, returning a zero
	// CompiledShader and false on compile failure (the caller keeps using the previous module,
	// if any).
	CompileShaderModule(req ShaderCompileRequest) (CompiledShader, bool)

	BeginGraphicsCommands() (vk.CommandBuffer, error)
	EndGraphicsCommands(cb vk.CommandBuffer) error

	// Handle and PhysicalDevice expose the raw objects that other
	// façades (Swapchain, DescriptorAllocator) and direct vk calls
	// from resource/compute/profiler need.
	Handle() vk.Device
	PhysicalDevice() vk.PhysicalDevice
	// TimestampPeriod is the number of nanoseconds per timestamp
	// tick, as reported by vk.PhysicalDeviceProperties.Limits.
	TimestampPeriod() float32
}
