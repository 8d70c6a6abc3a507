package gpu

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// defaultDescriptorCount and defaultSetCount size every fresh pool; a
// render pass that allocates beyond them rolls to a new pool rather
// than failing, see DescriptorAllocator.Allocate.
const (
	defaultDescriptorCount = 1000
	defaultSetCount        = 1000
)

var defaultPoolSizes = []vk.DescriptorPoolSize{
	{Type: vk.DescriptorTypeSampler, DescriptorCount: defaultDescriptorCount},
	{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: defaultDescriptorCount},
	{Type: vk.DescriptorTypeSampledImage, DescriptorCount: defaultDescriptorCount},
	{Type: vk.DescriptorTypeStorageImage, DescriptorCount: defaultDescriptorCount},
	{Type: vk.DescriptorTypeUniformTexelBuffer, DescriptorCount: defaultDescriptorCount},
	{Type: vk.DescriptorTypeStorageTexelBuffer, DescriptorCount: defaultDescriptorCount},
	{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: defaultDescriptorCount},
	{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: defaultDescriptorCount},
	{Type: vk.DescriptorTypeUniformBufferDynamic, DescriptorCount: defaultDescriptorCount},
	{Type: vk.DescriptorTypeStorageBufferDynamic, DescriptorCount: defaultDescriptorCount},
	{Type: vk.DescriptorTypeInputAttachment, DescriptorCount: defaultDescriptorCount},
}

// DescriptorAllocator is a rolling pool of vk.DescriptorPool objects:
// when the active pool is exhausted or fragmented, a fresh pool is
// created and allocation is retried once, per spec.md §7's driver
// resource exhaustion policy. Persistent failure panics.
type DescriptorAllocator struct {
	device vk.Device
	flags  vk.DescriptorPoolCreateFlags
	pools  []vk.DescriptorPool
	active int
}

// NewDescriptorAllocator creates an allocator with one pool already
// open.
func NewDescriptorAllocator(device vk.Device, flags vk.DescriptorPoolCreateFlags) *DescriptorAllocator {
	a := &DescriptorAllocator{device: device, flags: flags, active: -1}
	a.nextPool()
	return a
}

func (a *DescriptorAllocator) nextPool() {
	info := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         a.flags,
		MaxSets:       defaultSetCount,
		PoolSizeCount: uint32(len(defaultPoolSizes)),
		PPoolSizes:    defaultPoolSizes,
	}
	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(a.device, &info, nil, &pool); res != vk.Success {
		panic(fmt.Sprintf("gpu: CreateDescriptorPool failed: %v", res))
	}
	a.pools = append(a.pools, pool)
	a.active = len(a.pools) - 1
}

// ResetPools resets every pool owned by the allocator, freeing all
// sets allocated from them. The frame loop does not call it; an owner
// of an allocator scoped to frame lifetime calls it once per frame.
func (a *DescriptorAllocator) ResetPools() {
	for _, p := range a.pools {
		vk.ResetDescriptorPool(a.device, p, 0)
	}
	a.active = 0
}

// Allocate allocates one descriptor set per layout, attaching
// debugNames[i] to output[i] via debug-utils labels through dev.
// Rolls to a new pool and retries once on eErrorFragmentedPool or
// eErrorOutOfPoolMemory; panics on any other failure or a second
// failure after rolling.
func (a *DescriptorAllocator) Allocate(layouts []vk.DescriptorSetLayout, debugNames []string, dev Device) []vk.DescriptorSet {
	out := make([]vk.DescriptorSet, len(layouts))
	try := func() vk.Result {
		info := vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     a.pools[a.active],
			DescriptorSetCount: uint32(len(layouts)),
			PSetLayouts:        layouts,
		}
		return vk.AllocateDescriptorSets(a.device, &info, out)
	}
	res := try()
	if res == vk.ErrorFragmentedPool || res == vk.ErrorOutOfPoolMemory {
		a.nextPool()
		res = try()
	}
	if res != vk.Success {
		panic(fmt.Sprintf("gpu: AllocateDescriptorSets failed after pool roll: %v", res))
	}
	if dev != nil {
		for i, name := range debugNames {
			if name != "" {
				dev.SetDebugName(vk.ObjectTypeDescriptorSet, uint64(out[i]), name)
			}
		}
	}
	return out
}

// Destroy destroys every pool owned by the allocator.
func (a *DescriptorAllocator) Destroy() {
	for _, p := range a.pools {
		vk.DestroyDescriptorPool(a.device, p, nil)
	}
	a.pools = nil
	a.active = -1
}
