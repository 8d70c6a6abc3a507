// Package compute implements the compute-pass abstraction: a compiled
// compute shader paired with its reflected descriptor-set layout,
// pipeline layout, pipeline (and any specialization-constant
// variants of it), and a per-frame ring of pre-allocated storage
// descriptor sets.
package compute

import (
	"fmt"
	"unsafe"

	"github.com/vkforge/prosper/gpu"
	"github.com/vkforge/prosper/reflect"
	vk "github.com/vulkan-go/vulkan"
)

// maxDynamicOffsets bounds dynamic_offsets to stay within the minimum
// portable driver limit (some AMD/Intel drivers cap this at 8).
const maxDynamicOffsets = 8

// ShaderDefinition is what a caller's shader-definition callback
// produces: the relative path to compile, the debug name to attach to
// the resulting module/pipeline, the preprocessor defines to inject,
// and the shader's compile-time local_size_x/y/z.
type ShaderDefinition struct {
	RelPath   string
	DebugName string
	Defines   []string
	GroupSize [3]uint32
}

// Options configures a Pass at construction.
type Options struct {
	// StorageSetIndex is the set index the pass's own storage
	// descriptor set is bound at; it must equal len(ExternalDsLayouts)
	// since the pass's set is always the last one.
	StorageSetIndex   uint32
	StorageStageFlags vk.ShaderStageFlags
	ExternalDsLayouts []vk.DescriptorSetLayout
	// PerFrameRecordLimit bounds how many times Record may be called
	// within a single frame before StartFrame is called again; when it
	// is above 1, each call consumes the next descriptor set in this
	// frame's ring. With a limit of 1 every call reuses the single set.
	PerFrameRecordLimit uint32
}

// Pass is a compute shader plus everything needed to dispatch it:
// reflection, descriptor-set layout and pipeline layout, pipeline
// (and any specialization variants of it), and a pool of pre-allocated
// storage descriptor sets, PerFrameRecordLimit sets per frame across
// however many frames the owning swapchain keeps in flight.
type Pass struct {
	dev   gpu.Device
	alloc *gpu.DescriptorAllocator

	storageSetIndex   uint32
	storageStageFlags vk.ShaderStageFlags
	perFrameLimit     uint32

	shaderModule vk.ShaderModule
	reflection   *reflect.Reflection
	groupSize    [3]uint32
	debugName    string

	storageSetLayout vk.DescriptorSetLayout
	pipelineLayout   vk.PipelineLayout

	// variants caches a built pipeline per distinct specialization
	// payload, keyed by the raw constant bytes; a nil/empty payload
	// is cached under "" and built eagerly at construction time.
	variants map[string]vk.Pipeline

	// storageSets[frame][slot] holds the pre-allocated per-frame
	// storage descriptor sets.
	storageSets   [][]vk.DescriptorSet
	nextRecordIdx uint32
}

// New compiles the shader produced by def and builds a Pass ready to
// record against framesInFlight frame-in-flight slots. Panics if the
// shader fails to compile — first-time init failure is the caller's
// responsibility to guard if a soft failure is desired.
func New(dev gpu.Device, alloc *gpu.DescriptorAllocator, framesInFlight uint32, def ShaderDefinition, opts Options) *Pass {
	if opts.StorageSetIndex != uint32(len(opts.ExternalDsLayouts)) {
		panic("compute: StorageSetIndex must equal len(ExternalDsLayouts); the pass's own set is always last")
	}
	if opts.PerFrameRecordLimit == 0 {
		opts.PerFrameRecordLimit = 1
	}

	p := &Pass{
		dev:               dev,
		alloc:             alloc,
		storageSetIndex:   opts.StorageSetIndex,
		storageStageFlags: opts.StorageStageFlags,
		perFrameLimit:     opts.PerFrameRecordLimit,
		variants:          make(map[string]vk.Pipeline),
	}

	if !p.compileShader(def) {
		panic(fmt.Sprintf("compute: initial compile of %q failed", def.DebugName))
	}
	p.createDescriptorSets(framesInFlight)
	p.createPipelineLayout(opts.ExternalDsLayouts)
	p.variants[""] = p.buildPipeline(nil)

	return p
}

func (p *Pass) compileShader(def ShaderDefinition) bool {
	if def.GroupSize[0] == 0 || def.GroupSize[1] == 0 || def.GroupSize[2] == 0 {
		panic("compute: group size must be non-zero on every axis")
	}
	defines := append([]string{}, def.Defines...)
	defines = append(defines,
		fmt.Sprintf("GROUP_X %d", def.GroupSize[0]),
		fmt.Sprintf("GROUP_Y %d", def.GroupSize[1]),
		fmt.Sprintf("GROUP_Z %d", def.GroupSize[2]),
	)
	compiled, ok := p.dev.CompileShaderModule(gpu.ShaderCompileRequest{
		RelPath:   def.RelPath,
		DebugName: def.DebugName,
		Defines:   defines,
	})
	if !ok {
		return false
	}
	p.shaderModule = compiled.Module
	p.reflection = reflect.Reflect(compiled.SpirV, compiled.SourceFiles)
	p.groupSize = def.GroupSize
	p.debugName = def.DebugName
	return true
}

func (p *Pass) createDescriptorSets(framesInFlight uint32) {
	p.storageSetLayout = mustCreateDescriptorSetLayout(p.reflection, p.dev.Handle(), p.storageSetIndex, p.storageStageFlags)

	p.storageSets = make([][]vk.DescriptorSet, framesInFlight)
	layouts := make([]vk.DescriptorSetLayout, p.perFrameLimit)
	debugNames := make([]string, p.perFrameLimit)
	for i := range layouts {
		layouts[i] = p.storageSetLayout
		debugNames[i] = p.debugName
	}
	for f := range p.storageSets {
		p.storageSets[f] = p.alloc.Allocate(layouts, debugNames, p.dev)
	}
}

func mustCreateDescriptorSetLayout(r *reflect.Reflection, dev vk.Device, setIndex uint32, stageFlags vk.ShaderStageFlags) vk.DescriptorSetLayout {
	dynamicCounts := make([]uint32, 0)
	for _, m := range r.DescriptorSetMetadata(setIndex) {
		if m.DescriptorCount == 0 {
			dynamicCounts = append(dynamicCounts, 1)
		}
	}
	layout, err := r.CreateDescriptorSetLayout(dev, setIndex, stageFlags, dynamicCounts)
	if err != nil {
		panic(fmt.Sprintf("compute: %v", err))
	}
	return layout
}

func (p *Pass) createPipelineLayout(externalDsLayouts []vk.DescriptorSetLayout) {
	dsLayouts := make([]vk.DescriptorSetLayout, len(externalDsLayouts)+1)
	copy(dsLayouts, externalDsLayouts)
	dsLayouts[len(dsLayouts)-1] = p.storageSetLayout

	var pcRanges []vk.PushConstantRange
	if n := p.reflection.PushConstantsBytesize(); n > 0 {
		pcRanges = []vk.PushConstantRange{{
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageComputeBit),
			Size:       n,
		}}
	}

	info := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(dsLayouts)),
		PSetLayouts:            dsLayouts,
		PushConstantRangeCount: uint32(len(pcRanges)),
		PPushConstantRanges:    pcRanges,
	}
	var layout vk.PipelineLayout
	if res := vk.CreatePipelineLayout(p.dev.Handle(), &info, nil, &layout); res != vk.Success {
		panic(fmt.Sprintf("compute: CreatePipelineLayout failed: %v", res))
	}
	p.pipelineLayout = layout
}

// buildPipeline compiles a fresh vk.Pipeline for the given raw
// specialization-constant payload (nil/empty means every entry keeps
// its shader-declared default).
func (p *Pass) buildPipeline(specData []byte) vk.Pipeline {
	stage := vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageComputeBit,
		Module: p.shaderModule,
		PName:  "main\x00",
	}
	entries := p.reflection.SpecializationMap()
	if len(entries) > 0 {
		var data unsafe.Pointer
		if len(specData) > 0 {
			data = unsafe.Pointer(&specData[0])
		}
		stage.PSpecializationInfo = &vk.SpecializationInfo{
			MapEntryCount: uint32(len(entries)),
			PMapEntries:   entries,
			Datasize:      uint(len(specData)),
			PData:         data,
		}
	}

	info := vk.ComputePipelineCreateInfo{
		SType:  vk.StructureTypeComputePipelineCreateInfo,
		Stage:  stage,
		Layout: p.pipelineLayout,
	}
	pipelines := make([]vk.Pipeline, 1)
	if res := vk.CreateComputePipelines(p.dev.Handle(), vk.NullPipelineCache, 1, []vk.ComputePipelineCreateInfo{info}, nil, pipelines); res != vk.Success {
		panic(fmt.Sprintf("compute: CreateComputePipelines(%q) failed: %v", p.debugName, res))
	}
	p.dev.SetDebugName(vk.ObjectTypePipeline, uint64(pipelines[0]), p.debugName)
	return pipelines[0]
}

// Variant returns the pipeline for specData, building and caching it
// on first request. A nil/empty specData returns the pipeline built
// at construction time.
func (p *Pass) Variant(specData []byte) vk.Pipeline {
	key := string(specData)
	if pl, ok := p.variants[key]; ok {
		return pl
	}
	pl := p.buildPipeline(specData)
	p.variants[key] = pl
	return pl
}

func (p *Pass) destroyPipelines() {
	for key, pl := range p.variants {
		vk.DestroyPipeline(p.dev.Handle(), pl, nil)
		delete(p.variants, key)
	}
	vk.DestroyPipelineLayout(p.dev.Handle(), p.pipelineLayout, nil)
}

// RecompileShader short-circuits to false if none of changedFiles
// affected the compiled shader; otherwise attempts a rebuild. On
// success the pipeline and every cached specialization variant are
// rebuilt and the old ones destroyed; on failure the pass keeps its
// previous pipeline.
func (p *Pass) RecompileShader(changedFiles []string, def ShaderDefinition, externalDsLayouts []vk.DescriptorSetLayout) bool {
	if !p.reflection.Affected(changedFiles) {
		return false
	}
	oldVariants := p.variants
	oldLayout := p.pipelineLayout
	if !p.compileShader(def) {
		return false
	}
	p.variants = make(map[string]vk.Pipeline)
	p.createPipelineLayout(externalDsLayouts)
	p.variants[""] = p.buildPipeline(nil)
	for key := range oldVariants {
		if key != "" {
			p.variants[key] = p.buildPipeline([]byte(key))
		}
	}

	for _, pl := range oldVariants {
		vk.DestroyPipeline(p.dev.Handle(), pl, nil)
	}
	vk.DestroyPipelineLayout(p.dev.Handle(), oldLayout, nil)
	return true
}

// StartFrame resets this frame's record counter; call once per frame
// before any Record call.
func (p *Pass) StartFrame() {
	p.nextRecordIdx = 0
}

// StorageSetLayout returns the pass's own (last) descriptor-set
// layout.
func (p *Pass) StorageSetLayout() vk.DescriptorSetLayout { return p.storageSetLayout }

// UpdateStorageSet writes descriptorInfos (keyed by binding) into the
// next unused storage set of this-frame's ring for frameIndex, without
// advancing the record counter — Record does that once dispatch is
// issued.
func (p *Pass) UpdateStorageSet(frameIndex uint32, descriptorInfos map[uint32]reflect.DescriptorInfo) vk.DescriptorSet {
	sets := p.storageSets[frameIndex]
	if p.nextRecordIdx >= uint32(len(sets)) {
		panic("compute: too many records this frame; forgot StartFrame or too small a PerFrameRecordLimit?")
	}
	ds := sets[p.nextRecordIdx]
	writes := p.reflection.GenerateDescriptorWrites(p.storageSetIndex, ds, descriptorInfos)
	if len(writes) > 0 {
		vk.UpdateDescriptorSets(p.dev.Handle(), uint32(len(writes)), writes, 0, nil)
	}
	return ds
}

func (p *Pass) bindAndDispatchPrelude(cb vk.CommandBuffer, pipeline vk.Pipeline, descriptorSets []vk.DescriptorSet, dynamicOffsets []uint32) {
	if len(dynamicOffsets) >= maxDynamicOffsets {
		panic("compute: dynamic offset count at or above the portable driver limit of 8")
	}
	vk.CmdBindPipeline(cb, vk.PipelineBindPointCompute, pipeline)
	vk.CmdBindDescriptorSets(cb, vk.PipelineBindPointCompute, p.pipelineLayout, 0,
		uint32(len(descriptorSets)), descriptorSets, uint32(len(dynamicOffsets)), dynamicOffsets)
}

func (p *Pass) advanceRecord() {
	if len(p.storageSets) > 0 && len(p.storageSets[0]) > 1 {
		p.nextRecordIdx++
	}
}

// divCeil3 computes ceil(extent / groupSize) per axis.
func divCeil3(extent, groupSize [3]uint32) (x, y, z uint32) {
	if extent[0] == 0 || extent[1] == 0 || extent[2] == 0 {
		panic("compute: dispatch extent must be non-zero on every axis")
	}
	div := func(e, g uint32) uint32 { return (e + g - 1) / g }
	return div(extent[0], groupSize[0]), div(extent[1], groupSize[1]), div(extent[2], groupSize[2])
}

// Record dispatches pipeline variant "" (the one built at construction
// time) over extent, rounding up to whole work groups.
func (p *Pass) Record(cb vk.CommandBuffer, extent [3]uint32, descriptorSets []vk.DescriptorSet, dynamicOffsets []uint32) {
	p.bindAndDispatchPrelude(cb, p.variants[""], descriptorSets, dynamicOffsets)
	gx, gy, gz := divCeil3(extent, p.groupSize)
	vk.CmdDispatch(cb, gx, gy, gz)
	p.advanceRecord()
}

// RecordIndirect dispatches via vkCmdDispatchIndirect, reading the
// group counts from indirectBuffer at offset 0.
func (p *Pass) RecordIndirect(cb vk.CommandBuffer, indirectBuffer vk.Buffer, descriptorSets []vk.DescriptorSet, dynamicOffsets []uint32) {
	p.bindAndDispatchPrelude(cb, p.variants[""], descriptorSets, dynamicOffsets)
	vk.CmdDispatchIndirect(cb, indirectBuffer, 0)
	p.advanceRecord()
}

// RecordPushConstant pushes pcBlockBytes (which must equal the
// reflected push-constant bytesize) and dispatches over extent.
func (p *Pass) RecordPushConstant(cb vk.CommandBuffer, pcBlockBytes []byte, extent [3]uint32, descriptorSets []vk.DescriptorSet, dynamicOffsets []uint32) {
	if uint32(len(pcBlockBytes)) != p.reflection.PushConstantsBytesize() {
		panic(fmt.Sprintf("compute: push constant payload size %d does not match reflected size %d", len(pcBlockBytes), p.reflection.PushConstantsBytesize()))
	}
	p.bindAndDispatchPrelude(cb, p.variants[""], descriptorSets, dynamicOffsets)
	vk.CmdPushConstants(cb, p.pipelineLayout, vk.ShaderStageFlags(vk.ShaderStageComputeBit), 0, uint32(len(pcBlockBytes)), pcBlockBytes)
	gx, gy, gz := divCeil3(extent, p.groupSize)
	vk.CmdDispatch(cb, gx, gy, gz)
	p.advanceRecord()
}

// Destroy releases every native object the pass owns.
func (p *Pass) Destroy() {
	p.destroyPipelines()
	vk.DestroyDescriptorSetLayout(p.dev.Handle(), p.storageSetLayout, nil)
	vk.DestroyShaderModule(p.dev.Handle(), p.shaderModule, nil)
}
