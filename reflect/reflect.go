package reflect

import (
	"fmt"
	"sort"
	"strings"

	vk "github.com/vulkan-go/vulkan"
)

// DescriptorSetMetadata is one resolved binding within a descriptor
// set: its name (concatenated with "|" when storage-buffer aliases
// collapse onto the same binding), binding index, descriptor type and
// count. A zero DescriptorCount means the binding is runtime-sized.
type DescriptorSetMetadata struct {
	Name            string
	Binding         uint32
	DescriptorType  vk.DescriptorType
	DescriptorCount uint32
}

// DescriptorInfo pairs a metadata slot with the concrete resource to
// bind, one of {Image, Buffer, TexelBuffer, ImageSpan, BufferSpan} —
// the Go rendition of the source's std::variant<...> over descriptor
// payload kinds. Leaving every field empty emits no write, permitting
// an explicit unbound binding.
type DescriptorInfo struct {
	Image       *vk.DescriptorImageInfo
	Buffer      *vk.DescriptorBufferInfo
	TexelBuffer *vk.BufferView
	ImageSpan   []vk.DescriptorImageInfo
	BufferSpan  []vk.DescriptorBufferInfo
}

func (d DescriptorInfo) empty() bool {
	return d.Image == nil && d.Buffer == nil && d.TexelBuffer == nil &&
		len(d.ImageSpan) == 0 && len(d.BufferSpan) == 0
}

// Reflection is the metadata extracted from a single compiled SPIR-V
// module: push-constant size, per-set descriptor bindings, and
// specialization-constant layout.
type Reflection struct {
	pushConstantsBytesize uint32
	descriptorSets        map[uint32][]DescriptorSetMetadata
	specializationMap     []vk.SpecializationMapEntry
	sourceFiles           map[string]bool
}

// Reflect scans spvWords (a SPIR-V module as a little-endian word
// stream) and produces its Reflection. sourceFiles records which
// source files the shader compiler consumed, for Affected.
func Reflect(spvWords []uint32, sourceFiles []string) *Reflection {
	if len(spvWords) < firstOpWord || spvWords[0] != spirvMagic {
		panic("reflect: invalid SPIR-V magic")
	}
	idBound := spvWords[3]
	results := newResultTable(idBound)

	pushConstantID := uint32(uninitialized)
	firstPass(spvWords, results, &pushConstantID)
	secondPass(spvWords, results)

	r := &Reflection{
		descriptorSets: fillDescriptorSetMetadatas(results),
		sourceFiles:    make(map[string]bool, len(sourceFiles)),
	}
	if pushConstantID != uninitialized {
		r.pushConstantsBytesize = memberBytesize(results[pushConstantID].typ, memberDecorations{}, results)
	}
	r.specializationMap = fillSpecializationMap(results)
	for _, f := range sourceFiles {
		r.sourceFiles[f] = true
	}
	return r
}

// PushConstantsBytesize returns the push-constant struct's size, or 0
// if the shader declares none.
func (r *Reflection) PushConstantsBytesize() uint32 { return r.pushConstantsBytesize }

// DescriptorSetMetadata returns the resolved bindings of descriptor
// set setIndex, sorted by binding index.
func (r *Reflection) DescriptorSetMetadata(setIndex uint32) []DescriptorSetMetadata {
	return r.descriptorSets[setIndex]
}

// SpecializationMap returns the specialization map entries, indexed
// by constant ID (entry i has ConstantID == i).
func (r *Reflection) SpecializationMap() []vk.SpecializationMapEntry { return r.specializationMap }

// Affected reports whether any of the shader's recorded source files
// appears in changedFiles.
func (r *Reflection) Affected(changedFiles []string) bool {
	for _, f := range changedFiles {
		if r.sourceFiles[f] {
			return true
		}
	}
	return false
}

// CreateDescriptorSetLayout builds a layout matching setIndex's
// metadata. dynamicCounts supplies the descriptor count for each
// runtime-sized binding (DescriptorCount == 0 in metadata), in
// ascending binding order.
func (r *Reflection) CreateDescriptorSetLayout(dev vk.Device, setIndex uint32, stageFlags vk.ShaderStageFlags, dynamicCounts []uint32) (vk.DescriptorSetLayout, error) {
	metadatas := r.descriptorSets[setIndex]
	bindings := make([]vk.DescriptorSetLayoutBinding, 0, len(metadatas))
	nextDynamic := 0
	for _, m := range metadatas {
		count := m.DescriptorCount
		if count == 0 {
			if nextDynamic >= len(dynamicCounts) {
				panic(fmt.Sprintf("reflect: missing dynamicCounts entry for runtime-sized binding %d", m.Binding))
			}
			count = dynamicCounts[nextDynamic]
			nextDynamic++
		}
		bindings = append(bindings, vk.DescriptorSetLayoutBinding{
			Binding:         m.Binding,
			DescriptorType:  m.DescriptorType,
			DescriptorCount: count,
			StageFlags:      stageFlags,
		})
	}

	info := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var layout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(dev, &info, nil, &layout); res != vk.Success {
		return vk.NullDescriptorSetLayout, fmt.Errorf("reflect: CreateDescriptorSetLayout failed: %v", res)
	}
	return layout, nil
}

// GenerateDescriptorWrites pairs each binding in setIndex's metadata
// with the DescriptorInfo keyed by binding index in infos. An empty
// DescriptorInfo (or a missing entry) leaves that binding unbound and
// emits no write for it.
func (r *Reflection) GenerateDescriptorWrites(setIndex uint32, setHandle vk.DescriptorSet, infos map[uint32]DescriptorInfo) []vk.WriteDescriptorSet {
	metadatas := r.descriptorSets[setIndex]
	writes := make([]vk.WriteDescriptorSet, 0, len(metadatas))
	for _, m := range metadatas {
		info, ok := infos[m.Binding]
		if !ok || info.empty() {
			continue
		}
		count := uint32(1)
		w := vk.WriteDescriptorSet{
			SType:          vk.StructureTypeWriteDescriptorSet,
			DstSet:         setHandle,
			DstBinding:     m.Binding,
			DescriptorType: m.DescriptorType,
		}
		switch {
		case len(info.ImageSpan) > 0:
			count = uint32(len(info.ImageSpan))
			w.PImageInfo = info.ImageSpan
		case len(info.BufferSpan) > 0:
			count = uint32(len(info.BufferSpan))
			w.PBufferInfo = info.BufferSpan
		case info.Image != nil:
			w.PImageInfo = []vk.DescriptorImageInfo{*info.Image}
		case info.Buffer != nil:
			w.PBufferInfo = []vk.DescriptorBufferInfo{*info.Buffer}
		case info.TexelBuffer != nil:
			w.PTexelBufferView = []vk.BufferView{*info.TexelBuffer}
		}
		w.DescriptorCount = count
		writes = append(writes, w)
	}
	return writes
}

func firstPass(words []uint32, results []spvResult, pushConstantID *uint32) {
	off := firstOpWord
	for off < len(words) {
		wordCount := int(words[off] >> 16)
		op := words[off] & 0xFFFF
		args := words[off+1 : off+wordCount]

		switch op {
		case opName:
			result := args[0]
			results[result].name = wordsToString(args[1:])
		case opTypeBool:
			results[args[0]].typ = spvBool{}
		case opTypeInt:
			results[args[0]].typ = spvInt{width: args[1], isSigned: args[2] == 1}
		case opTypeFloat:
			results[args[0]].typ = spvFloat{width: args[1]}
		case opTypeVector:
			results[args[0]].typ = spvVector{componentID: args[1], componentCount: args[2]}
		case opTypeMatrix:
			results[args[0]].typ = spvMatrix{columnID: args[1], columnCount: args[2]}
		case opTypeImage:
			results[args[0]].typ = spvImage{dim: args[2], sampled: args[6]}
		case opTypeSampler:
			results[args[0]].typ = spvSampler{}
		case opTypeSampledImage:
			results[args[0]].typ = spvSampledImage{}
		case opTypeStruct:
			result := args[0]
			memberCount := wordCount - 2
			ids := make([]uint32, memberCount)
			copy(ids, args[1:1+memberCount])
			decors := make([]memberDecorations, memberCount)
			for i := range decors {
				decors[i] = memberDecorations{offset: uninitialized, matrixStride: uninitialized}
			}
			results[result].typ = spvStruct{
				memberTypeIDs:     ids,
				memberDecorations: decors,
			}
		case opTypeArray:
			result, elemType, lengthID := args[0], args[1], args[2]
			lengthResult := results[lengthID]
			if lengthResult.typ == nil {
				// Specialization-constant-sized arrays carry no static length.
				break
			}
			length, ok := lengthResult.typ.(spvConstantU32)
			if !ok {
				panic("reflect: OpTypeArray length operand is not a constant")
			}
			results[result].typ = spvArray{elementTypeID: elemType, length: length.value}
		case opTypeRuntimeArray:
			results[args[0]].typ = spvRuntimeArray{elementTypeID: args[1]}
		case opTypePointer:
			result, storageClass, typeID := args[0], args[1], args[2]
			if storageClass == storageClassPushConstant {
				if s, ok := results[typeID].typ.(spvStruct); ok {
					_ = s
					if *pushConstantID != uninitialized {
						panic("reflect: unexpected second push-constant struct pointer")
					}
					*pushConstantID = typeID
				}
			}
			results[result].typ = spvPointer{typeID: typeID, storageClass: storageClass}
		case opConstant:
			typeID, result := args[0], args[1]
			if i, ok := results[typeID].typ.(spvInt); ok && !i.isSigned && i.width == 32 {
				results[result].typ = spvConstantU32{value: args[2]}
			}
		case opSpecConstantTrue, opSpecConstantFalse:
			result := args[1]
			results[result].typ = spvSpecializationConstant{size: 4}
		case opSpecConstant:
			typeID, result := args[0], args[1]
			size := uint32(uninitialized)
			switch t := results[typeID].typ.(type) {
			case spvBool:
				size = 4
			case spvInt:
				if t.width != 32 {
					panic("reflect: only 32-bit integer specialization constants are supported")
				}
				size = t.width / 8
			case spvFloat:
				if t.width != 32 {
					panic("reflect: only 32-bit float specialization constants are supported")
				}
				size = t.width / 8
			}
			if size == uninitialized {
				panic("reflect: unsupported specialization constant type")
			}
			results[result].typ = spvSpecializationConstant{size: size}
		case opSpecConstantComposite:
			panic("reflect: composite specialization constants are not supported")
		case opVariable:
			typeID, result, storageClass := args[0], args[1], args[2]
			results[result].typ = spvVariable{typeID: typeID, storageClass: storageClass}
		case opTypeAccelerationStructureKHR:
			results[args[0]].typ = spvAccelerationStructure{}
		}
		off += wordCount
	}
}

func secondPass(words []uint32, results []spvResult) {
	off := firstOpWord
	for off < len(words) {
		wordCount := int(words[off] >> 16)
		op := words[off] & 0xFFFF
		args := words[off+1 : off+wordCount]

		switch op {
		case opDecorate:
			resultID, decoration := args[0], args[1]
			switch decoration {
			case decorationSpecId:
				sc := results[resultID].typ.(spvSpecializationConstant)
				sc.id = args[2]
				results[resultID].typ = sc
			case decorationDescriptorSet:
				results[resultID].decorations.descriptorSet = args[2]
			case decorationBinding:
				results[resultID].decorations.binding = args[2]
			}
		case opMemberDecorate:
			resultID, memberIndex, decoration := args[0], args[1], args[2]
			if s, ok := results[resultID].typ.(spvStruct); ok {
				switch decoration {
				case decorationOffset:
					s.memberDecorations[memberIndex].offset = args[3]
				case decorationMatrixStride:
					s.memberDecorations[memberIndex].matrixStride = args[3]
				}
				results[resultID].typ = s
			}
		}
		off += wordCount
	}
}

func wordsToString(words []uint32) string {
	var b strings.Builder
	for _, w := range words {
		for i := 0; i < 4; i++ {
			c := byte(w >> (8 * i))
			if c == 0 {
				return b.String()
			}
			b.WriteByte(c)
		}
	}
	return b.String()
}

// memberBytesize computes the raw size of a type given its parent
// member's decorations (matrix stride, struct offset), recursively.
func memberBytesize(typ spvType, md memberDecorations, results []spvResult) uint32 {
	switch t := typ.(type) {
	case spvBool:
		return 4
	case spvInt:
		return t.width / 8
	case spvFloat:
		return t.width / 8
	case spvVector:
		component := results[t.componentID].typ
		return memberBytesize(component, memberDecorations{}, results) * t.componentCount
	case spvMatrix:
		if md.matrixStride == uninitialized {
			panic("reflect: matrix member missing MatrixStride decoration")
		}
		return md.matrixStride * t.columnCount
	case spvStruct:
		lastID := t.memberTypeIDs[len(t.memberTypeIDs)-1]
		lastDecor := t.memberDecorations[len(t.memberDecorations)-1]
		lastSize := memberBytesize(results[lastID].typ, lastDecor, results)
		if lastDecor.offset == uninitialized {
			panic("reflect: struct member missing Offset decoration")
		}
		return lastDecor.offset + lastSize
	default:
		panic("reflect: unimplemented member type in size computation")
	}
}

func imageDescriptorType(img spvImage) vk.DescriptorType {
	switch img.dim {
	case dim1D, dim2D, dim3D, dimCube:
		if img.sampled == 1 {
			return vk.DescriptorTypeSampledImage
		}
		return vk.DescriptorTypeStorageImage
	case dimBuffer:
		return vk.DescriptorTypeStorageTexelBuffer
	default:
		panic("reflect: unimplemented image dimensionality")
	}
}

func elementDescriptorType(elem spvResult) vk.DescriptorType {
	switch t := elem.typ.(type) {
	case spvSampler:
		return vk.DescriptorTypeSampler
	case spvSampledImage:
		return vk.DescriptorTypeCombinedImageSampler
	case spvImage:
		return imageDescriptorType(t)
	default:
		panic("reflect: unimplemented array element descriptor type")
	}
}

// variableType resolves a variable's pointee type (the variable's
// type ID is itself a pointer; its pointee is what matters).
func variableType(v spvVariable, results []spvResult) spvResult {
	ptr, ok := results[v.typeID].typ.(spvPointer)
	if !ok {
		panic("reflect: variable type is not a pointer")
	}
	return results[ptr.typeID]
}

func isDynamicStorageBuffer(v spvVariable, results []spvResult) bool {
	t := variableType(v, results)
	return strings.HasSuffix(t.name, "DSB")
}

func fillDescriptorSetMetadatas(results []spvResult) map[uint32][]DescriptorSetMetadata {
	sets := make(map[uint32][]DescriptorSetMetadata)
	for _, r := range results {
		if r.name == "" {
			continue
		}
		v, ok := r.typ.(spvVariable)
		if !ok {
			continue
		}

		var (
			descType  vk.DescriptorType
			count     = uint32(1)
			fill      = false
		)
		switch v.storageClass {
		case storageClassStorageBuffer:
			fill = true
			if isDynamicStorageBuffer(v, results) {
				descType = vk.DescriptorTypeStorageBufferDynamic
			} else {
				descType = vk.DescriptorTypeStorageBuffer
			}
			if _, ok := variableType(v, results).typ.(spvRuntimeArray); ok {
				count = 0
			}
		case storageClassUniform:
			fill = true
			descType = vk.DescriptorTypeUniformBuffer
		case storageClassUniformConstant:
			fill = true
			switch t := variableType(v, results).typ.(type) {
			case spvSampler:
				descType = vk.DescriptorTypeSampler
			case spvSampledImage:
				descType = vk.DescriptorTypeCombinedImageSampler
			case spvImage:
				descType = imageDescriptorType(t)
			case spvArray:
				descType = elementDescriptorType(results[t.elementTypeID])
				count = t.length
			case spvRuntimeArray:
				descType = elementDescriptorType(results[t.elementTypeID])
				count = 0
			case spvAccelerationStructure:
				descType = vk.DescriptorTypeAccelerationStructureNv
			default:
				panic("reflect: unimplemented UniformConstant variant")
			}
		}

		if !fill {
			continue
		}
		if r.decorations.binding == uninitialized || r.decorations.descriptorSet == uninitialized {
			panic("reflect: descriptor variable missing DescriptorSet/Binding decoration")
		}
		set := r.decorations.descriptorSet
		sets[set] = append(sets[set], DescriptorSetMetadata{
			Name:            r.name,
			Binding:         r.decorations.binding,
			DescriptorType:  descType,
			DescriptorCount: count,
		})
	}

	for set, metadatas := range sets {
		sort.Slice(metadatas, func(i, j int) bool { return metadatas[i].Binding < metadatas[j].Binding })
		collapsed := metadatas[:0]
		for _, m := range metadatas {
			if n := len(collapsed); n > 0 && collapsed[n-1].Binding == m.Binding {
				prev := &collapsed[n-1]
				if prev.DescriptorType != vk.DescriptorTypeStorageBuffer && prev.DescriptorType != vk.DescriptorTypeStorageBufferDynamic {
					panic("reflect: aliased binding is not a storage buffer")
				}
				prev.Name += "|" + m.Name
				continue
			}
			collapsed = append(collapsed, m)
		}
		sets[set] = collapsed
	}
	return sets
}

func fillSpecializationMap(results []spvResult) []vk.SpecializationMapEntry {
	var entries []vk.SpecializationMapEntry
	for _, r := range results {
		sc, ok := r.typ.(spvSpecializationConstant)
		if !ok {
			continue
		}
		for uint32(len(entries)) <= sc.id {
			entries = append(entries, vk.SpecializationMapEntry{ConstantID: uninitialized})
		}
		entries[sc.id] = vk.SpecializationMapEntry{ConstantID: sc.id, Offset: 0, Size: uint(sc.size)}
	}
	for _, e := range entries {
		if e.ConstantID == uninitialized {
			panic("reflect: specialization constant IDs must be populated without gaps from 0")
		}
	}
	for i := 1; i < len(entries); i++ {
		prev := entries[i-1]
		entries[i].Offset = prev.Offset + uint32(prev.Size)
		if entries[i].Size != 0 && entries[i].Offset%uint32(entries[i].Size) != 0 {
			panic("reflect: inferred specialization constant offset violates alignment")
		}
	}
	return entries
}
