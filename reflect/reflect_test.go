package reflect

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

// spirvBuilder assembles a minimal, syntactically valid SPIR-V module
// word stream for exercising the two scanning passes without a real
// compiler.
type spirvBuilder struct {
	words []uint32
}

func newSPIRV() *spirvBuilder {
	b := &spirvBuilder{}
	b.words = append(b.words, spirvMagic, 0x00010300, 0, 0 /* idBound, patched later */, 0)
	return b
}

func (b *spirvBuilder) op(opcode uint32, args ...uint32) {
	wordCount := uint32(len(args) + 1)
	b.words = append(b.words, (wordCount<<16)|opcode)
	b.words = append(b.words, args...)
}

func (b *spirvBuilder) opName(id uint32, name string) {
	args := []uint32{id}
	args = append(args, packString(name)...)
	b.op(opName, args...)
}

func packString(s string) []uint32 {
	buf := []byte(s)
	buf = append(buf, 0)
	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	out := make([]uint32, len(buf)/4)
	for i := range out {
		out[i] = uint32(buf[i*4]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24
	}
	return out
}

func (b *spirvBuilder) finish(idBound uint32) []uint32 {
	b.words[3] = idBound
	return b.words
}

// Property 6 / S-scenario: a push-constant struct {vec3 a; float b;
// mat4 c;} reflects to bytesize 80 (offset 16 for c, size 64 for a
// column-major mat4 with stride 16).
func TestPushConstantsBytesize(t *testing.T) {
	b := newSPIRV()
	const (
		idFloat = 1
		idVec3  = 3
		idVec4  = 5
		idMat4  = 6
		idPCStruct = 7
		idPCPtr = 8
	)
	b.op(opTypeFloat, idFloat, 32)
	b.op(opTypeVector, idVec3, idFloat, 3)
	b.op(opTypeVector, idVec4, idFloat, 4)
	b.op(opTypeMatrix, idMat4, idVec4, 4)
	b.op(opTypeStruct, idPCStruct, idVec3, idFloat, idMat4)
	b.op(opMemberDecorate, idPCStruct, 0, decorationOffset, 0)
	b.op(opMemberDecorate, idPCStruct, 1, decorationOffset, 12)
	b.op(opMemberDecorate, idPCStruct, 2, decorationOffset, 16)
	b.op(opMemberDecorate, idPCStruct, 2, decorationMatrixStride, 16)
	b.op(opTypePointer, idPCPtr, storageClassPushConstant, idPCStruct)

	r := Reflect(b.finish(idPCPtr+1), nil)
	if got, want := r.PushConstantsBytesize(), uint32(80); got != want {
		t.Fatalf("push constant bytesize\nhave %d\nwant %d", got, want)
	}
}

// Property 7: specialization constants of sizes [4, 4, 4] get offsets
// [0, 4, 8].
func TestSpecializationOffsetsContiguous(t *testing.T) {
	b := newSPIRV()
	const (
		idBool = 1
		idSC0  = 2
		idSC1  = 3
		idSC2  = 4
	)
	b.op(opTypeBool, idBool)
	b.op(opSpecConstantTrue, idBool, idSC0)
	b.op(opSpecConstantTrue, idBool, idSC1)
	b.op(opSpecConstantTrue, idBool, idSC2)
	b.op(opDecorate, idSC0, decorationSpecId, 0)
	b.op(opDecorate, idSC1, decorationSpecId, 1)
	b.op(opDecorate, idSC2, decorationSpecId, 2)

	r := Reflect(b.finish(idSC2+1), nil)
	entries := r.SpecializationMap()
	if len(entries) != 3 {
		t.Fatalf("specialization entry count\nhave %d\nwant 3", len(entries))
	}
	wantOffsets := []uint32{0, 4, 8}
	for i, e := range entries {
		if e.Offset != wantOffsets[i] {
			t.Fatalf("entry %d offset\nhave %d\nwant %d", i, e.Offset, wantOffsets[i])
		}
	}
}

// Property 7: a specialization constant whose declared width would
// produce a non-4-byte entry (here a 64-bit float, which this package
// does not support) is rejected rather than silently emitting a
// mis-aligned offset.
func TestSpecializationOffsetsRejectsMisalignment(t *testing.T) {
	b := newSPIRV()
	const (
		idBool  = 1
		idFloat = 2
		idSC0   = 3
		idSC1   = 4
	)
	b.op(opTypeBool, idBool)
	b.op(opTypeFloat, idFloat, 64)
	b.op(opSpecConstantTrue, idBool, idSC0) // size 4
	b.op(opSpecConstant, idFloat, idSC1, 0) // width 64, unsupported
	b.op(opDecorate, idSC0, decorationSpecId, 0)
	b.op(opDecorate, idSC1, decorationSpecId, 1)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on unsupported specialization constant width")
		}
	}()
	Reflect(b.finish(idSC1+1), nil)
}

// S3: a runtime-sized storage buffer with a DSB-suffixed type name
// reflects to (binding=3, StorageBufferDynamic, count=0).
func TestRuntimeArrayStorageBufferDynamic(t *testing.T) {
	b := newSPIRV()
	const (
		idUint       = 1
		idRuntimeArr = 2
		idPtr        = 3
		idVar        = 4
	)
	b.op(opTypeInt, idUint, 32, 0)
	b.op(opTypeRuntimeArray, idRuntimeArr, idUint)
	b.opName(idRuntimeArr, "RuntimeArrayDSB")
	b.op(opTypePointer, idPtr, storageClassStorageBuffer, idRuntimeArr)
	b.op(opVariable, idPtr, idVar, storageClassStorageBuffer)
	b.opName(idVar, "runtimeArray")
	b.op(opDecorate, idVar, decorationDescriptorSet, 0)
	b.op(opDecorate, idVar, decorationBinding, 3)

	r := Reflect(b.finish(idVar+1), nil)
	metas := r.DescriptorSetMetadata(0)
	if len(metas) != 1 {
		t.Fatalf("descriptor count\nhave %d\nwant 1", len(metas))
	}
	m := metas[0]
	if m.Binding != 3 || m.DescriptorType != vk.DescriptorTypeStorageBufferDynamic || m.DescriptorCount != 0 {
		t.Fatalf("metadata\nhave %+v\nwant {Binding:3 DescriptorType:StorageBufferDynamic DescriptorCount:0}", m)
	}
}

func TestAffected(t *testing.T) {
	b := newSPIRV()
	r := Reflect(b.finish(1), []string{"shaders/foo.comp", "shaders/common.glsl"})
	if !r.Affected([]string{"shaders/common.glsl"}) {
		t.Fatalf("expected Affected to report true for a recorded source file")
	}
	if r.Affected([]string{"shaders/bar.comp"}) {
		t.Fatalf("expected Affected to report false for an unrelated file")
	}
}
