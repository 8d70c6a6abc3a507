// Package reflect parses SPIR-V shader binaries into the descriptor-set,
// push-constant and specialization-constant metadata a compute pass
// needs to build its pipeline layout and descriptor writes without the
// caller hand-declaring any of it.
package reflect

// SPIR-V opcodes this package's two scanning passes care about. The
// numeric values are fixed by the SPIR-V specification.
const (
	opName                         = 5
	opTypeBool                     = 20
	opTypeInt                      = 21
	opTypeFloat                    = 22
	opTypeVector                   = 23
	opTypeMatrix                   = 24
	opTypeImage                    = 25
	opTypeSampler                  = 26
	opTypeSampledImage             = 27
	opTypeArray                    = 28
	opTypeRuntimeArray             = 29
	opTypeStruct                   = 30
	opTypePointer                  = 32
	opConstant                     = 43
	opSpecConstantTrue             = 48
	opSpecConstantFalse            = 49
	opSpecConstant                 = 50
	opSpecConstantComposite        = 51
	opVariable                     = 59
	opDecorate                     = 71
	opMemberDecorate                = 72
	opTypeAccelerationStructureKHR = 5341
)

// SPIR-V Decoration enumerants used by the second pass.
const (
	decorationMatrixStride  = 7
	decorationSpecId        = 1
	decorationBinding       = 33
	decorationDescriptorSet = 34
	decorationOffset        = 35
)

// SPIR-V StorageClass enumerants.
const (
	storageClassUniformConstant = 0
	storageClassUniform         = 2
	storageClassPushConstant    = 9
	storageClassStorageBuffer   = 12
)

// SPIR-V Dim (image dimensionality) enumerants.
const (
	dim1D     = 0
	dim2D     = 1
	dim3D     = 2
	dimCube   = 3
	dimBuffer = 5
)

const spirvMagic = 0x07230203
const firstOpWord = 5
const uninitialized = 0xFFFFFFFF

// spvType is the tagged union of result kinds the first pass records,
// mirroring the std::variant the source visits with std::visit; a Go
// type switch plays the role of the visitor.
type spvType interface{ isSpvType() }

type spvBool struct{}
type spvInt struct {
	width    uint32
	isSigned bool
}
type spvFloat struct{ width uint32 }
type spvVector struct {
	componentID    uint32
	componentCount uint32
}
type spvMatrix struct {
	columnID    uint32
	columnCount uint32
}
type spvImage struct {
	dim     uint32
	sampled uint32
}
type spvSampledImage struct{}
type spvSampler struct{}
type spvArray struct {
	elementTypeID uint32
	length        uint32
}
type spvRuntimeArray struct{ elementTypeID uint32 }
type memberDecorations struct {
	offset       uint32
	matrixStride uint32
}
type spvStruct struct {
	memberTypeIDs     []uint32
	memberDecorations []memberDecorations
}
type spvPointer struct {
	typeID       uint32
	storageClass uint32
}
type spvAccelerationStructure struct{}
type spvConstantU32 struct{ value uint32 }
type spvVariable struct {
	typeID       uint32
	storageClass uint32
}
type spvSpecializationConstant struct {
	id   uint32
	size uint32
}

func (spvBool) isSpvType()                  {}
func (spvInt) isSpvType()                   {}
func (spvFloat) isSpvType()                 {}
func (spvVector) isSpvType()                {}
func (spvMatrix) isSpvType()                {}
func (spvImage) isSpvType()                 {}
func (spvSampledImage) isSpvType()          {}
func (spvSampler) isSpvType()               {}
func (spvArray) isSpvType()                 {}
func (spvRuntimeArray) isSpvType()          {}
func (spvStruct) isSpvType()                {}
func (spvPointer) isSpvType()               {}
func (spvAccelerationStructure) isSpvType() {}
func (spvConstantU32) isSpvType()           {}
func (spvVariable) isSpvType()              {}
func (spvSpecializationConstant) isSpvType() {}

// decorations holds the OpDecorate payload relevant to descriptor
// binding resolution, keyed by result ID.
type decorations struct {
	descriptorSet uint32
	binding       uint32
}

// spvResult is everything the two passes learn about a single SPIR-V
// result ID.
type spvResult struct {
	name        string
	typ         spvType
	decorations decorations
}

func newResultTable(idBound uint32) []spvResult {
	t := make([]spvResult, idBound)
	for i := range t {
		t[i].decorations = decorations{descriptorSet: uninitialized, binding: uninitialized}
	}
	return t
}
