package gpu

import (
	"encoding/binary"
	"fmt"
)

// ktxMagic is the 12-byte KTX 1.0 file identifier.
var ktxMagic = [12]byte{0xAB, 'K', 'T', 'X', ' ', '1', '1', 0xBB, 0x0D, 0x0A, 0x1A, 0x0A}

// ktxEndianness is the only accepted endianness field value (native
// little-endian).
const ktxEndianness = 0x04030201

// ktxFormatRGBA16F is the only accepted glInternalFormat value.
const ktxFormatRGBA16F = 0x881A // GL_RGBA16F

// KTXHeader holds the little-endian header fields that follow the
// magic and the endianness word; magic, endianness and these twelve
// fields together make up the 64-byte KTX 1.0 file header.
type KTXHeader struct {
	GLType              uint32
	GLTypeSize          uint32
	GLFormat            uint32
	GLInternalFormat    uint32
	GLBaseInternalFormat uint32
	PixelWidth          uint32
	PixelHeight         uint32
	PixelDepth          uint32
	ArrayElements       uint32
	Faces               uint32
	MipmapLevels        uint32
	KeyValueBytes       uint32
}

// KTXMip is one decoded mip level: the per-face/layer payloads,
// tightly packed with no cube padding, as spec.md §6 describes.
type KTXMip struct {
	ImageSize uint32
	Data      []byte
}

// KTXImage is a fully decoded KTX 1.0 texture.
type KTXImage struct {
	Header KTXHeader
	Mips   []KTXMip
}

// DecodeKTX1 parses a KTX 1.0 cubemap/texture blob. Only the
// endianness 0x04030201 and the RGBA16F internal format are accepted;
// anything else panics, per spec.md §7.
func DecodeKTX1(data []byte) KTXImage {
	if len(data) < 12+64 {
		panic("gpu: KTX blob too small")
	}
	var magic [12]byte
	copy(magic[:], data[:12])
	if magic != ktxMagic {
		panic("gpu: not a KTX 1.0 file")
	}

	r := data[12:]
	fields := make([]uint32, 13)
	for i := range fields {
		fields[i] = binary.LittleEndian.Uint32(r[i*4 : i*4+4])
	}
	if fields[0] != ktxEndianness {
		panic(fmt.Sprintf("gpu: unsupported KTX endianness %#x", fields[0]))
	}
	h := KTXHeader{
		GLType:               fields[1],
		GLTypeSize:           fields[2],
		GLFormat:             fields[3],
		GLInternalFormat:     fields[4],
		GLBaseInternalFormat: fields[5],
		PixelWidth:           fields[6],
		PixelHeight:          fields[7],
		PixelDepth:           fields[8],
		ArrayElements:        fields[9],
		Faces:                fields[10],
		MipmapLevels:         fields[11],
		KeyValueBytes:        fields[12],
	}
	if h.GLInternalFormat != ktxFormatRGBA16F {
		panic(fmt.Sprintf("gpu: unsupported KTX internal format %#x, only RGBA16F is accepted", h.GLInternalFormat))
	}

	off := 13 * 4
	off += int(h.KeyValueBytes)

	levels := h.MipmapLevels
	if levels == 0 {
		levels = 1
	}
	layers := h.ArrayElements
	if layers == 0 {
		layers = 1
	}
	faces := h.Faces
	if faces == 0 {
		faces = 1
	}

	mips := make([]KTXMip, 0, levels)
	for level := uint32(0); level < levels; level++ {
		if off+4 > len(data) {
			panic("gpu: truncated KTX mip size")
		}
		imageSize := binary.LittleEndian.Uint32(data[off : off+4])
		off += 4
		total := int(imageSize) * int(layers) * int(faces)
		if off+total > len(data) {
			panic("gpu: truncated KTX mip payload")
		}
		payload := make([]byte, total)
		copy(payload, data[off:off+total])
		off += total
		// 4-byte alignment padding between mips.
		if pad := (4 - off%4) % 4; pad != 0 {
			off += pad
		}
		mips = append(mips, KTXMip{ImageSize: imageSize, Data: payload})
	}

	return KTXImage{Header: h, Mips: mips}
}
