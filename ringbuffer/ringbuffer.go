// Package ringbuffer implements the per-frame scratch allocator: a
// single mapped buffer bump-allocated from a monotonically advancing
// head, with enough per-frame-in-flight bookkeeping to recycle the
// ring once every in-flight frame that used a region has retired.
package ringbuffer

import (
	"errors"
	"fmt"

	"github.com/vkforge/prosper/gpu"
)

// Alignment is the minimum binding alignment every write rounds its
// offset up to.
const Alignment = 256

// EmptyWriteOffset is returned by WriteValue/WriteElements for a
// zero-byte payload instead of advancing head.
const EmptyWriteOffset = 0xFFFFFFFF

// ErrExhausted is returned when an allocation would advance head past
// the oldest still-in-flight tail.
var ErrExhausted = errors.New("ringbuffer: allocation would overwrite data still in flight")

// RingBuffer is a bump allocator over a single mapped buffer. Callers
// are expected to size ByteSize for worst-case per-frame traffic;
// Allocate returns ErrExhausted, and WriteValue/WriteElements panic
// with it, rather than silently corrupting in-flight data.
type RingBuffer struct {
	dev    gpu.Device
	buf    gpu.Buffer
	size   uint64
	head   uint64
	tails  []uint64 // indexed by frame-in-flight
	cursor int      // which tails slot StartFrame last wrote
}

// New creates a RingBuffer backed by a host-mapped buffer of byteSize,
// tracking framesInFlight frame-in-flight tails.
func New(dev gpu.Device, byteSize uint64, usage gpu.BufferDesc, framesInFlight uint32, debugName string) *RingBuffer {
	desc := usage
	desc.ByteSize = byteSize
	desc.HostMapped = true
	buf, err := dev.CreateBuffer(desc, debugName)
	if err != nil {
		panic(fmt.Sprintf("ringbuffer: CreateBuffer(%q): %v", debugName, err))
	}
	return &RingBuffer{
		dev:   dev,
		buf:   buf,
		size:  byteSize,
		tails: make([]uint64, framesInFlight),
	}
}

// Buffer returns the backing native buffer, for binding into
// descriptor sets.
func (r *RingBuffer) Buffer() gpu.Buffer { return r.buf }

// StartFrame records the current head as this frame-in-flight slot's
// tail, the low-water mark Allocate must not wrap past until this
// slot comes back around.
func (r *RingBuffer) StartFrame(frameIndex uint32) {
	r.tails[frameIndex] = r.head
	r.cursor = int(frameIndex)
}

func align(v, alignment uint64) uint64 {
	return (v + alignment - 1) &^ (alignment - 1)
}

// oldestTail is the tail of the frame-in-flight slot that has been
// waiting longest, i.e. the next one StartFrame will overwrite — the
// low-water mark a new allocation must not cross.
func (r *RingBuffer) oldestTail() uint64 {
	next := (r.cursor + 1) % len(r.tails)
	return r.tails[next]
}

// Allocate reserves byteSize bytes aligned to Alignment, returning the
// aligned byte offset the payload should be written to, or
// ErrExhausted if doing so would wrap past the oldest in-flight tail.
func (r *RingBuffer) Allocate(byteSize uint64) (uint64, error) {
	if byteSize == 0 {
		return EmptyWriteOffset, nil
	}
	offset := align(r.head, Alignment)
	end := offset + byteSize
	if end > r.size {
		offset, end = 0, byteSize
	}
	if oldest := r.oldestTail(); offset < oldest && end > oldest {
		return 0, ErrExhausted
	}
	r.head = end
	return offset, nil
}

// WriteValue copies v's raw bytes into the next aligned region and
// returns its offset. Panics on ErrExhausted — callers are expected to
// size the ring for worst-case per-frame traffic, so exhaustion here
// is a configuration bug, not a runtime condition to recover from.
func (r *RingBuffer) WriteValue(v []byte) uint32 {
	return r.WriteElements(v)
}

// WriteElements copies data into the next aligned region and returns
// its offset.
func (r *RingBuffer) WriteElements(data []byte) uint32 {
	if len(data) == 0 {
		return EmptyWriteOffset
	}
	offset, err := r.Allocate(uint64(len(data)))
	if err != nil {
		panic(fmt.Sprintf("ringbuffer: %v", err))
	}
	copy(r.buf.Mapped[offset:], data)
	return uint32(offset)
}

// Destroy releases the backing buffer.
func (r *RingBuffer) Destroy() {
	r.dev.DestroyBuffer(r.buf)
}
