package frame

import (
	"testing"

	vk "github.com/vulkan-go/vulkan"
)

type countingResetter struct{ n int }

func (c *countingResetter) StartFrame() { c.n++ }

type countingIndexedResetter struct{ lastIndex uint32; n int }

func (c *countingIndexedResetter) StartFrame(frameIndex uint32) {
	c.lastIndex = frameIndex
	c.n++
}

func TestRegisterAppendsResetter(t *testing.T) {
	l := &Loop{}
	a, b := &countingResetter{}, &countingResetter{}
	l.Register(a)
	l.Register(b)
	if len(l.resetters) != 2 {
		t.Fatalf("resetter count\nhave %d\nwant 2", len(l.resetters))
	}
	for _, r := range l.resetters {
		r.StartFrame()
	}
	if a.n != 1 || b.n != 1 {
		t.Fatalf("resetter calls\nhave (%d,%d)\nwant (1,1)", a.n, b.n)
	}
}

func TestRegisterIndexedAppendsAndPassesFrameIndex(t *testing.T) {
	l := &Loop{}
	r := &countingIndexedResetter{}
	l.RegisterIndexed(r)
	if len(l.indexedResetters) != 1 {
		t.Fatalf("indexed resetter count\nhave %d\nwant 1", len(l.indexedResetters))
	}
	l.indexedResetters[0].StartFrame(2)
	if r.lastIndex != 2 || r.n != 1 {
		t.Fatalf("indexed resetter call\nhave (%d,%d)\nwant (2,1)", r.lastIndex, r.n)
	}
}

func TestFrameIndexAndSemaphoreGettersReflectSelectedSlot(t *testing.T) {
	l := &Loop{
		frameIndex:  1,
		acquireSems: []vk.Semaphore{10, 11},
		presentSems: []vk.Semaphore{20, 21},
	}
	if l.FrameIndex() != 1 {
		t.Fatalf("FrameIndex\nhave %d\nwant 1", l.FrameIndex())
	}
	if l.AcquireSemaphore() != 11 {
		t.Fatalf("AcquireSemaphore\nhave %d\nwant 11", l.AcquireSemaphore())
	}
	if l.PresentSemaphore() != 21 {
		t.Fatalf("PresentSemaphore\nhave %d\nwant 21", l.PresentSemaphore())
	}
}
