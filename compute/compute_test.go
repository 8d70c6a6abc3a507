package compute

import (
	"testing"

	"github.com/vkforge/prosper/reflect"
)

func assertPanics(t *testing.T, what string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("%s: expected panic, got none", what)
		}
	}()
	fn()
}

func TestDivCeil3RoundsUpPerAxis(t *testing.T) {
	gx, gy, gz := divCeil3([3]uint32{17, 8, 1}, [3]uint32{8, 8, 1})
	if gx != 3 || gy != 1 || gz != 1 {
		t.Fatalf("dispatch groups\nhave (%d,%d,%d)\nwant (3,1,1)", gx, gy, gz)
	}
}

func TestDivCeil3PanicsOnZeroExtent(t *testing.T) {
	assertPanics(t, "zero extent axis", func() {
		divCeil3([3]uint32{0, 8, 1}, [3]uint32{8, 8, 1})
	})
}

// Dynamic offsets at or above the portable driver limit of 8 must be
// rejected before any native call is attempted.
func TestDynamicOffsetOverflowPanics(t *testing.T) {
	p := &Pass{}
	offsets := make([]uint32, maxDynamicOffsets)
	assertPanics(t, "dynamic offset overflow", func() {
		p.bindAndDispatchPrelude(nil, 0, nil, offsets)
	})
}

// Push-constant payloads that don't match the reflected bytesize must
// be rejected before any dispatch is recorded.
func TestRecordPushConstantSizeMismatchPanics(t *testing.T) {
	words := []uint32{0x07230203, 0x00010300, 0, 1, 0}
	p := &Pass{reflection: reflect.Reflect(words, nil)}
	assertPanics(t, "push constant size mismatch", func() {
		p.RecordPushConstant(nil, make([]byte, 4), [3]uint32{1, 1, 1}, nil, nil)
	})
}
