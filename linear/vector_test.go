package linear

import (
	"math"
	"testing"
)

func TestV3(t *testing.T) {
	v := V3{1, 2, 4}
	w := V3{0, -1, 2}

	var u V3
	u.Add(&v, &w)
	if u != (V3{1, 1, 6}) {
		t.Fatalf("Add\nhave %v\nwant [1 1 6]", u)
	}
	u.Sub(&v, &w)
	if u != (V3{1, 3, 2}) {
		t.Fatalf("Sub\nhave %v\nwant [1 3 2]", u)
	}
	u.Scale(-1, &v)
	if u != (V3{-1, -2, -4}) {
		t.Fatalf("Scale\nhave %v\nwant [-1 -2 -4]", u)
	}
	if d := v.Dot(&w); d != 6 {
		t.Fatalf("Dot\nhave %v\nwant 6", d)
	}
	if d := v.Dot(&v); d != 21 {
		t.Fatalf("Dot (self)\nhave %v\nwant 21", d)
	}
	if l := v.Len(); l != float32(math.Sqrt(21)) {
		t.Fatalf("Len\nhave %v\nwant %v", l, math.Sqrt(21))
	}

	down := V3{0, 0, -2}
	right := V3{0, 4, 0}
	u.Norm(&down)
	if u != (V3{0, 0, -1}) {
		t.Fatalf("Norm\nhave %v\nwant [0 0 -1]", u)
	}
	u.Norm(&right)
	if u != (V3{0, 1, 0}) {
		t.Fatalf("Norm\nhave %v\nwant [0 1 0]", u)
	}

	down.Norm(&down)
	right.Norm(&right)
	u.Cross(&down, &right)
	if u != (V3{1, 0, 0}) {
		t.Fatalf("Cross\nhave %v\nwant [1 0 0]", u)
	}
	u.Cross(&right, &down)
	if u != (V3{-1, 0, 0}) {
		t.Fatalf("Cross (reversed)\nhave %v\nwant [-1 0 0]", u)
	}
}

func TestV4(t *testing.T) {
	v := V4{1, 2, 4, 8}
	w := V4{0, -1, 2, -4}

	var u V4
	u.Add(&v, &w)
	if u != (V4{1, 1, 6, 4}) {
		t.Fatalf("Add\nhave %v\nwant [1 1 6 4]", u)
	}
	u.Sub(&v, &w)
	if u != (V4{1, 3, 2, 12}) {
		t.Fatalf("Sub\nhave %v\nwant [1 3 2 12]", u)
	}
	if d := v.Dot(&v); d != 1+4+16+64 {
		t.Fatalf("Dot (self)\nhave %v\nwant %v", d, 1+4+16+64)
	}

	// Mul through an identity matrix must round-trip v unchanged; this
	// is the same shape PerspectiveReverseZ's own test exercises it in.
	var identity M4
	identity.I()
	u.Mul(&identity, &v)
	if u != v {
		t.Fatalf("Mul by identity\nhave %v\nwant %v", u, v)
	}
}
