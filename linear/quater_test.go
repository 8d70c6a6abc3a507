package linear

import (
	"math"
	"testing"
)

func TestQFromAxisAngleIsUnit(t *testing.T) {
	axis := V3{0, 1, 0}
	var q Q
	q.FromAxisAngle(&axis, math.Pi/2)

	n := q.V.Dot(&q.V) + q.R*q.R
	if math.Abs(float64(n)-1) > 1e-5 {
		t.Fatalf("|q|^2\nhave %v\nwant 1", n)
	}
}

func TestQMulIdentity(t *testing.T) {
	zero := V3{0, 0, 0}
	identity := Q{V: zero, R: 1}

	axis := V3{1, 0, 0}
	var q Q
	q.FromAxisAngle(&axis, math.Pi/3)

	var out Q
	out.Mul(&q, &identity)
	if out != q {
		t.Fatalf("Mul(q, identity)\nhave %+v\nwant %+v", out, q)
	}
	out.Mul(&identity, &q)
	if out != q {
		t.Fatalf("Mul(identity, q)\nhave %+v\nwant %+v", out, q)
	}
}
