package linear

import "testing"

func TestM4IdentityIsMulNeutral(t *testing.T) {
	var i, m, out M4
	i.I()
	m = M4{
		{1, 2, 3, 4},
		{5, 6, 7, 8},
		{9, 10, 11, 12},
		{13, 14, 15, 16},
	}

	out.Mul(&m, &i)
	if out != m {
		t.Fatalf("Mul(m, I)\nhave %v\nwant %v", out, m)
	}
	out.Mul(&i, &m)
	if out != m {
		t.Fatalf("Mul(I, m)\nhave %v\nwant %v", out, m)
	}
}

func TestM4MulComposesColumnMajor(t *testing.T) {
	// A uniform scale by 2 composed with a translation by (1,0,0) must
	// scale first, then translate: applying the result to the origin
	// point (0,0,0,1) must land on (1,0,0,1), matching the column-major
	// convention PerspectiveReverseZ's clip matrix relies on.
	var scale, translate, m M4
	scale.I()
	scale[0][0], scale[1][1], scale[2][2] = 2, 2, 2
	translate.I()
	translate[3][0] = 1

	m.Mul(&translate, &scale)

	var p, origin V4
	origin = V4{0, 0, 0, 1}
	p.Mul(&m, &origin)
	if p != (V4{1, 0, 0, 1}) {
		t.Fatalf("Mul(translate, scale) * origin\nhave %v\nwant [1 0 0 1]", p)
	}
}
