package linear

import "github.com/chewxy/math32"

// Q is a quaternion of float32.
type Q struct {
	V V3
	R float32
}

// Mul sets q to contain l ⋅ r.
func (q *Q) Mul(l, r *Q) {
	var v, w V3
	v.Scale(r.R, &l.V)
	w.Scale(l.R, &r.V)
	v.Add(&v, &w)
	w.Cross(&l.V, &r.V)
	d := l.V.Dot(&r.V)
	q.V.Add(&v, &w)
	q.R = l.R*r.R - d
}

// FromAxisAngle sets q to the rotation of angle radians around axis,
// which must be normalized.
func (q *Q) FromAxisAngle(axis *V3, angle float32) {
	s, c := math32.Sincos(angle * 0.5)
	q.V.Scale(s, axis)
	q.R = c
}
