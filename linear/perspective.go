package linear

import "github.com/chewxy/math32"

// PerspectiveReverseZ computes a column-major clip-from-view matrix
// using a reversed depth range: the near plane maps to clip.z/clip.w
// == 1 and the far plane maps to clip.z/clip.w == 0. Reversing the
// depth range trades the non-linear precision of a floating-point
// depth buffer so that precision concentrates near the far plane
// instead of the near plane, see
// https://developer.nvidia.com/content/depth-precision-visualized.
//
// fov is the vertical field of view in radians, ar is width/height,
// and zNear/zFar are positive view-space distances with zNear < zFar.
func PerspectiveReverseZ(fov, ar, zNear, zFar float32) M4 {
	tf := 1 / math32.Tan(fov*0.5)

	var m M4
	m[0][0] = tf / ar
	m[1][1] = tf
	m[2][2] = zNear / (zFar - zNear)
	m[2][3] = -1
	m[3][2] = zNear * zFar / (zFar - zNear)
	return m
}
