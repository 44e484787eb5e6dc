package geometry

import "math"

// Homography is a 3x3 projective transform matrix in row-major order.
// It maps source points to destination points in homogeneous coordinates.
type Homography [3][3]float64

// IdentityHomography returns the identity transform.
func IdentityHomography() Homography {
	return Homography{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
}

// Apply maps a point through the homography with perspective division.
func (h Homography) Apply(p Point2D) Point2D {
	w := h[2][0]*p.X + h[2][1]*p.Y + h[2][2]
	if math.Abs(w) < 1e-12 {
		return Point2D{}
	}
	return Point2D{
		X: (h[0][0]*p.X + h[0][1]*p.Y + h[0][2]) / w,
		Y: (h[1][0]*p.X + h[1][1]*p.Y + h[1][2]) / w,
	}
}

// Inverse returns the inverse homography via the adjugate matrix.
// Returns false for singular matrices.
func (h Homography) Inverse() (Homography, bool) {
	det := h[0][0]*(h[1][1]*h[2][2]-h[1][2]*h[2][1]) -
		h[0][1]*(h[1][0]*h[2][2]-h[1][2]*h[2][0]) +
		h[0][2]*(h[1][0]*h[2][1]-h[1][1]*h[2][0])
	if math.Abs(det) < 1e-12 {
		return Homography{}, false
	}

	inv := Homography{
		{
			(h[1][1]*h[2][2] - h[1][2]*h[2][1]),
			(h[0][2]*h[2][1] - h[0][1]*h[2][2]),
			(h[0][1]*h[1][2] - h[0][2]*h[1][1]),
		},
		{
			(h[1][2]*h[2][0] - h[1][0]*h[2][2]),
			(h[0][0]*h[2][2] - h[0][2]*h[2][0]),
			(h[0][2]*h[1][0] - h[0][0]*h[1][2]),
		},
		{
			(h[1][0]*h[2][1] - h[1][1]*h[2][0]),
			(h[0][1]*h[2][0] - h[0][0]*h[2][1]),
			(h[0][0]*h[1][1] - h[0][1]*h[1][0]),
		},
	}
	for i := range inv {
		for j := range inv[i] {
			inv[i][j] /= det
		}
	}
	return inv, true
}
