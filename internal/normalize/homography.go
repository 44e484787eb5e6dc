package normalize

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"omr-engine/pkg/geometry"
)

// solveHomography computes the projective transform mapping src corners onto
// dst corners by solving the 8-unknown linear system (h33 fixed at 1).
// Four non-degenerate correspondences determine the transform exactly.
func solveHomography(src, dst geometry.Quad) (geometry.Homography, error) {
	// Each correspondence contributes two rows:
	//   x' = (h11 x + h12 y + h13) / (h31 x + h32 y + 1)
	//   y' = (h21 x + h22 y + h23) / (h31 x + h32 y + 1)
	A := mat.NewDense(8, 8, nil)
	B := mat.NewVecDense(8, nil)

	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		xp, yp := dst[i].X, dst[i].Y

		A.Set(i*2, 0, x)
		A.Set(i*2, 1, y)
		A.Set(i*2, 2, 1)
		A.Set(i*2, 6, -x*xp)
		A.Set(i*2, 7, -y*xp)
		B.SetVec(i*2, xp)

		A.Set(i*2+1, 3, x)
		A.Set(i*2+1, 4, y)
		A.Set(i*2+1, 5, 1)
		A.Set(i*2+1, 6, -x*yp)
		A.Set(i*2+1, 7, -y*yp)
		B.SetVec(i*2+1, yp)
	}

	var h mat.VecDense
	if err := h.SolveVec(A, B); err != nil {
		return geometry.Homography{}, fmt.Errorf("degenerate corner configuration: %w", err)
	}

	return geometry.Homography{
		{h.AtVec(0), h.AtVec(1), h.AtVec(2)},
		{h.AtVec(3), h.AtVec(4), h.AtVec(5)},
		{h.AtVec(6), h.AtVec(7), 1},
	}, nil
}

// frameQuad returns the canonical destination quad for a frame size.
func frameQuad(width, height int) geometry.Quad {
	w := float64(width)
	h := float64(height)
	return geometry.Quad{
		{X: 0, Y: 0},
		{X: w - 1, Y: 0},
		{X: w - 1, Y: h - 1},
		{X: 0, Y: h - 1},
	}
}
