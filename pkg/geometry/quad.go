package geometry

import (
	"math"
	"sort"
)

// Quad is a convex quadrilateral with corners ordered TL, TR, BR, BL.
type Quad [4]Point2D

// OrderQuad orders four corner points into TL, TR, BR, BL order.
// Points are split into top/bottom pairs by Y, then each pair sorted by X.
func OrderQuad(corners []Point2D) (Quad, bool) {
	if len(corners) != 4 {
		return Quad{}, false
	}

	sorted := make([]Point2D, 4)
	copy(sorted, corners)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Y < sorted[j].Y
	})

	topPair := sorted[:2]
	bottomPair := sorted[2:]

	sort.Slice(topPair, func(i, j int) bool {
		return topPair[i].X < topPair[j].X
	})
	sort.Slice(bottomPair, func(i, j int) bool {
		return bottomPair[i].X < bottomPair[j].X
	})

	return Quad{
		topPair[0],    // TL
		topPair[1],    // TR
		bottomPair[1], // BR
		bottomPair[0], // BL
	}, true
}

// Width returns the mean length of the top and bottom edges.
func (q Quad) Width() float64 {
	return (q[0].Distance(q[1]) + q[3].Distance(q[2])) / 2
}

// Height returns the mean length of the left and right edges.
func (q Quad) Height() float64 {
	return (q[0].Distance(q[3]) + q[1].Distance(q[2])) / 2
}

// AspectRatio returns width/height. Returns +Inf for degenerate quads.
func (q Quad) AspectRatio() float64 {
	h := q.Height()
	if h == 0 {
		return math.Inf(1)
	}
	return q.Width() / h
}

// Area returns the area of the quadrilateral using the shoelace formula.
func (q Quad) Area() float64 {
	var sum float64
	for i := 0; i < 4; i++ {
		j := (i + 1) % 4
		sum += q[i].X*q[j].Y - q[j].X*q[i].Y
	}
	return math.Abs(sum) / 2
}

// SkewAngle returns the rotation of the top edge relative to horizontal,
// in degrees. Positive values indicate clockwise skew.
func (q Quad) SkewAngle() float64 {
	dx := q[1].X - q[0].X
	dy := q[1].Y - q[0].Y
	return math.Atan2(dy, dx) * 180 / math.Pi
}

// IsConvex returns true if the quad's corners form a convex polygon.
func (q Quad) IsConvex() bool {
	var sign int
	for i := 0; i < 4; i++ {
		a := q[i]
		b := q[(i+1)%4]
		c := q[(i+2)%4]
		cross := (b.X-a.X)*(c.Y-b.Y) - (b.Y-a.Y)*(c.X-b.X)
		if cross == 0 {
			continue
		}
		s := 1
		if cross < 0 {
			s = -1
		}
		if sign == 0 {
			sign = s
		} else if sign != s {
			return false
		}
	}
	return sign != 0
}
