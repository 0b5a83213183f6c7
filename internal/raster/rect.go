package raster

import (
	"fmt"
	"strconv"
	"strings"
)

// Rect is a half-open rectangle [X0, X1) x [Y0, Y1) in pixel coordinates.
type Rect struct {
	X0, Y0, X1, Y1 int
}

// R is shorthand for Rect{x0, y0, x1, y1}.
func R(x0, y0, x1, y1 int) Rect { return Rect{X0: x0, Y0: y0, X1: x1, Y1: y1} }

// Full returns the rectangle covering a width x height raster.
func Full(width, height int) Rect { return Rect{X1: width, Y1: height} }

// Dx returns the rectangle width.
func (r Rect) Dx() int { return r.X1 - r.X0 }

// Dy returns the rectangle height.
func (r Rect) Dy() int { return r.Y1 - r.Y0 }

// Empty reports whether the rectangle has zero area.
func (r Rect) Empty() bool { return r.X0 >= r.X1 || r.Y0 >= r.Y1 }

// Contains reports whether (x, y) lies inside the rectangle.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X0 && x < r.X1 && y >= r.Y0 && y < r.Y1
}

// Within reports whether r lies entirely inside a width x height raster.
func (r Rect) Within(width, height int) bool {
	return r.X0 >= 0 && r.Y0 >= 0 && r.X1 <= width && r.Y1 <= height && r.X0 <= r.X1 && r.Y0 <= r.Y1
}

// Inset grows (n > 0) or shrinks (n < 0) the rectangle and clips it to a
// width x height raster.
func (r Rect) Inset(n, width, height int) Rect {
	out := Rect{X0: r.X0 - n, Y0: r.Y0 - n, X1: r.X1 + n, Y1: r.Y1 + n}
	if out.X0 < 0 {
		out.X0 = 0
	}
	if out.Y0 < 0 {
		out.Y0 = 0
	}
	if out.X1 > width {
		out.X1 = width
	}
	if out.Y1 > height {
		out.Y1 = height
	}
	return out
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", r.X0, r.Y0, r.X1, r.Y1)
}

// ParseRect parses "x0,y0,x1,y1".
func ParseRect(s string) (Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Rect{}, fmt.Errorf("invalid rect %q: want x0,y0,x1,y1", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Rect{}, fmt.Errorf("invalid rect %q: %w", s, err)
		}
		v[i] = n
	}
	return R(v[0], v[1], v[2], v[3]), nil
}
