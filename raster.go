package gdalasync

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// Number is the set of pixel element types a buffer may hold.
type Number interface {
	constraints.Integer | constraints.Float
}

// Window is a rectangular pixel region of a raster band.
type Window struct {
	X      int `yaml:"x"`
	Y      int `yaml:"y"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Full returns the window covering a whole width×height raster.
func Full(width, height int) Window {
	return Window{Width: width, Height: height}
}

// Len returns the number of pixels in the window.
func (w Window) Len() int {
	return w.Width * w.Height
}

// Empty reports whether the window covers no pixels.
func (w Window) Empty() bool {
	return w.Width <= 0 || w.Height <= 0
}

// Within reports whether w lies inside a width×height raster.
func (w Window) Within(width, height int) bool {
	return w.X >= 0 && w.Y >= 0 && w.Width > 0 && w.Height > 0 &&
		w.X+w.Width <= width && w.Y+w.Height <= height
}

// Rows returns the sub-window made of rows [from, from+n) of w.
func (w Window) Rows(from, n int) Window {
	return Window{X: w.X, Y: w.Y + from, Width: w.Width, Height: n}
}

func (w Window) String() string {
	return fmt.Sprintf("%dx%d@%d,%d", w.Width, w.Height, w.X, w.Y)
}

// Layout describes how window pixels map onto a flat buffer, in elements.
// Pixel (x, y) of the window lives at Offset + x*PixelSpace + y*LineSpace.
// A negative LineSpace with Offset pointing at the last row addresses the
// buffer bottom-up, which is how flipped reads and writes are expressed.
type Layout struct {
	Offset     int
	PixelSpace int
	LineSpace  int
}

// Packed returns the row-major layout for a window of the given width.
func Packed(width int) Layout {
	return Layout{PixelSpace: 1, LineSpace: width}
}

// Flipped returns the bottom-up row-major layout for a width×height window.
func Flipped(width, height int) Layout {
	return Layout{Offset: (height - 1) * width, PixelSpace: 1, LineSpace: -width}
}

// Index returns the buffer index of window pixel (x, y).
func (l Layout) Index(x, y int) int {
	return l.Offset + x*l.PixelSpace + y*l.LineSpace
}

// Span returns the lowest and highest buffer index touched by a width×height
// window under l.
func (l Layout) Span(width, height int) (lo, hi int) {
	lo, hi = l.Offset, l.Offset
	for _, c := range [3]int{
		l.Index(width-1, 0),
		l.Index(0, height-1),
		l.Index(width-1, height-1),
	} {
		lo = min(lo, c)
		hi = max(hi, c)
	}
	return lo, hi
}

// Fits reports whether every pixel of a width×height window lands inside a
// buffer of length n.
func (l Layout) Fits(width, height, n int) bool {
	if width <= 0 || height <= 0 {
		return true
	}
	lo, hi := l.Span(width, height)
	return lo >= 0 && hi < n
}
