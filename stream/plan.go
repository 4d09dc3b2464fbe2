package stream

import (
	"fmt"

	gdalasync "github.com/wippyai/gdal-async"
)

// plan splits a window into horizontal chunks of full window width.
//
// With block alignment the first chunk ends on the band's next block row
// boundary and every following chunk spans one block row; the last chunk
// may be short. Without it every chunk is one row. A flipped plan yields
// the same chunks bottom to top.
type plan struct {
	win   gdalasync.Window
	first int // rows in the topmost chunk
	step  int // rows in each following chunk
	flip  bool
}

func newPlan(win gdalasync.Window, blockY int, optimize, flip bool) plan {
	p := plan{win: win, first: 1, step: 1, flip: flip}
	if optimize && blockY > 1 {
		p.step = blockY
		p.first = min(blockY-win.Y%blockY, win.Height)
	}
	return p
}

// count returns the number of chunks.
func (p plan) count() int {
	rest := p.win.Height - p.first
	return 1 + (rest+p.step-1)/p.step
}

// chunk returns the window of the i-th chunk in emission order.
func (p plan) chunk(i int) gdalasync.Window {
	if p.flip {
		i = p.count() - 1 - i
	}
	if i == 0 {
		return p.win.Rows(0, p.first)
	}
	from := p.first + (i-1)*p.step
	return p.win.Rows(from, min(p.step, p.win.Height-from))
}

// total returns the number of elements covered by the plan.
func (p plan) total() int { return p.win.Len() }

// layout returns the buffer layout of a chunk of the given height.
func (p plan) layout(rows int) gdalasync.Layout {
	if p.flip {
		return gdalasync.Flipped(p.win.Width, rows)
	}
	return gdalasync.Packed(p.win.Width)
}

// compatible reports whether two plans cut the same-sized windows at the
// same rows in the same order.
func (p plan) compatible(o plan) bool {
	return p.win.Width == o.win.Width && p.win.Height == o.win.Height &&
		p.first == o.first && p.step == o.step && p.flip == o.flip
}

func (p plan) String() string {
	return fmt.Sprintf("%dx%d first=%d step=%d flip=%t",
		p.win.Width, p.win.Height, p.first, p.step, p.flip)
}
