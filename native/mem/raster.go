package mem

import (
	"math"

	gdalasync "github.com/wippyai/gdal-async"
	"github.com/wippyai/gdal-async/native"
)

// RasterIO transfers win between a band and buf. The progress callback is
// invoked after every row; returning false aborts the transfer.
func (d *Driver) RasterIO(h native.Handle, flag native.RWFlag, win gdalasync.Window, buf []float64, layout gdalasync.Layout, progress native.ProgressFunc) error {
	b, err := d.band(h)
	if err != nil {
		return err
	}
	ds, f := b.ds, b.ds.file
	if !win.Within(f.xsize, f.ysize) {
		return failf(ErrIllegalArg,
			"Access window out of range in RasterIO().  Requested (%d,%d) of size %dx%d on raster of %dx%d.",
			win.X, win.Y, win.Width, win.Height, f.xsize, f.ysize)
	}
	if !layout.Fits(win.Width, win.Height, len(buf)) {
		return failf(ErrIllegalArg, "RasterIO(): buffer of %d elements too small for %s", len(buf), win)
	}
	if flag == native.Write {
		if err := d.writable(ds, "RasterIO"); err != nil {
			return err
		}
	}

	if err := d.enter(ds, "RasterIO"); err != nil {
		return err
	}
	defer d.leave(ds)

	for y := range win.Height {
		row := b.base + uint32(((win.Y+y)*f.xsize+win.X)*8)
		for x := range win.Width {
			off := row + uint32(x*8)
			i := layout.Index(x, y)
			if flag == native.Write {
				ds.heap.store(off, f.dtype.Clamp(buf[i]))
			} else {
				buf[i] = ds.heap.load(off)
			}
		}
		if flag == native.Write {
			ds.dirty = true
		}
		if progress != nil && !progress(float64(y+1)/float64(win.Height), "") {
			return failf(ErrUserInterupt, "User terminated")
		}
	}
	return nil
}

// Fill sets every pixel of a band to value using the guest fill kernel.
func (d *Driver) Fill(h native.Handle, value float64) error {
	b, err := d.band(h)
	if err != nil {
		return err
	}
	ds, f := b.ds, b.ds.file
	if err := d.writable(ds, "GDALFillRaster"); err != nil {
		return err
	}
	if err := d.enter(ds, "GDALFillRaster"); err != nil {
		return err
	}
	defer d.leave(ds)

	if err := ds.heap.fillRange(d.ctx, b.base, f.xsize*f.ysize, f.dtype.Clamp(value)); err != nil {
		return failf(ErrAppDefined, "GDALFillRaster(): %v", err)
	}
	ds.dirty = true
	return nil
}

// ComputeStatistics scans a band, reporting progress after every row.
func (d *Driver) ComputeStatistics(h native.Handle, progress native.ProgressFunc) (native.Statistics, error) {
	b, err := d.band(h)
	if err != nil {
		return native.Statistics{}, err
	}
	ds, f := b.ds, b.ds.file
	if err := d.enter(ds, "GDALComputeRasterStatistics"); err != nil {
		return native.Statistics{}, err
	}
	defer d.leave(ds)

	var (
		st       = native.Statistics{Min: math.Inf(1), Max: math.Inf(-1)}
		sum, sq  float64
		rowBytes = uint32(f.xsize * 8)
	)
	for y := range f.ysize {
		row := b.base + uint32(y)*rowBytes
		for x := range f.xsize {
			v := ds.heap.load(row + uint32(x*8))
			st.Min = min(st.Min, v)
			st.Max = max(st.Max, v)
			sum += v
			sq += v * v
		}
		if progress != nil && !progress(float64(y+1)/float64(f.ysize), "Compute Statistics") {
			return native.Statistics{}, failf(ErrUserInterupt, "User terminated")
		}
	}
	st.Count = f.xsize * f.ysize
	st.Mean = sum / float64(st.Count)
	st.StdDev = math.Sqrt(max(sq/float64(st.Count)-st.Mean*st.Mean, 0))
	return st, nil
}
