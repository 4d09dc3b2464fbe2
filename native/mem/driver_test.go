package mem

import (
	"context"
	"strings"
	"testing"

	"github.com/tetratelabs/wazero/api"

	gdalasync "github.com/wippyai/gdal-async"
	"github.com/wippyai/gdal-async/native"
)

func newDriver(t *testing.T, cfg Config) *Driver {
	t.Helper()
	d, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = d.Shutdown() })
	return d
}

func TestKernelSignatures(t *testing.T) {
	d := newDriver(t, Config{})
	if err := validateKernel(d.compiled.ExportedFunctions(), kernelSignatures); err != nil {
		t.Fatalf("kernel does not match its WIT signatures: %v", err)
	}

	wrong := map[string]kernelSignature{"fill": {Params: []string{"u32", "f64"}}}
	if err := validateKernel(d.compiled.ExportedFunctions(), wrong); err == nil {
		t.Fatal("Expected signature mismatch")
	}
	missing := map[string]kernelSignature{"scale": {Params: []string{"u32"}}}
	if err := validateKernel(d.compiled.ExportedFunctions(), missing); err == nil {
		t.Fatal("Expected missing export error")
	}
	bad := map[string]kernelSignature{"fill": {Params: []string{"string"}}}
	if err := validateKernel(d.compiled.ExportedFunctions(), bad); err == nil {
		t.Fatal("Expected non-primitive parameter error")
	}
}

func TestLowerAll(t *testing.T) {
	got, err := lowerAll([]string{"u32", "s64", "f32", "f64", "bool"})
	if err != nil {
		t.Fatalf("lowerAll failed: %v", err)
	}
	want := []api.ValueType{api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF32, api.ValueTypeF64, api.ValueTypeI32}
	if !sameTypes(got, want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
}

func TestCreateWriteRead(t *testing.T) {
	d := newDriver(t, Config{})
	ds, err := d.Create("", 4, 3, 2, native.Float64, 0, 0)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	path, _ := d.Path(ds)
	if !strings.HasPrefix(path, vsimemPrefix) {
		t.Fatalf("Expected anonymous path, got %q", path)
	}

	b2, err := d.Band(ds, 2)
	if err != nil {
		t.Fatalf("Band failed: %v", err)
	}
	if again, _ := d.Band(ds, 2); again != b2 {
		t.Fatal("Band handle must be stable")
	}

	src := make([]float64, 12)
	for i := range src {
		src[i] = float64(i)
	}
	win := gdalasync.Full(4, 3)
	if err := d.RasterIO(b2, native.Write, win, src, gdalasync.Packed(4), nil); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	dst := make([]float64, 4)
	if err := d.RasterIO(b2, native.Read, gdalasync.Window{X: 0, Y: 1, Width: 4, Height: 1}, dst, gdalasync.Packed(4), nil); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	for i, v := range dst {
		if v != float64(4+i) {
			t.Fatalf("pixel %d: expected %d, got %v", i, 4+i, v)
		}
	}

	// Band 1 is untouched.
	b1, _ := d.Band(ds, 1)
	if err := d.RasterIO(b1, native.Read, gdalasync.Window{Width: 4, Height: 1}, dst, gdalasync.Packed(4), nil); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	for _, v := range dst {
		if v != 0 {
			t.Fatalf("band 1 should be zero, got %v", dst)
		}
	}
}

func TestFlippedLayout(t *testing.T) {
	d := newDriver(t, Config{})
	ds, _ := d.Create("/vsimem/flip", 2, 3, 1, native.Int32, 0, 0)
	b, _ := d.Band(ds, 1)

	// Rows given bottom-up.
	src := []float64{5, 6, 3, 4, 1, 2}
	if err := d.RasterIO(b, native.Write, gdalasync.Full(2, 3), src, gdalasync.Flipped(2, 3), nil); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	dst := make([]float64, 6)
	if err := d.RasterIO(b, native.Read, gdalasync.Full(2, 3), dst, gdalasync.Packed(2), nil); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	for i, v := range dst {
		if v != float64(i+1) {
			t.Fatalf("Expected 1..6, got %v", dst)
		}
	}
}

func TestRasterIOErrors(t *testing.T) {
	d := newDriver(t, Config{})
	ds, _ := d.Create("/vsimem/err", 4, 4, 1, native.Byte, 0, 0)
	b, _ := d.Band(ds, 1)

	buf := make([]float64, 16)
	err := d.RasterIO(b, native.Read, gdalasync.Window{X: 2, Y: 2, Width: 4, Height: 4}, buf, gdalasync.Packed(4), nil)
	if err == nil || !strings.Contains(err.Error(), "Access window out of range in RasterIO()") {
		t.Fatalf("Expected out of range error, got %v", err)
	}

	err = d.RasterIO(b, native.Read, gdalasync.Full(4, 4), buf[:10], gdalasync.Packed(4), nil)
	if err == nil || !strings.Contains(err.Error(), "too small") {
		t.Fatalf("Expected buffer error, got %v", err)
	}

	// Byte clamps and truncates.
	vals := []float64{-5, 300, 12.7, 1}
	if err := d.RasterIO(b, native.Write, gdalasync.Window{Width: 4, Height: 1}, vals, gdalasync.Packed(4), nil); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	out := make([]float64, 4)
	_ = d.RasterIO(b, native.Read, gdalasync.Window{Width: 4, Height: 1}, out, gdalasync.Packed(4), nil)
	want := []float64{0, 255, 12, 1}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, out)
		}
	}
}

func TestProgressAbort(t *testing.T) {
	d := newDriver(t, Config{})
	ds, _ := d.Create("", 2, 10, 1, native.Float32, 0, 0)
	b, _ := d.Band(ds, 1)

	calls := 0
	err := d.RasterIO(b, native.Read, gdalasync.Full(2, 10), make([]float64, 20), gdalasync.Packed(2), func(complete float64, _ string) bool {
		calls++
		return complete < 0.5
	})
	if err == nil || err.Error() != "User terminated" {
		t.Fatalf("Expected user terminated, got %v", err)
	}
	if calls != 5 {
		t.Fatalf("Expected abort after 5 rows, got %d calls", calls)
	}

	var last float64
	_, err = d.ComputeStatistics(b, func(complete float64, msg string) bool {
		last = complete
		return true
	})
	if err != nil || last != 1 {
		t.Fatalf("Expected completed statistics, got %v (progress %v)", err, last)
	}
}

func TestProgressPanicReleasesGuard(t *testing.T) {
	d := newDriver(t, Config{})
	ds, _ := d.Create("", 2, 2, 1, native.Float64, 0, 0)
	b, _ := d.Band(ds, 1)

	func() {
		defer func() { _ = recover() }()
		_ = d.RasterIO(b, native.Read, gdalasync.Full(2, 2), make([]float64, 4), gdalasync.Packed(2), func(float64, string) bool {
			panic("callback")
		})
	}()
	if err := d.Fill(b, 1); err != nil {
		t.Fatalf("Guard left held after panic: %v", err)
	}
}

func TestFillKernelAndStatistics(t *testing.T) {
	d := newDriver(t, Config{})
	ds, _ := d.Create("", 300, 200, 2, native.Float64, 0, 0)
	b1, _ := d.Band(ds, 1)
	b2, _ := d.Band(ds, 2)

	if err := d.Fill(b2, 7.5); err != nil {
		t.Fatalf("Fill failed: %v", err)
	}
	st, err := d.ComputeStatistics(b2, nil)
	if err != nil {
		t.Fatalf("ComputeStatistics failed: %v", err)
	}
	if st.Min != 7.5 || st.Max != 7.5 || st.Mean != 7.5 || st.StdDev != 0 || st.Count != 60000 {
		t.Fatalf("Unexpected statistics: %+v", st)
	}

	// The kernel must not spill into the neighbouring band.
	st, _ = d.ComputeStatistics(b1, nil)
	if st.Max != 0 {
		t.Fatalf("band 1 modified by fill: %+v", st)
	}
}

func TestCloseReopenAndHandleReuse(t *testing.T) {
	d := newDriver(t, Config{})
	ds, _ := d.Create("/vsimem/keep.tif", 3, 1, 1, native.Float64, 0, 0)
	b, _ := d.Band(ds, 1)
	_ = d.RasterIO(b, native.Write, gdalasync.Full(3, 1), []float64{1, 2, 3}, gdalasync.Packed(3), nil)

	if err := d.Close(ds); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := d.BandInfo(b); err == nil {
		t.Fatal("Band handle must be invalid after close")
	}
	if d.Handles() != 0 {
		t.Fatalf("Expected no live handles, got %d", d.Handles())
	}

	ro, err := d.Open("/vsimem/keep.tif", native.ReadOnly)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	rb, _ := d.Band(ro, 1)
	if ro != ds || rb != b {
		t.Fatalf("Expected freed handles to be reused, got ds=%d band=%d (old band %d)", ro, rb, b)
	}
	out := make([]float64, 3)
	_ = d.RasterIO(rb, native.Read, gdalasync.Full(3, 1), out, gdalasync.Packed(3), nil)
	if out[0] != 1 || out[2] != 3 {
		t.Fatalf("Data not persisted: %v", out)
	}

	err = d.RasterIO(rb, native.Write, gdalasync.Full(3, 1), out, gdalasync.Packed(3), nil)
	if err == nil || !strings.Contains(err.Error(), "read-only") {
		t.Fatalf("Expected read-only error, got %v", err)
	}
	if _, err := d.Open("/vsimem/keep.tif", native.ReadOnly); err == nil {
		t.Fatal("Expected already-open error")
	}
	if _, err := d.Open("/vsimem/missing.tif", native.ReadOnly); err == nil {
		t.Fatal("Expected open failure")
	}
	if err := d.Unlink("/vsimem/keep.tif"); err == nil {
		t.Fatal("Unlink must refuse an open file")
	}
	_ = d.Close(ro)
	if err := d.Unlink("/vsimem/keep.tif"); err != nil || d.Exists("/vsimem/keep.tif") {
		t.Fatalf("Unlink failed: %v", err)
	}
}

func TestConcurrentEntryDetected(t *testing.T) {
	d := newDriver(t, Config{})
	h, _ := d.Create("", 2, 2, 1, native.Float64, 0, 0)
	ds, _ := d.dataset(h)
	b, _ := d.Band(h, 1)

	if err := d.enter(ds, "RasterIO"); err != nil {
		t.Fatalf("enter failed: %v", err)
	}
	err := d.Fill(b, 1)
	if err == nil || !strings.Contains(err.Error(), "concurrent access") {
		t.Fatalf("Expected concurrent access error, got %v", err)
	}
	if d.Violations() != 1 {
		t.Fatalf("Expected 1 violation, got %d", d.Violations())
	}
	d.leave(ds)
	if err := d.Fill(b, 1); err != nil {
		t.Fatalf("Fill failed after leave: %v", err)
	}
}

func TestMemoryLimit(t *testing.T) {
	d := newDriver(t, Config{MemoryLimitPages: 2})
	if _, err := d.Create("", 64, 64, 1, native.Float64, 0, 0); err != nil {
		t.Fatalf("32KB dataset should fit: %v", err)
	}
	_, err := d.Create("", 256, 256, 1, native.Float64, 0, 0)
	if err == nil {
		t.Fatal("512KB dataset must exceed a 2 page limit")
	}
	var nerr *Error
	if e, ok := err.(*Error); ok {
		nerr = e
	}
	if nerr == nil || nerr.Num != ErrOutOfMemory {
		t.Fatalf("Expected out of memory error, got %v", err)
	}
}

func TestBlockSizeDefaults(t *testing.T) {
	d := newDriver(t, Config{DefaultBlockY: 16})
	ds, _ := d.Create("", 100, 10, 1, native.UInt16, 0, 0)
	b, _ := d.Band(ds, 1)
	info, _ := d.BandInfo(b)
	if info.BlockX != 100 || info.BlockY != 10 {
		t.Fatalf("Expected 100x10 blocks, got %dx%d", info.BlockX, info.BlockY)
	}

	ds2, _ := d.Create("", 100, 50, 1, native.UInt16, 32, 8)
	b2, _ := d.Band(ds2, 1)
	info, _ = d.BandInfo(b2)
	if info.BlockX != 32 || info.BlockY != 8 || info.Type != native.UInt16 {
		t.Fatalf("Unexpected info %+v", info)
	}

	if _, err := d.Band(ds, 2); err == nil {
		t.Fatal("Expected illegal band error")
	}
	if _, err := d.Create("", 0, 5, 1, native.Byte, 0, 0); err == nil {
		t.Fatal("Expected invalid dimensions error")
	}
}
