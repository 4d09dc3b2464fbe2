// Package native declares the boundary to the wrapped geospatial library.
//
// The interface mirrors a C-style API: every resource is an opaque [Handle],
// calls are synchronous and may block, and the library is neither reentrant
// nor safe for concurrent use on one dataset. Callers above this package are
// responsible for serializing access per dataset and for never touching a
// handle after the dataset that owns it was closed.
//
// Handle values may be reused by the library after the resource behind them
// is destroyed.
package native

import (
	"fmt"

	gdalasync "github.com/wippyai/gdal-async"
)

// Handle is an opaque native resource identity. Zero is never a valid handle.
type Handle uint64

// DataType is the pixel type of a raster band.
type DataType uint8

const (
	Unknown DataType = iota
	Byte
	UInt16
	Int16
	UInt32
	Int32
	Float32
	Float64
)

// Size returns the size of one pixel in bytes.
func (t DataType) Size() int {
	switch t {
	case Byte:
		return 1
	case UInt16, Int16:
		return 2
	case UInt32, Int32, Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

func (t DataType) String() string {
	switch t {
	case Byte:
		return "Byte"
	case UInt16:
		return "UInt16"
	case Int16:
		return "Int16"
	case UInt32:
		return "UInt32"
	case Int32:
		return "Int32"
	case Float32:
		return "Float32"
	case Float64:
		return "Float64"
	default:
		return "Unknown"
	}
}

// ParseDataType returns the DataType named s.
func ParseDataType(s string) (DataType, error) {
	for t := Byte; t <= Float64; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return Unknown, fmt.Errorf("unknown data type %q", s)
}

// Clamp converts v to the value range of t, truncating toward zero for
// integer types.
func (t DataType) Clamp(v float64) float64 {
	lo, hi, integer := t.bounds()
	if !integer {
		if t == Float32 {
			return float64(float32(v))
		}
		return v
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return float64(int64(v))
}

func (t DataType) bounds() (lo, hi float64, integer bool) {
	switch t {
	case Byte:
		return 0, 255, true
	case UInt16:
		return 0, 65535, true
	case Int16:
		return -32768, 32767, true
	case UInt32:
		return 0, 4294967295, true
	case Int32:
		return -2147483648, 2147483647, true
	default:
		return 0, 0, false
	}
}

// Access is the mode a dataset is opened in.
type Access uint8

const (
	ReadOnly Access = iota
	Update
)

// RWFlag selects the direction of a RasterIO call.
type RWFlag uint8

const (
	Read RWFlag = iota
	Write
)

func (f RWFlag) String() string {
	if f == Write {
		return "write"
	}
	return "read"
}

// BandInfo is the immutable description of a raster band.
type BandInfo struct {
	XSize  int
	YSize  int
	BlockX int
	BlockY int
	Index  int
	Type   DataType
}

// Statistics are band statistics computed by the library.
type Statistics struct {
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
	Count  int
}

// Feature is one vector feature.
type Feature struct {
	Fields map[string]any
	WKT    string
	FID    int64
}

// ProgressFunc is called synchronously from inside long native calls.
// complete is in [0, 1]. Returning false asks the library to abort the call.
type ProgressFunc func(complete float64, message string) bool

// Library is the native geospatial library.
type Library interface {
	// Create creates a new dataset with n bands. An empty path creates an
	// anonymous dataset.
	Create(path string, xsize, ysize, bands int, dt DataType, blockX, blockY int) (Handle, error)
	Open(path string, access Access) (Handle, error)
	// Close destroys the dataset and every handle derived from it.
	Close(ds Handle) error
	Path(ds Handle) (string, error)
	RasterSize(ds Handle) (xsize, ysize int, err error)
	BandCount(ds Handle) (int, error)
	Flush(ds Handle) error

	// Band returns the handle of band i (1-based). The same band always
	// has the same handle while its dataset is open.
	Band(ds Handle, i int) (Handle, error)
	BandInfo(band Handle) (BandInfo, error)
	// RasterIO transfers win between the band and buf. buf is addressed
	// through layout and must hold every pixel of win.
	RasterIO(band Handle, flag RWFlag, win gdalasync.Window, buf []float64, layout gdalasync.Layout, progress ProgressFunc) error
	Fill(band Handle, value float64) error
	ComputeStatistics(band Handle, progress ProgressFunc) (Statistics, error)

	LayerCount(ds Handle) (int, error)
	CreateLayer(ds Handle, name string) (Handle, error)
	Layer(ds Handle, name string) (Handle, error)
	DeleteLayer(ds Handle, name string) error
	AddFeature(layer Handle, f Feature) (int64, error)
	Feature(layer Handle, fid int64) (Feature, error)
	FeatureCount(layer Handle) (int, error)
	// Features calls fn for every feature in FID order until fn returns
	// false.
	Features(layer Handle, fn func(Feature) bool) error

	// Shutdown releases the library. Handles are invalid afterwards.
	Shutdown() error
}
