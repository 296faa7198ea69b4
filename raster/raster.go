// Package raster holds the single-band raster model and the mosaic/clip
// engine used to assemble downloaded tiles into one product aligned to the
// AOI bounding rectangle.
package raster

import (
	"fmt"
	"math"

	"github.com/terraprep/anc-ingester/geometry"
)

// Transform is a north-up affine transform: world coordinates of the
// top-left corner of the top-left pixel, and signed pixel sizes (PixelY is
// negative).
type Transform struct {
	OriginX float64
	OriginY float64
	PixelX  float64
	PixelY  float64
}

// Bounds returns the world extents [minx, miny, maxx, maxy] of a raster of
// the given shape under the transform.
func (t Transform) Bounds(width, height int) (minx, miny, maxx, maxy float64) {
	minx = t.OriginX
	maxy = t.OriginY
	maxx = t.OriginX + float64(width)*t.PixelX
	miny = t.OriginY + float64(height)*t.PixelY
	return
}

// GeoTransform returns the GDAL-ordered 6-element affine transform.
func (t Transform) GeoTransform() [6]float64 {
	return [6]float64{t.OriginX, t.PixelX, 0, t.OriginY, 0, t.PixelY}
}

// TransformFromGeo builds a Transform from a GDAL 6-element affine
// transform. Rotation terms are not supported.
func TransformFromGeo(gt [6]float64) (Transform, error) {
	if gt[2] != 0 || gt[4] != 0 {
		return Transform{}, fmt.Errorf("rotated rasters are not supported")
	}
	return Transform{OriginX: gt[0], PixelX: gt[1], OriginY: gt[3], PixelY: gt[5]}, nil
}

// Tile is one single-band raster dataset in memory: pixel array in row-major
// order, affine transform, CRS and nodata marker.
type Tile struct {
	Data      []float64
	Width     int
	Height    int
	Transform Transform
	CRS       geometry.CRS
	NoData    float64
	HasNoData bool
}

// At returns the pixel value at (col, row).
func (t *Tile) At(col, row int) float64 {
	return t.Data[row*t.Width+col]
}

// Valid reports whether v is a measurement (not the nodata marker).
func (t *Tile) Valid(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	return !t.HasNoData || v != t.NoData
}

// Mosaic is the result of merging tiles: a single array with a unified
// transform, clipped to the AOI bounding rectangle when a CRS is available.
type Mosaic struct {
	Tile
}

// NoDataAvailableError reports that zero tiles were matched or merged. Fatal
// for the primary product; the secondary product degrades to absent.
type NoDataAvailableError struct {
	Reason string
}

func (e NoDataAvailableError) Error() string {
	return "no data available: " + e.Reason
}
