package raster

import (
	"fmt"
	"math"

	"github.com/terraprep/anc-ingester/geometry"
)

// MergeAndClip merges the tiles into one mosaic cropped to the bounding
// rectangle of the AOI footprint.
//
// The tiles are expected to share the same CRS and pixel size; the mosaic
// never resamples. When the tiles carry no CRS (freshly rasterized
// point-cloud tiles before CRS assignment), the clip step is skipped and the
// mosaic extent is the union of the tile extents, stitched in pixel space.
//
// Overlap policy: the first valid value wins, in input order. Nodata pixels
// of one tile are filled by valid pixels of a later tile. Duplicate tiles
// are therefore harmless.
func MergeAndClip(tiles []*Tile, aoi geometry.Footprint) (*Mosaic, error) {
	if len(tiles) == 0 {
		return nil, NoDataAvailableError{Reason: "zero tiles to merge"}
	}

	ref := tiles[0]
	px, py := ref.Transform.PixelX, ref.Transform.PixelY
	if px <= 0 || py >= 0 {
		return nil, fmt.Errorf("MergeAndClip: tile transform is not north-up (px=%v py=%v)", px, py)
	}
	for _, t := range tiles[1:] {
		if !t.CRS.Equal(ref.CRS) {
			return nil, fmt.Errorf("MergeAndClip: tiles with mixed CRS (%s vs %s)", t.CRS, ref.CRS)
		}
		if t.Transform.PixelX != px || t.Transform.PixelY != py {
			return nil, fmt.Errorf("MergeAndClip: tiles with mixed pixel size, refusing to resample")
		}
	}

	var minx, miny, maxx, maxy float64
	if ref.CRS.Defined() {
		// Clip to the bounding rectangle of the AOI, reprojected into the
		// tiles' CRS. A rectangle, not the exact AOI shape: the output grid
		// stays rectangular whatever the AOI polygon looks like.
		aoiPr, err := geometry.Reproject(aoi, ref.CRS)
		if err != nil {
			return nil, fmt.Errorf("MergeAndClip.%w", err)
		}
		if minx, miny, maxx, maxy, err = geometry.Bounds(aoiPr); err != nil {
			return nil, fmt.Errorf("MergeAndClip.%w", err)
		}
	} else {
		// Degraded mode: no clip, output covers the union of the tiles.
		minx, miny, maxx, maxy = ref.Transform.Bounds(ref.Width, ref.Height)
		for _, t := range tiles[1:] {
			tminx, tminy, tmaxx, tmaxy := t.Transform.Bounds(t.Width, t.Height)
			minx, miny = math.Min(minx, tminx), math.Min(miny, tminy)
			maxx, maxy = math.Max(maxx, tmaxx), math.Max(maxy, tmaxy)
		}
	}

	width := int(math.Ceil((maxx - minx) / px))
	height := int(math.Ceil((maxy - miny) / -py))
	if width <= 0 || height <= 0 {
		return nil, NoDataAvailableError{Reason: "clip rectangle is empty"}
	}

	out := Mosaic{Tile{
		Data:      make([]float64, width*height),
		Width:     width,
		Height:    height,
		Transform: Transform{OriginX: minx, OriginY: maxy, PixelX: px, PixelY: py},
		CRS:       ref.CRS,
		NoData:    ref.NoData,
		HasNoData: ref.HasNoData,
	}}

	fill := 0.0
	if out.HasNoData {
		fill = out.NoData
	}
	filled := make([]bool, width*height)
	if fill != 0 {
		for i := range out.Data {
			out.Data[i] = fill
		}
	}

	for _, t := range tiles {
		// Pixel offset of the tile's top-left corner in the output grid.
		colOff := int(math.Round((t.Transform.OriginX - out.Transform.OriginX) / px))
		rowOff := int(math.Round((t.Transform.OriginY - out.Transform.OriginY) / py))
		for row := 0; row < t.Height; row++ {
			orow := row + rowOff
			if orow < 0 || orow >= height {
				continue
			}
			for col := 0; col < t.Width; col++ {
				ocol := col + colOff
				if ocol < 0 || ocol >= width {
					continue
				}
				oidx := orow*width + ocol
				if filled[oidx] {
					continue
				}
				if v := t.At(col, row); t.Valid(v) {
					out.Data[oidx] = v
					filled[oidx] = true
				}
			}
		}
	}

	return &out, nil
}
