package raster

import (
	"errors"
	"math"
	"testing"

	"github.com/terraprep/anc-ingester/geometry"
)

var testCRS = geometry.CRS{EPSG: 3794}

// makeTile builds a width x height tile with top-left world corner at
// (originX, originY), 1m pixels, filled with value.
func makeTile(originX, originY float64, width, height int, value float64) *Tile {
	t := &Tile{
		Data:      make([]float64, width*height),
		Width:     width,
		Height:    height,
		Transform: Transform{OriginX: originX, OriginY: originY, PixelX: 1, PixelY: -1},
		CRS:       testCRS,
		NoData:    -9999,
		HasNoData: true,
	}
	for i := range t.Data {
		t.Data[i] = value
	}
	return t
}

func sameMosaic(a, b *Mosaic) bool {
	if a.Width != b.Width || a.Height != b.Height || a.Transform != b.Transform {
		return false
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			return false
		}
	}
	return true
}

func TestMergeZeroTiles(t *testing.T) {
	aoi := geometry.BoxFootprint(0, 0, 10, 10, testCRS)
	_, err := MergeAndClip(nil, aoi)
	var nde NoDataAvailableError
	if !errors.As(err, &nde) {
		t.Fatalf("expected NoDataAvailableError, got %v", err)
	}
}

func TestMergeClipShape(t *testing.T) {
	// two 10x10 tiles side by side with 2px overlap
	t1 := makeTile(0, 10, 10, 10, 1)
	t2 := makeTile(8, 10, 10, 10, 2)
	aoi := geometry.BoxFootprint(2.5, 1.5, 15.0, 8.0, testCRS)

	m, err := MergeAndClip([]*Tile{t1, t2}, aoi)
	if err != nil {
		t.Fatal(err)
	}
	wantW := int(math.Ceil((15.0 - 2.5) / 1.0))
	wantH := int(math.Ceil((8.0 - 1.5) / 1.0))
	if m.Width != wantW || m.Height != wantH {
		t.Errorf("shape: got %dx%d want %dx%d", m.Width, m.Height, wantW, wantH)
	}
	if m.Transform.OriginX != 2.5 || m.Transform.OriginY != 8.0 {
		t.Errorf("origin: got (%v,%v) want (2.5,8.0)", m.Transform.OriginX, m.Transform.OriginY)
	}
	if m.Transform.PixelX != 1 || m.Transform.PixelY != -1 {
		t.Errorf("pixel size changed: %+v", m.Transform)
	}
}

func TestMergeOrderIndependenceNonOverlapping(t *testing.T) {
	t1 := makeTile(0, 10, 10, 10, 1)
	t2 := makeTile(10, 10, 10, 10, 2)
	aoi := geometry.BoxFootprint(0, 0, 20, 10, testCRS)

	m1, err := MergeAndClip([]*Tile{t1, t2}, aoi)
	if err != nil {
		t.Fatal(err)
	}
	m2, err := MergeAndClip([]*Tile{t2, t1}, aoi)
	if err != nil {
		t.Fatal(err)
	}
	if !sameMosaic(m1, m2) {
		t.Error("merge of non-overlapping tiles depends on input order")
	}
}

func TestMergeDuplicateTilesIdempotent(t *testing.T) {
	t1 := makeTile(0, 10, 10, 10, 7)
	aoi := geometry.BoxFootprint(0, 0, 10, 10, testCRS)

	m1, err := MergeAndClip([]*Tile{t1}, aoi)
	if err != nil {
		t.Fatal(err)
	}
	m2, err := MergeAndClip([]*Tile{t1, t1}, aoi)
	if err != nil {
		t.Fatal(err)
	}
	if !sameMosaic(m1, m2) {
		t.Error("duplicate tile input changed the mosaic")
	}
}

func TestMergeRoundTrip(t *testing.T) {
	// single tile exactly equal to the AOI bounding rectangle
	tile := makeTile(100, 250, 20, 15, 3)
	tile.Data[5] = -9999 // keep a nodata hole, it must survive untouched
	aoi := geometry.BoxFootprint(100, 235, 120, 250, testCRS)

	m, err := MergeAndClip([]*Tile{tile}, aoi)
	if err != nil {
		t.Fatal(err)
	}
	if m.Width != tile.Width || m.Height != tile.Height {
		t.Fatalf("shape: got %dx%d want %dx%d", m.Width, m.Height, tile.Width, tile.Height)
	}
	for i := range tile.Data {
		if m.Data[i] != tile.Data[i] {
			t.Fatalf("pixel %d: got %v want %v", i, m.Data[i], tile.Data[i])
		}
	}
	if m.Transform != tile.Transform {
		t.Errorf("transform: got %+v want %+v", m.Transform, tile.Transform)
	}
}

func TestMergeFirstValidWins(t *testing.T) {
	t1 := makeTile(0, 10, 10, 10, 1)
	t2 := makeTile(8, 10, 10, 10, 2)
	// nodata column in the overlap of t1, t2 must fill it
	for row := 0; row < 10; row++ {
		t1.Data[row*10+9] = -9999
	}
	aoi := geometry.BoxFootprint(0, 0, 18, 10, testCRS)

	m, err := MergeAndClip([]*Tile{t1, t2}, aoi)
	if err != nil {
		t.Fatal(err)
	}
	// col 8: both valid, first tile wins
	if got := m.At(8, 5); got != 1 {
		t.Errorf("overlap col 8: got %v want 1 (first valid wins)", got)
	}
	// col 9: t1 nodata, t2 valid
	if got := m.At(9, 5); got != 2 {
		t.Errorf("overlap col 9: got %v want 2 (nodata filled by later tile)", got)
	}
}

func TestMergeSeamsFilledByBufferedTiles(t *testing.T) {
	// 2x2 grid of 12x12 tiles with 2px overlap, each with a 1px nodata
	// border. Internal seams are covered by the neighbour's valid pixels;
	// only the true outer edge of the grid stays nodata.
	withBorder := func(tile *Tile) *Tile {
		for col := 0; col < tile.Width; col++ {
			tile.Data[col] = -9999
			tile.Data[(tile.Height-1)*tile.Width+col] = -9999
		}
		for row := 0; row < tile.Height; row++ {
			tile.Data[row*tile.Width] = -9999
			tile.Data[row*tile.Width+tile.Width-1] = -9999
		}
		return tile
	}
	tiles := []*Tile{
		withBorder(makeTile(0, 20, 12, 12, 1)),  // north-west
		withBorder(makeTile(10, 20, 12, 12, 2)), // north-east
		withBorder(makeTile(0, 12, 12, 12, 3)),  // south-west
		withBorder(makeTile(10, 12, 12, 12, 4)), // south-east
	}
	aoi := geometry.BoxFootprint(0, 0, 22, 20, testCRS)

	m, err := MergeAndClip(tiles, aoi)
	if err != nil {
		t.Fatal(err)
	}
	for row := 0; row < m.Height; row++ {
		for col := 0; col < m.Width; col++ {
			edge := row == 0 || row == m.Height-1 || col == 0 || col == m.Width-1
			got := m.At(col, row)
			if edge && got != -9999 {
				t.Fatalf("outer edge (%d,%d): got %v want nodata", col, row, got)
			}
			if !edge && got == -9999 {
				t.Fatalf("internal pixel (%d,%d) is nodata (seam not covered)", col, row)
			}
		}
	}
}

func TestMergeWithoutCRSSkipsClip(t *testing.T) {
	t1 := makeTile(0, 10, 10, 10, 1)
	t2 := makeTile(10, 10, 10, 10, 2)
	t1.CRS = geometry.CRS{}
	t2.CRS = geometry.CRS{}
	// AOI smaller than the tiles: must be ignored in degraded mode
	aoi := geometry.BoxFootprint(2, 2, 5, 5, testCRS)

	m, err := MergeAndClip([]*Tile{t1, t2}, aoi)
	if err != nil {
		t.Fatal(err)
	}
	if m.Width != 20 || m.Height != 10 {
		t.Errorf("degraded mode shape: got %dx%d want 20x10", m.Width, m.Height)
	}
}

func TestMergeMixedCRSFails(t *testing.T) {
	t1 := makeTile(0, 10, 10, 10, 1)
	t2 := makeTile(10, 10, 10, 10, 2)
	t2.CRS = geometry.CRS{EPSG: 25832}
	aoi := geometry.BoxFootprint(0, 0, 20, 10, testCRS)
	if _, err := MergeAndClip([]*Tile{t1, t2}, aoi); err == nil {
		t.Error("expected mixed-CRS error")
	}
}
