package gridconv

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTemp(t *testing.T, content string) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grid.txt")
	if err := os.WriteFile(path, []byte(content), 0666); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func mustParse(t *testing.T, pts []point, opts Options) (data []float64, w, h int, ox, oy, px, py float64) {
	t.Helper()
	tile, err := gridTile(pts, opts)
	if err != nil {
		t.Fatal(err)
	}
	return tile.Data, tile.Width, tile.Height, tile.Transform.OriginX, tile.Transform.OriginY, tile.Transform.PixelX, tile.Transform.PixelY
}

func TestGridTileColumnMajor(t *testing.T) {
	// 2x2 grid listed column-major with y ascending, 1m spacing
	pts := []point{
		{100, 200, 1}, // lower-left
		{100, 201, 2}, // upper-left
		{101, 200, 3}, // lower-right
		{101, 201, 4}, // upper-right
	}
	data, w, h, ox, oy, px, py := mustParse(t, pts, Options{EPSG: 3794})
	if w != 2 || h != 2 {
		t.Fatalf("shape: got %dx%d want 2x2", w, h)
	}
	// north-up: first row is y=201
	want := []float64{2, 4, 1, 3}
	for i := range want {
		if data[i] != want[i] {
			t.Errorf("pixel %d: got %v want %v", i, data[i], want[i])
		}
	}
	if ox != 100 || oy != 202 {
		t.Errorf("origin: got (%v,%v) want (100,202)", ox, oy)
	}
	if px != 1 || py != -1 {
		t.Errorf("pixel size: got (%v,%v) want (1,-1)", px, py)
	}
}

func TestGridTileRowMajor(t *testing.T) {
	// same grid listed row-major with y descending: placement is by
	// coordinate, not file order
	pts := []point{
		{100, 201, 2},
		{101, 201, 4},
		{100, 200, 1},
		{101, 200, 3},
	}
	data, _, _, _, _, _, _ := mustParse(t, pts, Options{EPSG: 3794})
	want := []float64{2, 4, 1, 3}
	for i := range want {
		if data[i] != want[i] {
			t.Errorf("pixel %d: got %v want %v", i, data[i], want[i])
		}
	}
}

func TestGridTileFalseEasting(t *testing.T) {
	pts := []point{
		{32350000, 5600000, 1},
		{32350000, 5600001, 2},
		{32350001, 5600000, 3},
		{32350001, 5600001, 4},
	}
	_, _, _, ox, _, _, _ := mustParse(t, pts, Options{EPSG: 25832, FalseEasting: 32000000})
	if ox != 350000 {
		t.Errorf("false easting not applied: origin x = %v", ox)
	}
}

func TestGridTileMissingCellIsNoData(t *testing.T) {
	pts := []point{
		{0, 0, 1},
		{0, 1, 2},
		{1, 0, 3},
		// (1,1) missing
	}
	data, w, h, _, _, _, _ := mustParse(t, pts, Options{})
	if w != 2 || h != 2 {
		t.Fatalf("shape: got %dx%d want 2x2", w, h)
	}
	if data[1] != gridNoData {
		t.Errorf("missing cell: got %v want %v", data[1], float64(gridNoData))
	}
}

func TestParsePointsDelimiters(t *testing.T) {
	f := writeTemp(t, "1.5 2.5 3.5\n4.5 5.5 6.5\n")
	pts, err := parsePoints(f, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(pts) != 2 || pts[0].z != 3.5 || pts[1].x != 4.5 {
		t.Errorf("whitespace parse: %+v", pts)
	}

	f = writeTemp(t, "1.5;2.5;3.5\n4.5;5.5;6.5\n")
	pts, err = parsePoints(f, ';')
	if err != nil {
		t.Fatal(err)
	}
	if len(pts) != 2 || pts[1].y != 5.5 {
		t.Errorf("semicolon parse: %+v", pts)
	}
}

func TestParsePointsRejectsShortLine(t *testing.T) {
	f := writeTemp(t, "1 2\n")
	if _, err := parsePoints(f, 0); err == nil {
		t.Error("expected error on 2-column line")
	}
}

func TestUTMZoneFromHTML(t *testing.T) {
	page := `<html><body><dl>
<dt><em>Grid_Coordinate_System_Name:</em>  Universal Transverse Mercator</dt>
<dt><em>UTM_Zone_Number:</em>  14</dt>
</dl></body></html>`
	zone, err := UTMZoneFromHTML(strings.NewReader(page))
	if err != nil {
		t.Fatal(err)
	}
	if zone != 14 {
		t.Errorf("zone: got %d want 14", zone)
	}
}

func TestUTMZoneFromHTMLMissing(t *testing.T) {
	if _, err := UTMZoneFromHTML(strings.NewReader("<html><body></body></html>")); err == nil {
		t.Error("expected error when zone is absent")
	}
}
