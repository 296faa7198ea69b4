package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/terraprep/anc-ingester/common"
	"github.com/terraprep/anc-ingester/geometry"
)

const coverageJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"abbrev": "NL"},
     "geometry": {"type": "Polygon", "coordinates": [[[3,50],[8,50],[8,54],[3,54],[3,50]]]}},
    {"type": "Feature", "properties": {"abbrev": "DE_NRW"},
     "geometry": {"type": "Polygon", "coordinates": [[[6,50],[9,50],[9,53],[6,53],[6,50]]]}}
  ]
}`

func writeCoverage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "regions.geojson")
	if err := os.WriteFile(path, []byte(coverageJSON), 0666); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadCoverage(t *testing.T) {
	cov, err := LoadCoverage(context.Background(), "", writeCoverage(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(cov.Regions) != 2 {
		t.Fatalf("regions: got %d want 2", len(cov.Regions))
	}
	if cov.Regions[0].Tag != common.SourceNetherlands || cov.Regions[1].Tag != common.SourceGermanyNRW {
		t.Errorf("region order: %v %v", cov.Regions[0].Tag, cov.Regions[1].Tag)
	}
}

func TestSelectFirstContainingRegionWins(t *testing.T) {
	cov, err := LoadCoverage(context.Background(), "", writeCoverage(t))
	if err != nil {
		t.Fatal(err)
	}
	// inside the overlap of both coverages: index order decides
	aoi := geometry.BoxFootprint(6.5, 51, 7.5, 52, geometry.WGS84)
	tag, err := cov.Select(context.Background(), aoi)
	if err != nil {
		t.Fatal(err)
	}
	if tag != common.SourceNetherlands {
		t.Errorf("got %v want %v", tag, common.SourceNetherlands)
	}
}

func TestSelectStraddlingFallsBack(t *testing.T) {
	cov, err := LoadCoverage(context.Background(), "", writeCoverage(t))
	if err != nil {
		t.Fatal(err)
	}
	// crosses the eastern edge of both coverages
	aoi := geometry.BoxFootprint(8.5, 51, 10, 52, geometry.WGS84)
	tag, err := cov.Select(context.Background(), aoi)
	if err != nil {
		t.Fatal(err)
	}
	if tag != common.SourceSRTM {
		t.Errorf("got %v want %v", tag, common.SourceSRTM)
	}
}

func TestSelectOutsideFallsBack(t *testing.T) {
	cov, err := LoadCoverage(context.Background(), "", writeCoverage(t))
	if err != nil {
		t.Fatal(err)
	}
	aoi := geometry.BoxFootprint(-100, 30, -99, 31, geometry.WGS84)
	tag, err := cov.Select(context.Background(), aoi)
	if err != nil {
		t.Fatal(err)
	}
	if tag != common.SourceSRTM {
		t.Errorf("got %v want %v", tag, common.SourceSRTM)
	}
}

func boxTile(id string, minx, miny, maxx, maxy float64, crs geometry.CRS, attrs map[string]string) Tile {
	return Tile{ID: id, Footprint: geometry.BoxFootprint(minx, miny, maxx, maxy, crs), Attrs: attrs}
}

func TestMatchPreservesOrderAndDuplicates(t *testing.T) {
	crs := geometry.CRS{EPSG: 25832}
	cat := &TileCatalog{CRS: crs, Tiles: []Tile{
		boxTile("a", 0, 0, 1000, 1000, crs, nil),
		boxTile("far", 50000, 50000, 51000, 51000, crs, nil),
		boxTile("b", 1000, 0, 2000, 1000, crs, nil),
		boxTile("a", 0, 0, 1000, 1000, crs, nil), // duplicate entry
	}}
	aoi := geometry.BoxFootprint(500, 200, 1500, 800, crs)

	matched, err := Match(aoi, cat)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, m := range matched {
		ids = append(ids, m.ID)
	}
	want := []string{"a", "b", "a"}
	if len(ids) != len(want) {
		t.Fatalf("matched %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("matched %v, want %v", ids, want)
		}
	}
}

func TestMatchTouchingTileIncluded(t *testing.T) {
	crs := geometry.CRS{EPSG: 25832}
	cat := &TileCatalog{CRS: crs, Tiles: []Tile{
		boxTile("edge", 1000, 0, 2000, 1000, crs, nil),
	}}
	// AOI ends exactly on the western edge of the tile
	aoi := geometry.BoxFootprint(0, 0, 1000, 1000, crs)
	matched, err := Match(aoi, cat)
	if err != nil {
		t.Fatal(err)
	}
	if len(matched) != 1 {
		t.Errorf("edge-touching tile not matched")
	}
}

func TestNRWFileNames(t *testing.T) {
	tiles := []Tile{
		{ID: "t", Attrs: map[string]string{
			"file_name": "dgm1_32_350_5600_1_nw.xyz.gz",
			"left":      "350000",
			"bottom":    "5600000",
		}},
	}
	names, err := NRWFileNames(tiles, "file_name")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"dgm1_32_350_5600_1_nw.xyz.gz",
		"3dm_32_351_5600_1_nw.laz",
		"3dm_32_350_5601_1_nw.laz",
		"3dm_32_351_5601_1_nw.laz",
	}
	if len(names) != len(want) {
		t.Fatalf("names %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names %v, want %v", names, want)
		}
	}
}

func TestNRWFileNamesDeduplicated(t *testing.T) {
	tiles := []Tile{
		{ID: "a", Attrs: map[string]string{
			"file_name": "dgm1_32_350_5600_1_nw.xyz.gz",
			"left":      "350000",
			"bottom":    "5600000",
		}},
		{ID: "b", Attrs: map[string]string{
			"file_name": "dgm1_32_351_5600_1_nw.xyz.gz",
			"left":      "351000",
			"bottom":    "5600000",
		}},
	}
	names, err := NRWFileNames(tiles, "file_name")
	if err != nil {
		t.Fatal(err)
	}
	// 3dm_32_351_5601 is a neighbour of both tiles and must appear once
	if len(names) != 7 {
		t.Fatalf("got %d names (%v), want 7", len(names), names)
	}
	seen := map[string]bool{}
	for _, n := range names {
		if seen[n] {
			t.Errorf("duplicate name %s", n)
		}
		seen[n] = true
	}
}

func TestBundledCatalogs(t *testing.T) {
	required := map[string][]string{
		"regions.geojson":                {"abbrev"},
		"ahn3.geojson":                   {"AHN3_05m_DTM", "AHN3_LAZ"},
		"dk_dtm.geojson":                 {"filename"},
		"dk_punktsky.geojson":            {"filename"},
		"si_fishnet.geojson":             {"BLOK", "NAME"},
		"de_fishnet.geojson":             {"file_name", "left", "bottom"},
		"mx_fishnet.geojson":             {"upc"},
		"srtm30m_bounding_boxes.geojson": {"tile_name"},
	}
	for name, attrs := range required {
		cat, err := Load(context.Background(), "", filepath.Join("..", "data", name), geometry.WGS84)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(cat.Tiles) == 0 {
			t.Errorf("%s: no tiles", name)
			continue
		}
		for _, a := range attrs {
			if _, err := cat.Tiles[0].Attr(a); err != nil {
				t.Errorf("%s: %v", name, err)
			}
		}
	}
}

func TestLoadFallsBackToBundledFile(t *testing.T) {
	path := writeCoverage(t)
	cat, err := Load(context.Background(), "http://127.0.0.1:1/unreachable", path, geometry.WGS84)
	if err != nil {
		t.Fatal(err)
	}
	if len(cat.Tiles) != 2 {
		t.Errorf("fallback catalog: got %d tiles want 2", len(cat.Tiles))
	}
}
