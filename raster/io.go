package raster

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/airbusgeo/godal"
	"github.com/terraprep/anc-ingester/geometry"
)

// Open reads the first band of a GeoTIFF into memory.
func Open(path string) (*Tile, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return nil, fmt.Errorf("Open[%s]: %w", path, err)
	}
	defer ds.Close()

	st := ds.Structure()
	if st.NBands < 1 {
		return nil, fmt.Errorf("Open[%s]: no bands", path)
	}
	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("Open[%s].GeoTransform: %w", path, err)
	}
	transform, err := TransformFromGeo(gt)
	if err != nil {
		return nil, fmt.Errorf("Open[%s]: %w", path, err)
	}

	tile := Tile{
		Width:     st.SizeX,
		Height:    st.SizeY,
		Transform: transform,
		CRS:       datasetCRS(ds),
	}

	band := ds.Bands()[0]
	tile.NoData, tile.HasNoData = band.NoData()
	tile.Data = make([]float64, st.SizeX*st.SizeY)
	if err := band.Read(0, 0, tile.Data, st.SizeX, st.SizeY); err != nil {
		return nil, fmt.Errorf("Open[%s].Read: %w", path, err)
	}
	return &tile, nil
}

// OpenDir opens every .tif file of the directory, in lexical order so that
// the merge order is deterministic.
func OpenDir(dir string) ([]*Tile, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.tif"))
	if err != nil {
		return nil, fmt.Errorf("OpenDir: %w", err)
	}
	sort.Strings(paths)
	var tiles []*Tile
	for _, p := range paths {
		t, err := Open(p)
		if err != nil {
			return nil, fmt.Errorf("OpenDir.%w", err)
		}
		tiles = append(tiles, t)
	}
	return tiles, nil
}

// Write saves the tile as a LZW-compressed GeoTIFF.
func (t *Tile) Write(path string) error {
	ds, err := godal.Create(godal.GTiff, path, 1, godal.Float64, t.Width, t.Height,
		godal.CreationOption("COMPRESS=LZW"))
	if err != nil {
		return fmt.Errorf("Write[%s].Create: %w", path, err)
	}
	defer ds.Close()

	if err := ds.SetGeoTransform(t.Transform.GeoTransform()); err != nil {
		return fmt.Errorf("Write[%s].SetGeoTransform: %w", path, err)
	}
	if t.CRS.Defined() {
		sr, err := t.CRS.SpatialRef()
		if err != nil {
			return fmt.Errorf("Write[%s]: %w", path, err)
		}
		defer sr.Close()
		if err := ds.SetSpatialRef(sr); err != nil {
			return fmt.Errorf("Write[%s].SetSpatialRef: %w", path, err)
		}
	}
	band := ds.Bands()[0]
	if t.HasNoData {
		if err := band.SetNoData(t.NoData); err != nil {
			return fmt.Errorf("Write[%s].SetNoData: %w", path, err)
		}
	}
	if err := band.Write(0, 0, t.Data, t.Width, t.Height); err != nil {
		return fmt.Errorf("Write[%s].Write: %w", path, err)
	}
	return nil
}

// AssignCRS sets the given EPSG on every .tif of the directory that has no
// CRS yet. Rasterized point-cloud tiles come out of the rasterizer without
// a reference system.
func AssignCRS(dir string, epsg int) error {
	paths, err := filepath.Glob(filepath.Join(dir, "*.tif"))
	if err != nil {
		return fmt.Errorf("AssignCRS: %w", err)
	}
	for _, p := range paths {
		if err := assignCRSFile(p, epsg); err != nil {
			return fmt.Errorf("AssignCRS.%w", err)
		}
	}
	return nil
}

func assignCRSFile(path string, epsg int) error {
	ds, err := godal.Open(path, godal.Update())
	if err != nil {
		return fmt.Errorf("assignCRSFile[%s]: %w", path, err)
	}
	defer ds.Close()
	if crs := datasetCRS(ds); crs.Defined() {
		return nil
	}
	sr, err := (geometry.CRS{EPSG: epsg}).SpatialRef()
	if err != nil {
		return fmt.Errorf("assignCRSFile[%s]: %w", path, err)
	}
	defer sr.Close()
	if err := ds.SetSpatialRef(sr); err != nil {
		return fmt.Errorf("assignCRSFile[%s].SetSpatialRef: %w", path, err)
	}
	return nil
}

// NoDataCheck returns whether the raster contains any nodata pixel.
func NoDataCheck(path string) (bool, error) {
	t, err := Open(path)
	if err != nil {
		return false, fmt.Errorf("NoDataCheck.%w", err)
	}
	if !t.HasNoData {
		return false, nil
	}
	for _, v := range t.Data {
		if v == t.NoData {
			return true, nil
		}
	}
	return false, nil
}

// datasetCRS extracts the CRS of a dataset, identifying the EPSG code from
// the WKT authority so that downstream consumers get both forms.
func datasetCRS(ds *godal.Dataset) geometry.CRS {
	sr := ds.SpatialRef()
	if sr == nil {
		return geometry.CRS{}
	}
	wkt, err := sr.WKT()
	if err != nil || wkt == "" {
		return geometry.CRS{}
	}
	return geometry.CRS{EPSG: geometry.EPSGFromWKT(wkt), WKT: wkt}
}
