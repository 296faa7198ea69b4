package source

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/terraprep/anc-ingester/catalog"
	"github.com/terraprep/anc-ingester/common"
	"github.com/terraprep/anc-ingester/geometry"
	"github.com/terraprep/anc-ingester/gridconv"
)

// OpenGeodata NRW, the state survey of North Rhine-Westphalia. One metre
// DTM tiles as gzipped XYZ grids. The easting column carries the UTM zone
// prefix and has to be shifted by 32000000 m.
const (
	deCatalog = "de_fishnet.geojson"
	deEPSG    = 25832 // ETRS89 / UTM 32N

	deBaseURL = "https://www.opengeodata.nrw.de/produkte/geobasis/hm/"
	deDTMPath = "dgm1_xyz/dgm1_xyz/"
	deLAZPath = "3dm_l_las/3dm_l_las/"

	deFalseEasting = 32000000
)

type germanySource struct {
	cfg Config
}

func (s *germanySource) Tag() common.SourceTag { return common.SourceGermanyNRW }

func (s *germanySource) Supports(p common.ProductType) bool {
	return p == common.ProductDTM
}

func (s *germanySource) Profile() Profile {
	return Profile{FillNoData: false}
}

func (s *germanySource) MatchTiles(ctx context.Context, aoi geometry.Footprint, product common.ProductType) ([]catalog.Tile, error) {
	if !s.Supports(product) {
		return nil, UnsupportedDataTypeError{Source: s.Tag(), Product: product}
	}
	cat, err := catalog.Load(ctx, s.cfg.catalogURL(deCatalog),
		filepath.Join(s.cfg.CatalogDir, deCatalog), geometry.CRS{EPSG: deEPSG})
	if err != nil {
		return nil, fmt.Errorf("germany.MatchTiles.%w", err)
	}
	tiles, err := catalog.Match(aoi, cat)
	if err != nil {
		return nil, fmt.Errorf("germany.MatchTiles.%w", err)
	}
	return tiles, nil
}

func (s *germanySource) Acquire(ctx context.Context, product common.ProductType, tiles []catalog.Tile, aoi geometry.Footprint, dir string) (string, []string, error) {
	// Expansion emits neighbour point-cloud names alongside the DTM tiles;
	// the ones that do not exist on the server come back as misses.
	names, err := catalog.NRWFileNames(tiles, "file_name")
	if err != nil {
		return "", nil, fmt.Errorf("germany.Acquire.%w", err)
	}
	var urls []string
	for _, name := range names {
		path := deDTMPath
		if filepath.Ext(name) == ".laz" {
			path = deLAZPath
		}
		urls = append(urls, deBaseURL+path+name)
	}

	outDir := filepath.Join(dir, string(product))
	fetchSkipped, err := fetchAll(ctx, urls, outDir)
	if err != nil {
		return "", nil, fmt.Errorf("germany.Acquire.%w", err)
	}
	// Missing synthesized neighbours are expected, only real grid tiles
	// count as skipped.
	var skipped []string
	for _, name := range fetchSkipped {
		if filepath.Ext(name) != ".laz" {
			skipped = append(skipped, name)
		}
	}
	if err := gunzipAll(ctx, outDir); err != nil {
		return "", nil, fmt.Errorf("germany.Acquire.%w", err)
	}
	opts := gridconv.Options{EPSG: deEPSG, FalseEasting: deFalseEasting}
	if _, err := gridconv.ConvertDir(ctx, outDir, "*.xyz", opts); err != nil {
		return "", nil, fmt.Errorf("germany.Acquire.%w", err)
	}
	return outDir, skipped, nil
}
