package source

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/terraprep/anc-ingester/catalog"
	"github.com/terraprep/anc-ingester/common"
	"github.com/terraprep/anc-ingester/geometry"
)

// AHN3, the Dutch national lidar programme. Half metre DTM tiles and the
// point clouds they were derived from, both as direct downloads. The tile
// index is published as GeoJSON.
const (
	ahn3Catalog = "ahn3.geojson"
	ahn3EPSG    = 28992 // Amersfoort / RD New

	ahn3DTMAttr = "AHN3_05m_DTM"
	ahn3LAZAttr = "AHN3_LAZ"
)

type netherlandsSource struct {
	cfg Config
}

func (s *netherlandsSource) Tag() common.SourceTag { return common.SourceNetherlands }

func (s *netherlandsSource) Supports(p common.ProductType) bool {
	return p == common.ProductDTM || p == common.ProductPointCloud
}

func (s *netherlandsSource) Profile() Profile {
	// AHN3 DTM tiles have holes over water and buildings.
	return Profile{FillNoData: true, PointCloudEPSG: ahn3EPSG, AssignCRS: true}
}

func (s *netherlandsSource) MatchTiles(ctx context.Context, aoi geometry.Footprint, product common.ProductType) ([]catalog.Tile, error) {
	if !s.Supports(product) {
		return nil, UnsupportedDataTypeError{Source: s.Tag(), Product: product}
	}
	cat, err := catalog.Load(ctx, s.cfg.catalogURL(ahn3Catalog),
		filepath.Join(s.cfg.CatalogDir, ahn3Catalog), geometry.WGS84)
	if err != nil {
		return nil, fmt.Errorf("netherlands.MatchTiles.%w", err)
	}
	tiles, err := catalog.Match(aoi, cat)
	if err != nil {
		return nil, fmt.Errorf("netherlands.MatchTiles.%w", err)
	}
	return tiles, nil
}

func (s *netherlandsSource) Acquire(ctx context.Context, product common.ProductType, tiles []catalog.Tile, aoi geometry.Footprint, dir string) (string, []string, error) {
	attr := ahn3DTMAttr
	if product == common.ProductPointCloud {
		attr = ahn3LAZAttr
	}
	var urls []string
	for _, t := range tiles {
		url, err := t.Attr(attr)
		if err != nil {
			return "", nil, fmt.Errorf("netherlands.Acquire.%w", err)
		}
		urls = append(urls, url)
	}

	outDir := filepath.Join(dir, string(product))
	skipped, err := fetchAll(ctx, urls, outDir)
	if err != nil {
		return "", nil, fmt.Errorf("netherlands.Acquire.%w", err)
	}
	if product == common.ProductDTM {
		// DTM tiles come zipped, one GeoTIFF per archive.
		if err := unzipAll(ctx, outDir, "*.zip"); err != nil {
			return "", nil, fmt.Errorf("netherlands.Acquire.%w", err)
		}
	}
	return outDir, skipped, nil
}
