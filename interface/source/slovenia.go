package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/terraprep/anc-ingester/catalog"
	"github.com/terraprep/anc-ingester/common"
	"github.com/terraprep/anc-ingester/geometry"
	"github.com/terraprep/anc-ingester/gridconv"
	"github.com/terraprep/anc-ingester/raster"
	"github.com/terraprep/anc-ingester/service/log"
)

// ARSO lidar, the Slovenian national survey. One metre DTM tiles as
// semicolon-delimited ASCII grids, point clouds as LAZ, both as direct
// downloads organized by block.
const (
	siCatalog = "si_fishnet.geojson"
	siEPSG    = 3794 // D96/TM

	siDTMBase = "http://gis.arso.gov.si/lidar/dmr1/"
	siLAZBase = "http://gis.arso.gov.si/lidar/gkot/laz/"
)

type sloveniaSource struct {
	cfg Config
}

func (s *sloveniaSource) Tag() common.SourceTag { return common.SourceSlovenia }

func (s *sloveniaSource) Supports(p common.ProductType) bool {
	return p == common.ProductDTM || p == common.ProductPointCloud
}

func (s *sloveniaSource) Profile() Profile {
	return Profile{FillNoData: false, PointCloudEPSG: siEPSG, AssignCRS: true}
}

func (s *sloveniaSource) MatchTiles(ctx context.Context, aoi geometry.Footprint, product common.ProductType) ([]catalog.Tile, error) {
	if !s.Supports(product) {
		return nil, UnsupportedDataTypeError{Source: s.Tag(), Product: product}
	}
	cat, err := catalog.Load(ctx, s.cfg.catalogURL(siCatalog),
		filepath.Join(s.cfg.CatalogDir, siCatalog), geometry.CRS{EPSG: siEPSG})
	if err != nil {
		return nil, fmt.Errorf("slovenia.MatchTiles.%w", err)
	}
	tiles, err := catalog.Match(aoi, cat)
	if err != nil {
		return nil, fmt.Errorf("slovenia.MatchTiles.%w", err)
	}
	return tiles, nil
}

func tileURL(t catalog.Tile, product common.ProductType) (string, error) {
	blok, err := t.Attr("BLOK")
	if err != nil {
		return "", err
	}
	name, err := t.Attr("NAME")
	if err != nil {
		return "", err
	}
	if product == common.ProductPointCloud {
		return siLAZBase + blok + "/D96TM/TM_" + name + ".laz", nil
	}
	return siDTMBase + blok + "/D96TM/TM1_" + name + ".asc", nil
}

func (s *sloveniaSource) Acquire(ctx context.Context, product common.ProductType, tiles []catalog.Tile, aoi geometry.Footprint, dir string) (string, []string, error) {
	var urls []string
	for _, t := range tiles {
		url, err := tileURL(t, product)
		if err != nil {
			return "", nil, fmt.Errorf("slovenia.Acquire.%w", err)
		}
		urls = append(urls, url)
	}

	outDir := filepath.Join(dir, string(product))

	if s.cfg.SILocalRepo != "" && product == common.ProductDTM {
		if err := s.copyLocal(ctx, urls, outDir); err != nil {
			return "", nil, fmt.Errorf("slovenia.Acquire.%w", err)
		}
		return outDir, nil, nil
	}

	skipped, err := fetchAll(ctx, urls, outDir)
	if err != nil {
		return "", nil, fmt.Errorf("slovenia.Acquire.%w", err)
	}
	if product == common.ProductDTM {
		opts := gridconv.Options{Delimiter: ';', EPSG: siEPSG}
		if _, err := gridconv.ConvertDir(ctx, outDir, "*.asc", opts); err != nil {
			return "", nil, fmt.Errorf("slovenia.Acquire.%w", err)
		}
	}
	return outDir, skipped, nil
}

// copyLocal takes the DTM tiles from a local repository of converted
// GeoTIFFs instead of the ARSO download. Repository tiles predate the CRS
// convention, so the CRS is stamped where missing.
func (s *sloveniaSource) copyLocal(ctx context.Context, urls []string, outDir string) error {
	if err := os.MkdirAll(outDir, 0766); err != nil {
		return fmt.Errorf("copyLocal: %w", err)
	}
	for i, url := range urls {
		base := filepath.Base(url)
		name := strings.TrimSuffix(base, filepath.Ext(base)) + ".tif"
		log.Logger(ctx).Sugar().Infof("copying %s (%d of %d)", name, i+1, len(urls))
		if err := copyFile(filepath.Join(s.cfg.SILocalRepo, name), filepath.Join(outDir, name)); err != nil {
			return fmt.Errorf("copyLocal: %w", err)
		}
	}
	if err := raster.AssignCRS(outDir, siEPSG); err != nil {
		return fmt.Errorf("copyLocal.%w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
