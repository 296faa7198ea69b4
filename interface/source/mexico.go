package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mholt/archiver"
	"github.com/terraprep/anc-ingester/catalog"
	"github.com/terraprep/anc-ingester/common"
	"github.com/terraprep/anc-ingester/geometry"
	"github.com/terraprep/anc-ingester/gridconv"
	"github.com/terraprep/anc-ingester/service/log"
)

// INEGI lidar (Mexico). Five metre DTM tiles as zipped ASCII grids, one
// zip per "clave" code. The zip also carries a metadata HTML page holding
// the UTM zone, needed to derive the EPSG code of the tile.
const (
	mxCatalog = "mx_fishnet.geojson"

	mxBaseURL = "http://internet.contenidos.inegi.org.mx" +
		"/contenidos/Productos/prod_serv/contenidos/espanol/bvinegi" +
		"/productos/geografia/imagen_cartografica/1_10_000/lidar/" +
		"/Terreno_ASCII/"
	mxZipSuffix = "_as.zip"

	// ITRF92 UTM: zone 11 is EPSG 4484, zone 12 is 4485, and so on.
	mxEPSGBase = 4473
)

type mexicoSource struct {
	cfg Config
}

func (s *mexicoSource) Tag() common.SourceTag { return common.SourceMexico }

func (s *mexicoSource) Supports(p common.ProductType) bool {
	return p == common.ProductDTM
}

func (s *mexicoSource) Profile() Profile {
	return Profile{FillNoData: false}
}

func (s *mexicoSource) MatchTiles(ctx context.Context, aoi geometry.Footprint, product common.ProductType) ([]catalog.Tile, error) {
	if !s.Supports(product) {
		return nil, UnsupportedDataTypeError{Source: s.Tag(), Product: product}
	}
	cat, err := catalog.Load(ctx, s.cfg.catalogURL(mxCatalog),
		filepath.Join(s.cfg.CatalogDir, mxCatalog), geometry.WGS84)
	if err != nil {
		return nil, fmt.Errorf("mexico.MatchTiles.%w", err)
	}
	tiles, err := catalog.Match(aoi, cat)
	if err != nil {
		return nil, fmt.Errorf("mexico.MatchTiles.%w", err)
	}
	return tiles, nil
}

func (s *mexicoSource) Acquire(ctx context.Context, product common.ProductType, tiles []catalog.Tile, aoi geometry.Footprint, dir string) (string, []string, error) {
	start := time.Now()
	var urls []string
	for _, t := range tiles {
		upc, err := t.Attr("upc")
		if err != nil {
			return "", nil, fmt.Errorf("mexico.Acquire.%w", err)
		}
		urls = append(urls, mxBaseURL+upc+mxZipSuffix)
	}

	outDir := filepath.Join(dir, string(product))
	skipped, err := fetchAll(ctx, urls, outDir)
	if err != nil {
		return "", nil, fmt.Errorf("mexico.Acquire.%w", err)
	}

	zips, err := filepath.Glob(filepath.Join(outDir, "*.zip"))
	if err != nil {
		return "", nil, fmt.Errorf("mexico.Acquire: %w", err)
	}
	for _, z := range zips {
		if err := s.convertBundle(ctx, z, outDir); err != nil {
			return "", nil, fmt.Errorf("mexico.Acquire.%w", err)
		}
		if err := os.Remove(z); err != nil {
			return "", nil, fmt.Errorf("mexico.Acquire: %w", err)
		}
	}
	log.Logger(ctx).Sugar().Infof("mexico acquisition took %.1fs", time.Since(start).Seconds())
	return outDir, skipped, nil
}

// convertBundle pulls the grid and its metadata page out of an INEGI zip
// and converts the grid into a GeoTIFF in the tile's UTM zone.
func (s *mexicoSource) convertBundle(ctx context.Context, localZip, outDir string) error {
	var xyzPath, htmlPath string
	err := archiver.Walk(localZip, func(f archiver.File) error {
		name := f.Name()
		switch filepath.Ext(name) {
		case ".xyz", ".html":
		default:
			return nil
		}
		dst := filepath.Join(outDir, name)
		out, err := os.Create(dst)
		if err != nil {
			return err
		}
		defer out.Close()
		if _, err := io.Copy(out, f); err != nil {
			return err
		}
		if strings.HasSuffix(name, ".xyz") {
			xyzPath = dst
		} else {
			htmlPath = dst
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("convertBundle[%s]: %w", localZip, err)
	}
	if xyzPath == "" || htmlPath == "" {
		return fmt.Errorf("convertBundle[%s]: grid or metadata page missing", localZip)
	}
	defer os.Remove(htmlPath)

	page, err := os.Open(htmlPath)
	if err != nil {
		return fmt.Errorf("convertBundle: %w", err)
	}
	defer page.Close()
	zone, err := gridconv.UTMZoneFromHTML(page)
	if err != nil {
		return fmt.Errorf("convertBundle.%w", err)
	}

	log.Logger(ctx).Sugar().Debugf("converting %s (UTM zone %d)", filepath.Base(xyzPath), zone)
	if _, err := gridconv.ConvertFile(xyzPath, gridconv.Options{EPSG: mxEPSGBase + zone}); err != nil {
		return fmt.Errorf("convertBundle.%w", err)
	}
	return os.Remove(xyzPath)
}
