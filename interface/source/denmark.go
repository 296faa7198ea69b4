package source

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/mholt/archiver"
	"github.com/terraprep/anc-ingester/catalog"
	"github.com/terraprep/anc-ingester/common"
	"github.com/terraprep/anc-ingester/geometry"
	"github.com/terraprep/anc-ingester/service"
	"github.com/terraprep/anc-ingester/service/log"
	"go.uber.org/zap"
)

// DHM, the Danish national elevation model, distributed over the
// Kortforsyningen FTP server as zipped bundles of 1 km tiles. Each bundle
// covers a 10 km block; only the members inside the AOI are worth
// extracting.
const (
	dkFTPHost  = "ftp.kortforsyningen.dk:21"
	dkFTPRoot  = "dhm_danmarks_hoejdemodel"
	dkEPSG     = 25832 // ETRS89 / UTM 32N
	dkCatalogD = "dk_dtm.geojson"
	dkCatalogL = "dk_punktsky.geojson"
)

type denmarkSource struct {
	cfg Config
}

func (s *denmarkSource) Tag() common.SourceTag { return common.SourceDenmark }

func (s *denmarkSource) Supports(p common.ProductType) bool {
	return p == common.ProductDTM || p == common.ProductPointCloud
}

func (s *denmarkSource) Profile() Profile {
	return Profile{FillNoData: false, PointCloudEPSG: dkEPSG, AssignCRS: false}
}

func (s *denmarkSource) MatchTiles(ctx context.Context, aoi geometry.Footprint, product common.ProductType) ([]catalog.Tile, error) {
	if !s.Supports(product) {
		return nil, UnsupportedDataTypeError{Source: s.Tag(), Product: product}
	}
	name := dkCatalogD
	if product == common.ProductPointCloud {
		name = dkCatalogL
	}
	cat, err := catalog.Load(ctx, s.cfg.catalogURL(name),
		filepath.Join(s.cfg.CatalogDir, name), geometry.CRS{EPSG: dkEPSG})
	if err != nil {
		return nil, fmt.Errorf("denmark.MatchTiles.%w", err)
	}
	tiles, err := catalog.Match(aoi, cat)
	if err != nil {
		return nil, fmt.Errorf("denmark.MatchTiles.%w", err)
	}
	return tiles, nil
}

// bundleName returns the FTP file name of a catalog entry. The point-cloud
// index carries names that do not match the server: the folder part is
// uppercased and the archives are named TIF there as well.
func bundleName(t catalog.Tile, product common.ProductType) (string, error) {
	name, err := t.Attr("filename")
	if err != nil {
		return "", err
	}
	if product == common.ProductPointCloud {
		name = strings.ReplaceAll(name, "punktsky", "PUNKTSKY")
		name = strings.ReplaceAll(name, "LAZ", "TIF")
	}
	return name, nil
}

func (s *denmarkSource) Acquire(ctx context.Context, product common.ProductType, tiles []catalog.Tile, aoi geometry.Footprint, dir string) (string, []string, error) {
	aoiPr, err := geometry.Reproject(aoi, geometry.CRS{EPSG: dkEPSG})
	if err != nil {
		return "", nil, fmt.Errorf("denmark.Acquire.%w", err)
	}
	minx, miny, maxx, maxy, err := geometry.Bounds(aoiPr)
	if err != nil {
		return "", nil, fmt.Errorf("denmark.Acquire.%w", err)
	}

	suffix := ".tif"
	ftpDir := dkFTPRoot + "/DTM"
	if product == common.ProductPointCloud {
		suffix = ".laz"
		ftpDir = dkFTPRoot + "/PUNKTSKY"
	}

	outDir := filepath.Join(dir, strings.ToLower(string(product)))
	if err := os.MkdirAll(outDir, 0766); err != nil {
		return "", nil, fmt.Errorf("denmark.Acquire: %w", err)
	}

	var c *ftp.ServerConn
	err = service.Retriable(ctx, func() error {
		var derr error
		c, derr = ftp.Dial(dkFTPHost, ftp.DialWithContext(ctx), ftp.DialWithTimeout(5*time.Second))
		return derr
	}, time.Second, 3)
	if err != nil {
		return "", nil, fmt.Errorf("denmark.Acquire.Dial: %w", err)
	}
	defer c.Quit()
	if err := c.Login(s.cfg.DKUser, s.cfg.DKPassword); err != nil {
		return "", nil, fmt.Errorf("denmark.Acquire.Login: %w", err)
	}
	if err := c.ChangeDir(ftpDir); err != nil {
		return "", nil, fmt.Errorf("denmark.Acquire.ChangeDir: %w", err)
	}

	var skipped []string
	for i, t := range tiles {
		if ctx.Err() != nil {
			return "", nil, ctx.Err()
		}
		name, err := bundleName(t, product)
		if err != nil {
			return "", nil, fmt.Errorf("denmark.Acquire.%w", err)
		}
		log.Logger(ctx).Sugar().Infof("downloading %s (%d of %d)", name, i+1, len(tiles))
		localZip := filepath.Join(outDir, name)
		if err := ftpFetch(c, name, localZip); err != nil {
			log.Logger(ctx).Warn("bundle skipped", zap.String("name", name), zap.Error(err))
			os.Remove(localZip)
			skipped = append(skipped, name)
			continue
		}
		if err := extractCovered(ctx, localZip, outDir, suffix, minx, miny, maxx, maxy); err != nil {
			return "", nil, fmt.Errorf("denmark.Acquire.%w", err)
		}
		if err := os.Remove(localZip); err != nil {
			return "", nil, fmt.Errorf("denmark.Acquire: %w", err)
		}
	}
	return outDir, skipped, nil
}

func ftpFetch(c *ftp.ServerConn, name, dst string) error {
	r, err := c.Retr(name)
	if err != nil {
		return fmt.Errorf("ftpFetch.Retr: %w", err)
	}
	defer r.Close()
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("ftpFetch.Create: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("ftpFetch.Copy: %w", err)
	}
	return nil
}

// extractCovered extracts from the bundle only the members whose km-grid
// name falls inside the AOI bounds.
func extractCovered(ctx context.Context, localZip, outDir, suffix string, minx, miny, maxx, maxy float64) error {
	err := archiver.Walk(localZip, func(f archiver.File) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := f.Name()
		if !strings.HasSuffix(name, suffix) || !memberCovered(name, minx, miny, maxx, maxy) {
			return nil
		}
		out, err := os.Create(filepath.Join(outDir, name))
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, f)
		return err
	})
	if err != nil {
		return fmt.Errorf("extractCovered[%s]: %w", localZip, err)
	}
	return nil
}

// memberCovered tests a km-grid member name like DTM_1km_6174_518.tif
// against the AOI bounds: fields 2 and 3 are the km coordinates of the
// tile's lower-left corner (northing first).
func memberCovered(name string, minx, miny, maxx, maxy float64) bool {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	parts := strings.Split(base, "_")
	if len(parts) < 4 {
		return false
	}
	y, err := strconv.Atoi(parts[2])
	if err != nil {
		return false
	}
	x, err := strconv.Atoi(parts[3])
	if err != nil {
		return false
	}
	xmin, xmax := int(math.Floor(minx/1000)), int(math.Ceil(maxx/1000))
	ymin, ymax := int(math.Floor(miny/1000)), int(math.Ceil(maxy/1000))
	return ymin <= y && y < ymax && xmin <= x && x < xmax
}
