// Package pipeline orchestrates one acquisition run: pick the source for
// the AOI, download and prepare its tiles, and merge them into the DTM and
// intensity products.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/terraprep/anc-ingester/catalog"
	"github.com/terraprep/anc-ingester/common"
	"github.com/terraprep/anc-ingester/geometry"
	"github.com/terraprep/anc-ingester/interface/source"
	"github.com/terraprep/anc-ingester/pointcloud"
	"github.com/terraprep/anc-ingester/raster"
	"github.com/terraprep/anc-ingester/service/log"
	"go.uber.org/zap"
)

// Run statuses. A run degrades instead of failing when only the secondary
// intensity product could not be prepared.
const (
	StatusOK       = "OK"
	StatusDegraded = "DEGRADED"
)

// Config holds the run settings.
type Config struct {
	// WorkDir is the base directory for per-run temporary files.
	WorkDir string
	// RegionCatalog is the bundled region-coverage GeoJSON.
	RegionCatalog string
	// RegionCatalogURL optionally refreshes the coverage from a remote URL.
	RegionCatalogURL string
	// Source configures the acquisition adapters.
	Source source.Config
	// NewSource overrides the adapter constructor, nil means source.New.
	// Tests substitute fake adapters here.
	NewSource func(common.SourceTag, source.Config) (source.DataSource, error)
}

// Run prepares the ancillary products for the AOI. The working directory is
// removed on every exit path; a removal failure is logged and never masks
// the run error.
func Run(ctx context.Context, cfg Config, projectID string, aoi geometry.Footprint) (_ *common.AcquisitionResult, rerr error) {
	workdir := filepath.Join(cfg.WorkDir, projectID+"-"+uuid.New().String())
	if err := os.MkdirAll(workdir, 0766); err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workdir); err != nil {
			log.Logger(ctx).Warn("working directory not removed", zap.String("dir", workdir), zap.Error(err))
		}
	}()
	ctx = log.With(ctx, "project", projectID)

	cov, err := catalog.LoadCoverage(ctx, cfg.RegionCatalogURL, cfg.RegionCatalog)
	if err != nil {
		return nil, fmt.Errorf("Run.%w", err)
	}
	tag, err := cov.Select(ctx, aoi)
	if err != nil {
		return nil, fmt.Errorf("Run.%w", err)
	}
	newSource := cfg.NewSource
	if newSource == nil {
		newSource = source.New
	}
	src, err := newSource(tag, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}

	dtm, skipped, err := prepareDTM(ctx, src, aoi, workdir)
	if err != nil {
		return nil, fmt.Errorf("Run.%w", err)
	}

	result := common.AcquisitionResult{
		Source: tag,
		DTM:    rasterInfo(&dtm.Tile),
	}

	status := StatusOK
	if src.Supports(common.ProductPointCloud) {
		intensity, lazSkipped, err := prepareIntensity(ctx, src, aoi, workdir)
		if err != nil {
			// The intensity product is best-effort: the run degrades
			// instead of failing.
			log.Logger(ctx).Warn("intensity product dropped", zap.Error(err))
			status = StatusDegraded
		} else {
			skipped = append(skipped, lazSkipped...)
			info := rasterInfo(&intensity.Tile)
			result.Intensity = &info
		}
	}
	result.Status = statusMessage(status, skipped)
	return &result, nil
}

// statusMessage folds the names of skipped tiles into the run status, so
// that partial coverage shows up in the result and not only in the logs.
func statusMessage(status string, skipped []string) string {
	if len(skipped) == 0 {
		return status
	}
	return fmt.Sprintf("%s: %d tiles skipped (%s)", status, len(skipped), strings.Join(skipped, ", "))
}

func prepareDTM(ctx context.Context, src source.DataSource, aoi geometry.Footprint, workdir string) (*raster.Mosaic, []string, error) {
	tiles, err := src.MatchTiles(ctx, aoi, common.ProductDTM)
	if err != nil {
		return nil, nil, fmt.Errorf("prepareDTM.%w", err)
	}
	log.Logger(ctx).Sugar().Infof("found %d DTM products", len(tiles))
	dir, skipped, err := src.Acquire(ctx, common.ProductDTM, tiles, aoi, workdir)
	if err != nil {
		return nil, nil, fmt.Errorf("prepareDTM.%w", err)
	}
	if src.Profile().FillNoData {
		if dir, err = raster.FillNoData(ctx, dir); err != nil {
			return nil, nil, fmt.Errorf("prepareDTM.%w", err)
		}
	}
	rtiles, err := raster.OpenDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("prepareDTM.%w", err)
	}
	mosaic, err := raster.MergeAndClip(rtiles, aoi)
	if err != nil {
		return nil, nil, fmt.Errorf("prepareDTM.%w", err)
	}
	return mosaic, skipped, nil
}

func prepareIntensity(ctx context.Context, src source.DataSource, aoi geometry.Footprint, workdir string) (*raster.Mosaic, []string, error) {
	tiles, err := src.MatchTiles(ctx, aoi, common.ProductPointCloud)
	if err != nil {
		return nil, nil, fmt.Errorf("prepareIntensity.%w", err)
	}
	log.Logger(ctx).Sugar().Infof("found %d point cloud products", len(tiles))
	dir, skipped, err := src.Acquire(ctx, common.ProductPointCloud, tiles, aoi, workdir)
	if err != nil {
		return nil, nil, fmt.Errorf("prepareIntensity.%w", err)
	}

	profile := src.Profile()
	if err := pointcloud.Index(ctx, dir); err != nil {
		return nil, nil, fmt.Errorf("prepareIntensity.%w", err)
	}
	intDir, err := pointcloud.Intensity(ctx, dir, aoi, profile.PointCloudEPSG)
	if err != nil {
		return nil, nil, fmt.Errorf("prepareIntensity.%w", err)
	}
	if profile.AssignCRS {
		if err := raster.AssignCRS(intDir, profile.PointCloudEPSG); err != nil {
			return nil, nil, fmt.Errorf("prepareIntensity.%w", err)
		}
	}

	rtiles, err := raster.OpenDir(intDir)
	if err != nil {
		return nil, nil, fmt.Errorf("prepareIntensity.%w", err)
	}
	mosaic, err := raster.MergeAndClip(rtiles, aoi)
	if err != nil {
		return nil, nil, fmt.Errorf("prepareIntensity.%w", err)
	}
	return mosaic, skipped, nil
}

// rasterInfo flattens a merged tile into the result form.
func rasterInfo(t *raster.Tile) common.RasterInfo {
	info := common.RasterInfo{
		Data:       t.Data,
		Width:      t.Width,
		Height:     t.Height,
		OriginX:    t.Transform.OriginX,
		OriginY:    t.Transform.OriginY,
		PixelSizeX: t.Transform.PixelX,
		PixelSizeY: t.Transform.PixelY,
		EPSG:       t.CRS.EPSG,
		CRSWKT:     t.CRS.WKT,
	}
	if t.HasNoData {
		nodata := t.NoData
		info.NoData = &nodata
	}
	if info.CRSWKT == "" && t.CRS.Defined() {
		if wkt, err := t.CRS.ToWKT(); err == nil {
			info.CRSWKT = wkt
		}
	}
	return info
}
