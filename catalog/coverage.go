package catalog

import (
	"context"
	"fmt"

	"github.com/terraprep/anc-ingester/common"
	"github.com/terraprep/anc-ingester/geometry"
	"github.com/terraprep/anc-ingester/service/log"
	"go.uber.org/zap"
)

// Region is one entry of the region-coverage index: a source tag and the
// polygon its archive covers, in WGS84.
type Region struct {
	Tag       common.SourceTag
	Footprint geometry.Footprint
}

// RegionCoverage is the ordered list of regional archives. Order matters:
// when coverages overlap, the first region containing the AOI wins.
type RegionCoverage struct {
	Regions []Region
}

// LoadCoverage reads the region-coverage index from a GeoJSON file. The
// source tag of each region sits in the "abbrev" property.
func LoadCoverage(ctx context.Context, url, fallbackPath string) (*RegionCoverage, error) {
	cat, err := Load(ctx, url, fallbackPath, geometry.WGS84)
	if err != nil {
		return nil, fmt.Errorf("LoadCoverage.%w", err)
	}
	cov := RegionCoverage{}
	for _, t := range cat.Tiles {
		abbrev, err := t.Attr("abbrev")
		if err != nil {
			return nil, fmt.Errorf("LoadCoverage.%w", err)
		}
		tag, err := common.ParseSourceTag(abbrev)
		if err != nil {
			return nil, fmt.Errorf("LoadCoverage: %w", err)
		}
		cov.Regions = append(cov.Regions, Region{Tag: tag, Footprint: t.Footprint})
	}
	return &cov, nil
}

// Select picks the source for the AOI: the first region whose coverage
// strictly contains the AOI, in index order. An AOI contained by no region,
// or straddling a region boundary, falls back to the global SRTM archive.
// Containment is strict on purpose: a partially covered AOI would produce a
// truncated product, while SRTM always covers it whole.
func (c *RegionCoverage) Select(ctx context.Context, aoi geometry.Footprint) (common.SourceTag, error) {
	aoiW, err := geometry.Reproject(aoi, geometry.WGS84)
	if err != nil {
		return "", fmt.Errorf("Select.%w", err)
	}
	for _, r := range c.Regions {
		within, err := geometry.Within(aoiW, r.Footprint)
		if err != nil {
			return "", fmt.Errorf("Select[%s].%w", r.Tag, err)
		}
		if within {
			log.Logger(ctx).Info("source selected", zap.String("source", string(r.Tag)))
			return r.Tag, nil
		}
	}
	log.Logger(ctx).Info("AOI not contained in any regional archive, falling back",
		zap.String("source", string(common.SourceSRTM)))
	return common.SourceSRTM, nil
}
