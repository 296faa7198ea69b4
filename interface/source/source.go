// Package source implements the acquisition adapters for the regional
// elevation archives. Each adapter knows its agency's tile index, download
// protocol and raw format, and produces a directory of GeoTIFF (or LAZ)
// tiles ready for merging.
package source

import (
	"context"
	"fmt"

	"github.com/terraprep/anc-ingester/catalog"
	"github.com/terraprep/anc-ingester/common"
	"github.com/terraprep/anc-ingester/geometry"
)

// Config carries the adapter settings. Credentials are only needed for the
// sources that require them.
type Config struct {
	// CatalogDir contains the bundled tile indexes (GeoJSON).
	CatalogDir string
	// CatalogURLs optionally maps a catalog file name to a remote URL that
	// is tried before the bundled copy.
	CatalogURLs map[string]string

	// Kortforsyningen FTP credentials (Denmark).
	DKUser     string
	DKPassword string

	// USGS ERS credentials (SRTM).
	USGSUser     string
	USGSPassword string

	// SILocalRepo is an optional local repository of Slovenian DTM tiles,
	// used instead of the ARSO download when set.
	SILocalRepo string
}

// DataSource is a regional elevation archive.
type DataSource interface {
	// Tag identifies the source.
	Tag() common.SourceTag
	// Supports reports whether the source distributes the product.
	Supports(common.ProductType) bool
	// Profile describes the post-processing the source's data needs.
	Profile() Profile
	// MatchTiles returns the catalog tiles intersecting the AOI.
	MatchTiles(ctx context.Context, aoi geometry.Footprint, product common.ProductType) ([]catalog.Tile, error)
	// Acquire downloads the tiles below dir and returns the directory of
	// prepared files plus the names of the tiles that were skipped.
	// Individual tile misses are logged and skipped; an error means the
	// whole acquisition failed.
	Acquire(ctx context.Context, product common.ProductType, tiles []catalog.Tile, aoi geometry.Footprint, dir string) (string, []string, error)
}

// Profile describes the post-processing steps required for the source's
// data.
type Profile struct {
	// FillNoData interpolates nodata holes in DTM tiles before merging.
	FillNoData bool
	// PointCloudEPSG is the CRS of the source's point clouds, zero when
	// the source distributes none.
	PointCloudEPSG int
	// AssignCRS stamps the CRS on rasterized point-cloud tiles, which the
	// rasterizer emits without one.
	AssignCRS bool
}

// UnsupportedDataTypeError reports a product the source does not distribute.
// Non-recoverable.
type UnsupportedDataTypeError struct {
	Source  common.SourceTag
	Product common.ProductType
}

func (e UnsupportedDataTypeError) Error() string {
	return fmt.Sprintf("source %s does not distribute %s products", e.Source, e.Product)
}

// New returns the adapter for the source tag.
func New(tag common.SourceTag, cfg Config) (DataSource, error) {
	switch tag {
	case common.SourceNetherlands:
		return &netherlandsSource{cfg: cfg}, nil
	case common.SourceDenmark:
		return &denmarkSource{cfg: cfg}, nil
	case common.SourceSlovenia:
		return &sloveniaSource{cfg: cfg}, nil
	case common.SourceGermanyNRW:
		return &germanySource{cfg: cfg}, nil
	case common.SourceMexico:
		return &mexicoSource{cfg: cfg}, nil
	case common.SourceSRTM:
		return &srtmSource{cfg: cfg}, nil
	}
	return nil, fmt.Errorf("New: unknown source %q", tag)
}

// catalogURL returns the remote URL configured for a bundled catalog file,
// empty when none.
func (cfg Config) catalogURL(name string) string {
	return cfg.CatalogURLs[name]
}
