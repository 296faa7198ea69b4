// Package catalog holds the tile indexes of the regional elevation archives
// and the region-coverage index used to pick a source for an AOI. Both are
// GeoJSON feature collections, bundled with the binary and optionally
// refreshed from a remote URL.
package catalog

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/go-spatial/geom/encoding/geojson"
	"github.com/terraprep/anc-ingester/geometry"
	"github.com/terraprep/anc-ingester/service"
	"github.com/terraprep/anc-ingester/service/log"
	"go.uber.org/zap"
)

// Tile is one entry of a tile index: the footprint of an archive file plus
// its attributes (file names, corner coordinates) as published by the agency.
type Tile struct {
	ID        string
	Footprint geometry.Footprint
	Attrs     map[string]string
}

// Attr returns the named attribute, failing when absent.
func (t Tile) Attr(key string) (string, error) {
	v, ok := t.Attrs[key]
	if !ok {
		return "", fmt.Errorf("tile %s: no attribute %q", t.ID, key)
	}
	return v, nil
}

// FloatAttr returns the named attribute as a number.
func (t Tile) FloatAttr(key string) (float64, error) {
	s, err := t.Attr(key)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("tile %s: attribute %q: %w", t.ID, key, err)
	}
	return f, nil
}

// TileCatalog is an ordered tile index in a single CRS.
type TileCatalog struct {
	CRS   geometry.CRS
	Tiles []Tile
}

// ErrCatalogUnavailable reports that the remote copy of a catalog could not
// be fetched. Recoverable: the loader falls back to the bundled copy.
type ErrCatalogUnavailable struct {
	URL string
	Err error
}

func (e ErrCatalogUnavailable) Error() string {
	return fmt.Sprintf("catalog unavailable at %s: %v", e.URL, e.Err)
}

func (e ErrCatalogUnavailable) Unwrap() error { return e.Err }

// Load reads a tile catalog, trying the remote URL first and falling back to
// the bundled file when the remote copy cannot be fetched. An empty URL skips
// straight to the bundled file.
func Load(ctx context.Context, url, fallbackPath string, crs geometry.CRS) (*TileCatalog, error) {
	if url != "" {
		body, err := service.GetBodyRetry(url, 3)
		if err == nil {
			return parseCatalog(body, crs)
		}
		werr := ErrCatalogUnavailable{URL: url, Err: err}
		log.Logger(ctx).Warn("falling back to bundled catalog", zap.Error(werr))
	}
	body, err := os.ReadFile(fallbackPath)
	if err != nil {
		return nil, fmt.Errorf("Load[%s]: %w", fallbackPath, err)
	}
	return parseCatalog(body, crs)
}

func parseCatalog(data []byte, crs geometry.CRS) (*TileCatalog, error) {
	var fc geojson.FeatureCollection
	if err := fc.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("parseCatalog: %w", err)
	}
	cat := TileCatalog{CRS: crs}
	for i, f := range fc.Features {
		tile := Tile{
			ID:        strconv.Itoa(i),
			Footprint: geometry.Footprint{Geom: f.Geometry.Geometry, CRS: crs},
			Attrs:     map[string]string{},
		}
		for k, v := range f.Properties {
			tile.Attrs[k] = attrString(v)
		}
		cat.Tiles = append(cat.Tiles, tile)
	}
	return &cat, nil
}

func attrString(v interface{}) string {
	switch v := v.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
