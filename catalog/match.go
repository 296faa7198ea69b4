package catalog

import (
	"fmt"
	"math"

	"github.com/terraprep/anc-ingester/geometry"
	"github.com/terraprep/anc-ingester/service"
)

// Match returns the tiles whose footprint intersects the bounding rectangle
// of the AOI, in catalog order. The AOI is reprojected into the catalog CRS
// first; the envelope is used rather than the exact shape, so tiles touching
// only the corners of the AOI rectangle are included. Duplicate catalog
// entries stay duplicated.
func Match(aoi geometry.Footprint, cat *TileCatalog) ([]Tile, error) {
	aoiPr, err := geometry.Reproject(aoi, cat.CRS)
	if err != nil {
		return nil, fmt.Errorf("Match.%w", err)
	}
	env, err := geometry.Envelope(aoiPr)
	if err != nil {
		return nil, fmt.Errorf("Match.%w", err)
	}

	var matched []Tile
	for _, t := range cat.Tiles {
		ok, err := geometry.Intersects(env, t.Footprint)
		if err != nil {
			return nil, fmt.Errorf("Match[%s].%w", t.ID, err)
		}
		if ok {
			matched = append(matched, t)
		}
	}
	return matched, nil
}

// NRWFileNames expands matched NRW tiles into download file names. For every
// tile it emits the name stored under nameKey plus the point-cloud names of
// the three neighbours toward +x, +y and +xy, derived from the kilometre
// coordinates of the tile's lower-left corner. The neighbours compensate for
// point clouds spilling over tile edges; names of tiles that do not exist
// come back as download misses and are skipped there.
func NRWFileNames(tiles []Tile, nameKey string) ([]string, error) {
	// Neighbours of adjacent matched tiles overlap; each name is emitted
	// once so the fetch layer never downloads the same file twice.
	seen := service.StringSet{}
	var names []string
	push := func(n string) {
		if !seen.Exists(n) {
			seen.Push(n)
			names = append(names, n)
		}
	}
	for _, t := range tiles {
		name, err := t.Attr(nameKey)
		if err != nil {
			return nil, fmt.Errorf("NRWFileNames.%w", err)
		}
		left, err := t.FloatAttr("left")
		if err != nil {
			return nil, fmt.Errorf("NRWFileNames.%w", err)
		}
		bottom, err := t.FloatAttr("bottom")
		if err != nil {
			return nil, fmt.Errorf("NRWFileNames.%w", err)
		}
		ax := int(math.Round(left / 1000))
		ay := int(math.Round(bottom / 1000))
		push(name)
		push(fmt.Sprintf("3dm_32_%d_%d_1_nw.laz", ax+1, ay))
		push(fmt.Sprintf("3dm_32_%d_%d_1_nw.laz", ax, ay+1))
		push(fmt.Sprintf("3dm_32_%d_%d_1_nw.laz", ax+1, ay+1))
	}
	return names, nil
}
